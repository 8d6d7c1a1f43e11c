// Command teamauth signs in to TeamUp, finishes onboarding and manages
// projects from the terminal.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	teamauth "github.com/teamup-ku/go-teamauth"
)

var version = "dev"

var noColor bool

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		printError(root.ErrOrStderr(), "%s", errorMessage(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "teamauth",
		Short:         "Sign in to TeamUp and manage your projects",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			noColor, _ = cmd.Flags().GetBool("no-color")
			if os.Getenv("NO_COLOR") != "" {
				noColor = true
			}
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (JSON or YAML)")
	flags.String("backend-url", "", "application backend base URL")
	flags.String("projects-url", "", "projects API base URL (defaults to the backend URL)")
	flags.String("app-url", "", "web app base URL used for redirects")
	flags.String("supabase-url", "", "identity provider project URL")
	flags.String("supabase-anon-key", "", "identity provider anon key")
	flags.String("schema", "", "backend wire schema (v1 or v2)")
	flags.String("store", "", "token store: memory, file, redis or bun")
	flags.String("store-path", "", "file store path")
	flags.String("redis-addr", "", "redis address for the redis store")
	flags.String("redis-password", "", "redis password")
	flags.Int("redis-db", 0, "redis database")
	flags.Duration("store-ttl", 0, "expiry for stored values (redis only)")
	flags.String("bun-dsn", "", "SQLite DSN for the bun store")
	flags.String("callback-addr", "", "listen address for the OAuth callback server")
	flags.Float64("rate-limit", 0, "maximum backend requests per second (0 disables)")
	flags.Duration("timeout", 0, "HTTP timeout")
	flags.String("audit-log", "", "append flow events as JSON lines to this file")
	flags.BoolP("verbose", "v", false, "log requests and flow transitions")
	flags.Bool("no-color", false, "disable colored output")

	root.AddCommand(
		newSignUpCmd(),
		newLoginCmd(),
		newOnboardCmd(),
		newLogoutCmd(),
		newWhoAmICmd(),
		newPasswordCmd(),
		newProjectsCmd(),
	)
	return root
}

// errorMessage prefers the user-facing message carried by rich errors.
func errorMessage(err error) string {
	return teamauth.UserMessage(err)
}

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	teamauth "github.com/teamup-ku/go-teamauth"
	"github.com/teamup-ku/go-teamauth/callback"
)

// report prints the outcome of a flow and returns its error.
func report(cmd *cobra.Command, out teamauth.Outcome) error {
	w := cmd.ErrOrStderr()
	switch out.State {
	case teamauth.FlowAuthenticated:
		printSuccess(w, "signed in as %s", displayName(out))
	case teamauth.FlowOnboarding:
		printStep(w, "%s", out.Message)
		printStatus(w, "next", "teamauth onboard")
	case teamauth.FlowPendingConfirmation:
		printWarning(w, "%s", out.Message)
	}
	return out.Err
}

func displayName(out teamauth.Outcome) string {
	switch {
	case out.User != nil && out.User.Email != "":
		return out.User.Email
	case out.User != nil && out.User.Name != "":
		return out.User.Name
	case out.Identity != nil && out.Identity.Email != "":
		return out.Identity.Email
	default:
		return "your account"
	}
}

func newSignUpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account with your institution email",
		Long: `Create an account with your institution email.

The provider may ask you to confirm the address first. Once confirmed,
run "teamauth onboard" to finish your profile.

Examples:
  teamauth signup --email kim@korea.ac.kr`,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			orch, err := a.orchestrator()
			if err != nil {
				return err
			}

			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			confirm, _ := cmd.Flags().GetString("confirm-password")

			p := newPrompter(cmd)
			if email, err = p.ask("Email", email); err != nil {
				return err
			}
			if password, err = p.ask("Password", password); err != nil {
				return err
			}
			if confirm, err = p.ask("Confirm password", confirm); err != nil {
				return err
			}

			return report(cmd, orch.SignUp(cmd.Context(), teamauth.SignUpRequest{
				Email:           email,
				Password:        password,
				ConfirmPassword: confirm,
			}))
		}),
	}
	cmd.Flags().String("email", "", "institution email")
	cmd.Flags().String("password", "", "password")
	cmd.Flags().String("confirm-password", "", "password confirmation")
	return cmd
}

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password or an OAuth provider",
		Long: `Sign in with email and password or an OAuth provider.

With --provider the sign-in page is opened in your browser and a local
server receives the redirect.

Examples:
  teamauth login --email kim@korea.ac.kr
  teamauth login --provider google`,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			provider, _ := cmd.Flags().GetString("provider")
			if provider != "" {
				wait, _ := cmd.Flags().GetDuration("wait")
				return loginOAuth(cmd, a, provider, wait)
			}

			orch, err := a.orchestrator()
			if err != nil {
				return err
			}

			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			p := newPrompter(cmd)
			if email, err = p.ask("Email", email); err != nil {
				return err
			}
			if password, err = p.ask("Password", password); err != nil {
				return err
			}

			return report(cmd, orch.SignIn(cmd.Context(), teamauth.Credentials{Email: email, Password: password}))
		}),
	}
	cmd.Flags().String("email", "", "account email")
	cmd.Flags().String("password", "", "account password")
	cmd.Flags().String("provider", "", "OAuth provider, e.g. google")
	cmd.Flags().Duration("wait", 5*time.Minute, "how long to wait for the OAuth redirect")
	return cmd
}

func loginOAuth(cmd *cobra.Command, a *app, provider string, wait time.Duration) error {
	var orch *teamauth.Orchestrator
	srv, err := callback.New(
		callback.HandlerFunc(func(ctx context.Context, params teamauth.CallbackParams) teamauth.Outcome {
			return orch.HandleCallback(ctx, params)
		}),
		callback.WithAddr(a.cfg.CallbackAddr),
		callback.WithMetrics(a.registry),
		callback.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}
	if orch, err = a.orchestrator(teamauth.WithCallbackURL(srv.URL())); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), wait)
	defer cancel()

	req, err := orch.BeginOAuth(ctx, provider)
	if err != nil {
		return err
	}
	srv.Expect(req)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	w := cmd.ErrOrStderr()
	printStep(w, "open this URL to continue:")
	fmt.Fprintln(cmd.OutOrStdout(), req.URL)

	select {
	case out := <-srv.Results():
		cancel()
		<-errCh
		return report(cmd, out)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("callback server: %w", err)
		}
		return fmt.Errorf("timed out waiting for the %s sign-in", provider)
	}
}

func newOnboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Finish your profile after signing in for the first time",
		Long: `Finish your profile after signing in for the first time.

Missing values are asked for interactively. Lists are comma separated.

Examples:
  teamauth onboard --name "Kim Minji" --phone 010-1234-5678 --github minji \
    --tech REACT,GO --position FRONTEND --proficiency GOLD`,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			orch, err := a.orchestrator()
			if err != nil {
				return err
			}

			out := orch.Resume(cmd.Context())
			switch out.State {
			case teamauth.FlowAuthenticated:
				printSuccess(cmd.ErrOrStderr(), "your profile is already complete")
				return nil
			case teamauth.FlowOnboarding:
			default:
				return report(cmd, out)
			}

			profile, err := runWizard(cmd, out.Pending.Email, a.cfg.PhoneRegion)
			if err != nil {
				return err
			}
			return report(cmd, orch.CompleteOnboarding(cmd.Context(), profile))
		}),
	}
	cmd.Flags().String("name", "", "full name")
	cmd.Flags().String("phone", "", "phone number")
	cmd.Flags().String("github", "", "GitHub username")
	cmd.Flags().StringSlice("tech", nil, "tech stacks")
	cmd.Flags().StringSlice("position", nil, "positions")
	cmd.Flags().String("proficiency", "", "proficiency tier or level")
	cmd.Flags().String("portfolio", "", "portfolio URL")
	return cmd
}

func runWizard(cmd *cobra.Command, email, region string) (teamauth.OnboardingProfile, error) {
	var none teamauth.OnboardingProfile
	flags := cmd.Flags()
	p := newPrompter(cmd)
	w := cmd.ErrOrStderr()
	wizard := teamauth.NewOnboardingWizard(email, region)

	tech, _ := flags.GetStringSlice("tech")
	positions, _ := flags.GetStringSlice("position")
	portfolio, _ := flags.GetString("portfolio")

	printStep(w, "step 1 of 2 (%d%%)", wizard.Progress())
	if len(tech) == 0 {
		printStatus(w, "options", "%s", strings.Join(teamauth.TechStacks, ", "))
	}
	tech, err := p.askList("Tech stacks", tech)
	if err != nil {
		return none, err
	}
	if len(positions) == 0 {
		printStatus(w, "options", "%s", strings.Join(teamauth.Positions, ", "))
	}
	if positions, err = p.askList("Positions", positions); err != nil {
		return none, err
	}
	if portfolio, err = p.askOptional("Portfolio URL", portfolio); err != nil {
		return none, err
	}
	if err := wizard.SubmitSelection(teamauth.SelectionStep{
		TechStacks: tech,
		Positions:  positions,
		Portfolio:  portfolio,
	}); err != nil {
		return none, err
	}

	name, _ := flags.GetString("name")
	phone, _ := flags.GetString("phone")
	github, _ := flags.GetString("github")
	level, _ := flags.GetString("proficiency")

	printStep(w, "step 2 of 2 (%d%%)", wizard.Progress())
	if name, err = p.ask("Name", name); err != nil {
		return none, err
	}
	if phone, err = p.ask("Phone", phone); err != nil {
		return none, err
	}
	if github, err = p.ask("GitHub username", github); err != nil {
		return none, err
	}
	if level == "" {
		printStatus(w, "options", "%s", joinProficiencies())
	}
	if level, err = p.ask("Proficiency", level); err != nil {
		return none, err
	}
	proficiency, err := teamauth.ParseProficiency(level)
	if err != nil {
		return none, err
	}

	return wizard.SubmitPersonal(teamauth.PersonalStep{
		Name:        name,
		Phone:       phone,
		GithubID:    github,
		Proficiency: proficiency,
	})
}

func joinProficiencies() string {
	var names []string
	for _, p := range teamauth.Proficiencies() {
		names = append(names, string(p))
	}
	return strings.Join(names, ", ")
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			orch, err := a.orchestrator()
			if err != nil {
				if cerr := a.forget(cmd.Context()); cerr != nil {
					a.logger.Warn("clear stored token", "error", cerr)
				}
				return err
			}
			out := orch.SignOut(cmd.Context())
			if out.Err != nil {
				return out.Err
			}
			printSuccess(cmd.ErrOrStderr(), "%s", out.Message)
			return nil
		}),
	}
}

func newWhoAmICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user from the stored token",
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			claims, err := a.session.Claims(cmd.Context())
			if err != nil {
				return err
			}

			asJSON, _ := cmd.Flags().GetBool("json")
			if asJSON {
				printJSON(cmd.OutOrStdout(), claims)
				return nil
			}

			w := cmd.OutOrStdout()
			printStatus(w, "user", "%s", claims.UserID())
			if claims.Email != "" {
				printStatus(w, "email", "%s", claims.Email)
			}
			if exp := claims.Expiry(); !exp.IsZero() {
				printStatus(w, "expires", "%s", exp.Format(time.RFC3339))
			}
			return nil
		}),
	}
	cmd.Flags().Bool("json", false, "print the decoded claims as JSON")
	return cmd
}

func newPasswordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Reset or change your password",
	}

	reset := &cobra.Command{
		Use:   "reset [email]",
		Short: "Email a password reset link",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			orch, err := a.orchestrator()
			if err != nil {
				return err
			}
			var email string
			if len(args) > 0 {
				email = args[0]
			}
			if email, err = newPrompter(cmd).ask("Email", email); err != nil {
				return err
			}
			out := orch.ResetPassword(cmd.Context(), email)
			if out.Err != nil {
				return out.Err
			}
			printSuccess(cmd.ErrOrStderr(), "%s", out.Message)
			return nil
		}),
	}

	update := &cobra.Command{
		Use:   "update",
		Short: "Change the password of the signed-in account",
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			orch, err := a.orchestrator()
			if err != nil {
				return err
			}
			password, _ := cmd.Flags().GetString("password")
			confirm, _ := cmd.Flags().GetString("confirm-password")
			p := newPrompter(cmd)
			if password, err = p.ask("New password", password); err != nil {
				return err
			}
			if confirm, err = p.ask("Confirm password", confirm); err != nil {
				return err
			}
			out := orch.UpdatePassword(cmd.Context(), password, confirm)
			if out.Err != nil {
				return out.Err
			}
			printSuccess(cmd.ErrOrStderr(), "%s", out.Message)
			return nil
		}),
	}
	update.Flags().String("password", "", "new password")
	update.Flags().String("confirm-password", "", "new password confirmation")

	cmd.AddCommand(reset, update)
	return cmd
}

package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/teamup-ku/go-teamauth/projects"
)

func newProjectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "projects",
		Aliases: []string{"project", "p"},
		Short:   "Browse, create and join team projects",
	}
	cmd.PersistentFlags().Bool("json", false, "print raw JSON")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List all projects",
			RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
				list, err := a.projects().List(cmd.Context())
				if err != nil {
					return err
				}
				return printProjects(cmd, list)
			}),
		},
		&cobra.Command{
			Use:   "mine",
			Short: "Show your projects and applications",
			RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
				page, err := a.projects().MyPage(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					printJSON(cmd.OutOrStdout(), page)
					return nil
				}
				w := cmd.OutOrStdout()
				printStep(w, "owned (%d)", len(page.Owned))
				writeProjects(w, page.Owned)
				printStep(w, "member (%d)", len(page.Member))
				writeProjects(w, page.Member)
				printStep(w, "applications (%d)", len(page.Applications))
				writeApplications(w, page.Applications)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "show <id>",
			Short: "Show one project",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
				p, err := a.projects().Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					printJSON(cmd.OutOrStdout(), p)
					return nil
				}
				w := cmd.OutOrStdout()
				printStatus(w, "id", "%s", p.ID)
				printStatus(w, "name", "%s", p.Name)
				printStatus(w, "status", "%s", p.Status)
				printStatus(w, "difficulty", "%s", p.Difficulty)
				printStatus(w, "open slots", "%d", p.OpenSlots())
				printStatus(w, "description", "%s", p.Description)
				return nil
			}),
		},
		newProjectCreateCmd(),
		newProjectUpdateCmd(),
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a project you own",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
				msg, err := a.projects().Delete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printSuccess(cmd.ErrOrStderr(), "%s", msg)
				return nil
			}),
		},
		newProjectApplyCmd(),
		&cobra.Command{
			Use:   "withdraw <id>",
			Short: "Withdraw your application to a project",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
				msg, err := a.projects().Withdraw(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printSuccess(cmd.ErrOrStderr(), "%s", msg)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "applications <id>",
			Short: "List applications to a project you own",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
				apps, err := a.projects().Applications(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					printJSON(cmd.OutOrStdout(), apps)
					return nil
				}
				writeApplications(cmd.OutOrStdout(), apps)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "decide <project-id> <user-id> accepted|rejected",
			Short: "Accept or reject an applicant",
			Args:  cobra.ExactArgs(3),
			RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
				msg, err := a.projects().Decide(cmd.Context(), args[0], args[1], projects.ApplicationStatus(args[2]))
				if err != nil {
					return err
				}
				printSuccess(cmd.ErrOrStderr(), "%s", msg)
				return nil
			}),
		},
	)
	return cmd
}

func newProjectCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		Long: `Create a project.

Examples:
  teamauth projects create --title TeamUp --description "Team matching" \
    --start 2026-03-02 --deadline 2026-02-20 --duration "3 months" \
    --difficulty MEDIUM --backend 2 --frontend 1`,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			f := cmd.Flags()
			data := projects.CreateProjectData{
				Title:       stringFlag(f, "title"),
				Description: stringFlag(f, "description"),
				StartDate:   stringFlag(f, "start"),
				Deadline:    stringFlag(f, "deadline"),
				Duration:    stringFlag(f, "duration"),
				Difficulty:  stringFlag(f, "difficulty"),
				Positions:   positionFlags(f),
			}
			p, err := a.projects().Create(cmd.Context(), data)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				printJSON(cmd.OutOrStdout(), p)
				return nil
			}
			printSuccess(cmd.ErrOrStderr(), "created project %s", p.ID)
			return nil
		}),
	}
	addProjectFlags(cmd.Flags())
	return cmd
}

func newProjectUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a project you own",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			f := cmd.Flags()
			var data projects.UpdateProjectData
			data.Title = changed(f, "title")
			data.Description = changed(f, "description")
			data.Status = changed(f, "status")
			data.StartDate = changed(f, "start")
			data.Deadline = changed(f, "deadline")
			data.Duration = changed(f, "duration")
			data.Difficulty = changed(f, "difficulty")
			for _, name := range []string{"frontend", "backend", "ai", "mobile"} {
				if f.Changed(name) {
					positions := positionFlags(f)
					data.Positions = &positions
					break
				}
			}

			p, err := a.projects().Update(cmd.Context(), args[0], data)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				printJSON(cmd.OutOrStdout(), p)
				return nil
			}
			printSuccess(cmd.ErrOrStderr(), "updated project %s", p.ID)
			return nil
		}),
	}
	addProjectFlags(cmd.Flags())
	cmd.Flags().String("status", "", "project status")
	return cmd
}

func newProjectApplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <id>",
		Short: "Apply to join a project",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			f := cmd.Flags()
			p := newPrompter(cmd)
			position, err := p.ask("Position", stringFlag(f, "position"))
			if err != nil {
				return err
			}
			intro, err := p.ask("Introduction", stringFlag(f, "intro"))
			if err != nil {
				return err
			}

			app, err := a.projects().Apply(cmd.Context(), args[0], projects.ApplyRequest{
				Position:     position,
				Introduction: intro,
				Portfolio:    stringFlag(f, "portfolio"),
			})
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				printJSON(cmd.OutOrStdout(), app)
				return nil
			}
			printSuccess(cmd.ErrOrStderr(), "applied as %s (%s)", app.Position, app.Status)
			return nil
		}),
	}
	cmd.Flags().String("position", "", "position to apply for")
	cmd.Flags().String("intro", "", "short introduction")
	cmd.Flags().String("portfolio", "", "portfolio URL")
	return cmd
}

func addProjectFlags(f *pflag.FlagSet) {
	f.String("title", "", "project title")
	f.String("description", "", "project description")
	f.String("start", "", "start date (YYYY-MM-DD)")
	f.String("deadline", "", "recruitment deadline (YYYY-MM-DD)")
	f.String("duration", "", "expected duration, e.g. \"3 months\"")
	f.String("difficulty", "", "EASY, MEDIUM or HARD")
	f.String("frontend", "", "frontend head count")
	f.String("backend", "", "backend head count")
	f.String("ai", "", "AI head count")
	f.String("mobile", "", "mobile head count")
}

func stringFlag(f *pflag.FlagSet, name string) string {
	v, _ := f.GetString(name)
	return v
}

func changed(f *pflag.FlagSet, name string) *string {
	if !f.Changed(name) {
		return nil
	}
	v := stringFlag(f, name)
	return &v
}

func positionFlags(f *pflag.FlagSet) projects.Positions {
	return projects.Positions{
		Frontend: stringFlag(f, "frontend"),
		Backend:  stringFlag(f, "backend"),
		AI:       stringFlag(f, "ai"),
		Mobile:   stringFlag(f, "mobile"),
	}
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printProjects(cmd *cobra.Command, list []projects.Project) error {
	if jsonOutput(cmd) {
		printJSON(cmd.OutOrStdout(), list)
		return nil
	}
	writeProjects(cmd.OutOrStdout(), list)
	return nil
}

func writeProjects(w io.Writer, list []projects.Project) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tDIFFICULTY\tOPEN")
	for _, p := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", p.ID, p.Name, p.Status, p.Difficulty, p.OpenSlots())
	}
	_ = tw.Flush()
}

func writeApplications(w io.Writer, apps []projects.Application) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPROJECT\tUSER\tPOSITION\tSTATUS")
	for _, a := range apps {
		user := a.UserName
		if user == "" {
			user = a.UserID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", a.ID, a.ProjectID, user, a.Position, a.Status)
	}
	_ = tw.Flush()
}

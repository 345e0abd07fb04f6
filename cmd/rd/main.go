package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"regdesk/internal/app"
	"regdesk/internal/board"
	"regdesk/internal/config"
	"regdesk/internal/db"
	"regdesk/internal/domain"
	"regdesk/internal/engine"
	"regdesk/internal/migrate"
	"regdesk/internal/reminder"
	"regdesk/internal/repo"
	"regdesk/internal/server"
	"regdesk/internal/workflow"
	regdesksdk "regdesk/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "rd",
	Short: "Regdesk CLI",
	Long: `Regdesk tracks consultancy assignments through per-type status workflows
and keeps follow-up reminders attached to them.
- Workspace: the .regdesk directory holding the database; configs are stored in the DB and imported explicitly.
- Project: one client engagement owning all assignments and reminders.
- Assignments: work items (registration, change, qpr_notice, ...) whose allowed statuses come from the type's workflow.
- Reminders: dated follow-ups carrying a snapshot of the assignment status at scheduling time.
- Timeline: every status change and note for an assignment, newest first, via 'rd timeline'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("REGDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("project", "", "project id (overrides workspace default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(assignmentCmd())
	rootCmd.AddCommand(reminderCmd())
	rootCmd.AddCommand(timelineCmd())
	rootCmd.AddCommand(workflowCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectDeleteCmd())
	prj.AddCommand(projectUseCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func projectCreateCmd() *cobra.Command {
	var id, promoter, desc string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg := config.Default(id)
			cfg.Project.Promoter = promoter
			e := engine.New(conn, cfg)
			p, err := e.InitProject(cmd.Context(), id, promoter, desc, viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			if err := e.Repo.UpsertProjectConfig(cmd.Context(), id, cfg); err != nil {
				return err
			}
			return printJSONOrTable(p)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id")
	cmd.Flags().StringVar(&promoter, "promoter", "", "promoter / client name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := viper.GetString("project")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if target == "" {
					target = e.Config.Project.ID
				}
				p, err := e.Repo.GetProject(ctx, target)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := viper.GetString("project")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if target == "" {
					target = e.Config.Project.ID
				}
				return e.Repo.DeleteProject(ctx, target)
			})
		},
	}
	return cmd
}

func projectUseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use <id>",
		Short: "Set current project for this workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID := strings.TrimSpace(args[0])
			if projectID == "" {
				return fmt.Errorf("project id is required")
			}
			workspace := viper.GetString("workspace")
			if err := setEnvValue(filepath.Join(workspace, ".env"), "REGDESK_DEFAULT_PROJECT", projectID); err != nil {
				return err
			}
			fmt.Printf("Set REGDESK_DEFAULT_PROJECT=%s in %s/.env\n", projectID, workspace)
			return nil
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect project config",
		Long:  "Config holds the project identity and per-type workflow overrides (stored in DB). Import from regdesk.yml if desired.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configImportCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import project config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			cfg, err := config.FromYAML(data)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			projectID := cfg.Project.ID
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if projectID == "" {
					projectID = e.Config.Project.ID
				}
				if err := e.Repo.UpsertProjectConfig(ctx, projectID, cfg); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Config.Validate()
			})
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func statusCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show project status",
		Long:  "Assignment counts per status plus the number of reminders still pending.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				projectID = strings.TrimSpace(projectID)
				if projectID == "" {
					projectID = e.Config.Project.ID
				}
				p, err := e.Repo.GetProject(ctx, projectID)
				if err != nil {
					return err
				}
				counts, err := e.Repo.CountAssignmentsByStatus(ctx, projectID)
				if err != nil {
					return err
				}
				pending, err := e.PendingReminders(ctx, projectID)
				if err != nil {
					return err
				}
				out := map[string]any{
					"project_id":        p.ID,
					"promoter":          p.Promoter,
					"assignment_counts": counts,
					"pending_reminders": len(pending),
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Project: %s", p.ID)
				if p.Promoter != "" {
					fmt.Printf(" (%s)", p.Promoter)
				}
				fmt.Println()
				fmt.Println("Assignments:")
				for status, c := range counts {
					fmt.Printf("  %s: %d\n", status, c)
				}
				fmt.Printf("Pending reminders: %d\n", len(pending))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	return cmd
}

func assignmentCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "assignment",
		Short: "Manage assignments",
		Long:  "Assignments are the tracked work items. Each type carries its own workflow of allowed statuses; moving an assignment is validated against that workflow.",
	}
	a.AddCommand(assignmentCreateCmd())
	a.AddCommand(assignmentListCmd())
	a.AddCommand(assignmentGetCmd())
	a.AddCommand(assignmentSetStatusCmd())
	a.AddCommand(assignmentNoteCmd())
	a.AddCommand(assignmentDeleteCmd())
	return a
}

func assignmentCreateCmd() *cobra.Command {
	var opts engine.AssignmentCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an assignment",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if opts.ProjectID == "" {
					opts.ProjectID = e.Config.Project.ID
				}
				a, err := e.CreateAssignment(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "assignment id (optional, UUID if omitted)")
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&opts.Type, "type", "", "assignment type")
	cmd.Flags().StringVar(&opts.Status, "status", "", "initial status (defaults to new)")
	cmd.Flags().StringVar(&opts.ApplicationNumber, "application-number", "", "application number")
	cmd.Flags().StringVar(&opts.LoginID, "login-id", "", "login id")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func assignmentListCmd() *cobra.Command {
	var f repo.AssignmentFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if f.ProjectID == "" {
					f.ProjectID = e.Config.Project.ID
				}
				items, err := e.Repo.ListAssignments(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Status", "App No", "Updated"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.Type, coloredStatus(a.Status), a.ApplicationNumber, a.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&f.Type, "type", "", "type filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func assignmentGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Repo.GetAssignment(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func assignmentSetStatusCmd() *cobra.Command {
	var status, lastAction, remote string
	cmd := &cobra.Command{
		Use:   "set-status <id>",
		Short: "Move an assignment to a new status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if remote != "" {
				return remoteSetStatus(cmd.Context(), remote, id, status, lastAction)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.SetAssignmentStatus(ctx, id, status, lastAction, viper.GetString("actor-id"))
				if errors.Is(err, workflow.ErrNoChange) {
					fmt.Println("no changes detected")
					return nil
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status")
	cmd.Flags().StringVar(&lastAction, "last-action", "", "note describing the action taken")
	cmd.Flags().StringVar(&remote, "remote", "", "base URL of a regdesk server to call instead of the local database")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

// remoteSetStatus runs the status control against a server. The
// workflow comes from the assignment as the server reports it, the
// change is validated locally, and only an accepted change is sent.
func remoteSetStatus(ctx context.Context, remote, id, status, lastAction string) error {
	client := remoteClient(remote)
	a, err := client.GetAssignment(ctx, id)
	if err != nil {
		return err
	}
	var overrides map[string][]string
	if len(a.Workflow) > 0 {
		overrides = map[string][]string{a.Type: a.Workflow}
	}
	reg := workflow.NewRegistry(overrides)
	ctl := board.NewStatusControl(reg, a.Type, client)
	var updated *regdesksdk.Assignment
	err = ctl.Select(ctx, a, status, lastAction, func(res regdesksdk.Assignment) {
		updated = &res
	})
	if err != nil {
		return err
	}
	if updated == nil {
		fmt.Println("no changes detected")
		return nil
	}
	return printJSONOrTable(updated)
}

func assignmentNoteCmd() *cobra.Command {
	var body string
	cmd := &cobra.Command{
		Use:   "note <id>",
		Short: "Attach a note to an assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.AddNote(ctx, id, body, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(n)
			})
		},
	}
	cmd.Flags().StringVar(&body, "body", "", "note text")
	_ = cmd.MarkFlagRequired("body")
	return cmd
}

func assignmentDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an assignment and its reminders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteAssignment(ctx, id, viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func reminderCmd() *cobra.Command {
	r := &cobra.Command{
		Use:   "reminder",
		Short: "Manage reminders",
		Long:  "Reminders are dated follow-ups on assignments. Each one records the assignment status at scheduling time; 'rd reminder pending' shows all active ones ordered by due date.",
	}
	r.AddCommand(reminderScheduleCmd())
	r.AddCommand(reminderListCmd())
	r.AddCommand(reminderPendingCmd())
	r.AddCommand(reminderResolveCmd())
	return r
}

func reminderScheduleCmd() *cobra.Command {
	var dueAt, message string
	cmd := &cobra.Command{
		Use:   "schedule <assignment-id>",
		Short: "Schedule a reminder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			assignmentID := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rem, err := e.ScheduleReminder(ctx, engine.ReminderScheduleOptions{
					AssignmentID: assignmentID,
					DueAt:        dueAt,
					Message:      message,
					ActorID:      viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(rem)
			})
		},
	}
	cmd.Flags().StringVar(&dueAt, "due", "", "due date (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&message, "message", "", "reminder message")
	_ = cmd.MarkFlagRequired("due")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func reminderListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <assignment-id>",
		Short: "List reminders on an assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			assignmentID := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListAssignmentReminders(ctx, assignmentID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func reminderPendingCmd() *cobra.Command {
	var projectID, remote string
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List all pending reminders",
		RunE: func(cmd *cobra.Command, args []string) error {
			if remote != "" {
				return remotePendingReminders(cmd.Context(), remote)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if projectID == "" {
					projectID = e.Config.Project.ID
				}
				items, err := e.PendingReminders(ctx, projectID)
				if err != nil {
					return err
				}
				now := e.Now()
				if viper.GetBool("json") {
					type row struct {
						domain.Reminder
						Urgency reminder.Urgency `json:"urgency"`
					}
					out := make([]row, 0, len(items))
					for _, rem := range items {
						out = append(out, row{Reminder: rem, Urgency: classifyDue(rem.DueAt, now)})
					}
					return printJSON(out)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Assignment", "Due", "Urgency", "Message", "Status At Schedule"})
				for _, rem := range items {
					urgency := classifyDue(rem.DueAt, now)
					tw.AppendRow(table.Row{
						rem.ID,
						rem.AssignmentID,
						rem.DueAt,
						urgencyColors(urgency).Sprint(urgency),
						rem.Message,
						coloredStatus(rem.StatusSnapshot),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&remote, "remote", "", "base URL of a regdesk server to call instead of the local database")
	return cmd
}

// remotePendingReminders renders the pending board against a server.
// Urgency comes from the board, recomputed against the wall clock.
func remotePendingReminders(ctx context.Context, remote string) error {
	b := board.NewPendingBoard(remoteClient(remote))
	if err := b.Load(ctx); err != nil {
		return err
	}
	items := b.Items(time.Now())
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Assignment", "Due", "Urgency", "Message", "Status At Schedule"})
	for _, item := range items {
		tw.AppendRow(table.Row{
			item.ID,
			item.AssignmentID,
			item.DueAt,
			urgencyColors(item.Urgency).Sprint(item.Urgency),
			item.Message,
			coloredStatus(item.StatusSnapshot),
		})
	}
	tw.Render()
	return nil
}

func reminderResolveCmd() *cobra.Command {
	var remote string
	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Mark a reminder resolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if remote != "" {
				rem, err := remoteClient(remote).ResolveReminder(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printJSONOrTable(rem)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rem, err := e.ResolveReminder(ctx, id, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(rem)
			})
		},
	}
	cmd.Flags().StringVar(&remote, "remote", "", "base URL of a regdesk server to call instead of the local database")
	return cmd
}

func timelineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timeline <assignment-id>",
		Short: "Show an assignment's history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			assignmentID := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entries, err := e.Timeline(ctx, assignmentID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"When", "Kind", "Actor", "Description"})
				for _, entry := range entries {
					desc := entry.Description
					if entry.Kind == "status" && entry.ToStatus != "" {
						desc = fmt.Sprintf("%s -> %s", entry.FromStatus, coloredStatus(entry.ToStatus))
					}
					tw.AppendRow(table.Row{entry.TS, entry.Kind, entry.Actor, desc})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func workflowCmd() *cobra.Command {
	wf := &cobra.Command{
		Use:   "workflow",
		Short: "Inspect status workflows",
	}
	wf.AddCommand(workflowTypesCmd())
	wf.AddCommand(workflowShowCmd())
	return wf
}

func workflowTypesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "types",
		Short: "List known assignment types",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSONOrTable(workflow.Types())
		},
	}
	return cmd
}

func workflowShowCmd() *cobra.Command {
	var assignmentType string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the status workflow for a type",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				codes := e.Registry.WorkflowFor(assignmentType)
				if viper.GetBool("json") {
					return printJSON(codes)
				}
				for _, code := range codes {
					fmt.Println(coloredStatus(code))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&assignmentType, "type", "", "assignment type")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, e.Config.Project.ID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	ak := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}
	ak.AddCommand(apikeyCreateCmd())
	return ak
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the current actor",
		Long:  "Prints the raw key once; only its hash is stored.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				raw := uuid.NewString() + uuid.NewString()
				key := domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   viper.GetString("actor-id"),
					Name:      name,
					KeyHash:   repo.HashAPIKey(raw),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				tx, err := r.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				if err := r.InsertAPIKey(ctx, tx, key); err != nil {
					return err
				}
				if err := tx.Commit(); err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{
					"id":       key.ID,
					"actor_id": key.ActorID,
					"api_key":  raw,
				})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveProjectAndConfig(cmd.Context(), projectOverride(workspace), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("REGDESK_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("REGDESK_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Regdesk API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveProjectAndConfig(ctx, projectOverride(workspace), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	return fn(ctx, r)
}

// projectOverride resolves the target project from the --project flag,
// the environment, or the workspace .env written by 'rd project use'.
// remoteClient builds an API client for --remote commands. Credentials
// come from REGDESK_TOKEN (bearer) or REGDESK_API_KEY.
func remoteClient(baseURL string) *regdesksdk.Client {
	client := regdesksdk.New(baseURL, projectOverride(viper.GetString("workspace")))
	client.APIKey = os.Getenv("REGDESK_API_KEY")
	client.BearerToken = os.Getenv("REGDESK_TOKEN")
	return client
}

func projectOverride(workspace string) string {
	if p := strings.TrimSpace(viper.GetString("project")); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv("REGDESK_DEFAULT_PROJECT")); p != "" {
		return p
	}
	return readEnvValue(filepath.Join(workspace, ".env"), "REGDESK_DEFAULT_PROJECT")
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func coloredStatus(code string) string {
	return workflow.PresentationFor(code).Colors().Sprint(code)
}

func classifyDue(dueAt string, now time.Time) reminder.Urgency {
	due, err := reminder.ParseDue(dueAt)
	if err != nil {
		return reminder.Upcoming
	}
	return reminder.Classify(due, now)
}

func urgencyColors(u reminder.Urgency) text.Colors {
	switch u {
	case reminder.Overdue:
		return text.Colors{text.FgRed, text.Bold}
	case reminder.DueToday:
		return text.Colors{text.FgYellow}
	default:
		return text.Colors{text.FgGreen}
	}
}

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func readEnvValue(path, key string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, key+"=") {
			return strings.TrimPrefix(line, key+"=")
		}
	}
	return ""
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/poisvin/tusk/internal/config"
	"github.com/poisvin/tusk/internal/db"
	"github.com/poisvin/tusk/internal/domain"
	"github.com/poisvin/tusk/internal/engine"
	"github.com/poisvin/tusk/internal/migrate"
	"github.com/poisvin/tusk/internal/repo"
	"github.com/poisvin/tusk/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tusk",
	Short: "Tusk CLI",
	Long: `Tusk is a personal task manager with a recurring-task engine.
- Tasks live in a .tusk workspace database and are scheduled on calendar days.
- Recurring tasks (daily, weekdays, weekends, weekly, monthly) own a series of
  generated occurrences reaching one month ahead (one year for monthly).
- Editing a series member ripples shared fields forward; changing the rule on
  the root rebuilds the future of the series, keeping completed work.
- The sweep carries incomplete one-off tasks onto today, remembering the day
  they were originally planned for.
- Event log: diary of changes, view with 'tusk log tail'.`,
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
	viper.SetEnvPrefix("TUSK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(tagCmd())
	rootCmd.AddCommand(dayCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks are scheduled on calendar days. Recurring tasks generate their future occurrences automatically; edit the series root to change every upcoming occurrence.",
	}
	task.AddCommand(taskAddCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDoneCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskGenerateCmd())
	task.AddCommand(taskTagsCmd())
	return task
}

func taskAddCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	var weeklyDays []string
	var tagIDs []string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			opts.WeeklyDays = weeklyDays
			opts.TagIDs = tagIDs
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.ScheduledDate, "date", "", "scheduled date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.StartTime, "start", "", "start time (HH:MM)")
	cmd.Flags().StringVar(&opts.EndTime, "end", "", "end time (HH:MM)")
	cmd.Flags().StringVar(&opts.Status, "status", "", "status (backlog, in_progress, partial, done)")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "priority (low, medium, high)")
	cmd.Flags().StringVar(&opts.Category, "category", "", "category (personal, official)")
	cmd.Flags().StringVar(&opts.Recurrence, "recurrence", "", "recurrence (one_time, daily, weekdays, weekends, weekly, monthly)")
	cmd.Flags().StringArrayVar(&weeklyDays, "weekly-day", []string{}, "weekday for weekly recurrence (repeatable)")
	cmd.Flags().BoolVar(&opts.Remind, "remind", false, "enable reminder")
	cmd.Flags().StringArrayVar(&tagIDs, "tag", []string{}, "tag id (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	var carried string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if carried != "" {
				flag := carried == "true"
				f.CarriedOver = &flag
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				tasks, err := r.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Date", "Status", "Recurrence", "Carried"})
				for _, t := range tasks {
					carriedMark := ""
					if t.CarriedOver {
						carriedMark = "yes"
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.ScheduledDate, t.Status, t.Recurrence, carriedMark})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Date, "date", "", "scheduled date filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Recurrence, "recurrence", "", "recurrence filter")
	cmd.Flags().StringVar(&f.ParentID, "parent", "", "series root id")
	cmd.Flags().StringVar(&carried, "carried", "", "carried-over filter (true, false)")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func taskShowCmd() *cobra.Command {
	var series bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				t, err := r.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				if !series {
					return printJSONOrTable(t)
				}
				members, err := r.ListSeries(ctx, t.RootID())
				if err != nil {
					return err
				}
				return printJSONOrTable(members)
			})
		},
	}
	cmd.Flags().BoolVar(&series, "series", false, "show the whole series")
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var title, description, date, start, end, status, priority, category, recurrence string
	var weeklyDays []string
	var remind bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a task",
		Long:  "Only changed flags are applied. Shared-field edits ripple forward through the series; changing --recurrence or --weekly-day on a root rebuilds its future occurrences.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.TaskUpdateOptions{ID: args[0], ActorID: viper.GetString("actor-id")}
			if cmd.Flags().Changed("title") {
				opts.Title = &title
			}
			if cmd.Flags().Changed("description") {
				opts.Description = &description
			}
			if cmd.Flags().Changed("date") {
				opts.ScheduledDate = &date
			}
			if cmd.Flags().Changed("start") {
				opts.StartTime = &start
			}
			if cmd.Flags().Changed("end") {
				opts.EndTime = &end
			}
			if cmd.Flags().Changed("status") {
				opts.Status = &status
			}
			if cmd.Flags().Changed("priority") {
				opts.Priority = &priority
			}
			if cmd.Flags().Changed("category") {
				opts.Category = &category
			}
			if cmd.Flags().Changed("recurrence") {
				opts.Recurrence = &recurrence
			}
			if cmd.Flags().Changed("weekly-day") {
				opts.WeeklyDays = &weeklyDays
			}
			if cmd.Flags().Changed("remind") {
				opts.Remind = &remind
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&date, "date", "", "scheduled date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&start, "start", "", "start time (HH:MM)")
	cmd.Flags().StringVar(&end, "end", "", "end time (HH:MM)")
	cmd.Flags().StringVar(&status, "status", "", "status")
	cmd.Flags().StringVar(&priority, "priority", "", "priority")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().StringVar(&recurrence, "recurrence", "", "recurrence rule")
	cmd.Flags().StringArrayVar(&weeklyDays, "weekly-day", []string{}, "weekday for weekly recurrence (repeatable)")
	cmd.Flags().BoolVar(&remind, "remind", false, "enable reminder")
	return cmd
}

func taskDoneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "done <id>",
		Short: "Mark a task done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			done := string(domain.StatusDone)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateTask(ctx, engine.TaskUpdateOptions{
					ID:      args[0],
					Status:  &done,
					ActorID: viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task (a root takes its series with it)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteTask(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func taskGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <root-id>",
		Short: "Top up a recurring series to its horizon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				created, err := e.Generate(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]int{"created": created})
			})
		},
	}
	return cmd
}

func taskTagsCmd() *cobra.Command {
	var tagIDs []string
	cmd := &cobra.Command{
		Use:   "tags <id>",
		Short: "Replace a task's tags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.SetTags(ctx, args[0], tagIDs, viper.GetString("actor-id")); err != nil {
					return err
				}
				t, err := e.Repo.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringArrayVar(&tagIDs, "tag", []string{}, "tag id (repeatable)")
	return cmd
}

func tagCmd() *cobra.Command {
	tag := &cobra.Command{Use: "tag", Short: "Manage tags"}
	tag.AddCommand(tagAddCmd())
	tag.AddCommand(tagListCmd())
	return tag
}

func tagAddCmd() *cobra.Command {
	var name, color string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a tag",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTag(ctx, name, color, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "tag name")
	cmd.Flags().StringVar(&color, "color", "", "tag color")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func tagListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tags",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				tags, err := r.ListTags(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tags)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Color"})
				for _, t := range tags {
					tw.AppendRow(table.Row{t.ID, t.Name, t.Color})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func dayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "day [date]",
		Short: "Show tasks scheduled on a date (defaults to today)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date := domain.FormatDate(time.Now().UTC())
			if len(args) == 1 {
				date = args[0]
			}
			if _, err := domain.ParseDate(date); err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				tasks, err := r.ListTasks(ctx, repo.TaskFilters{Date: date})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Time", "Status", "Carried from"})
				for _, t := range tasks {
					slot := ""
					if t.StartTime != nil {
						slot = *t.StartTime
						if t.EndTime != nil {
							slot += "-" + *t.EndTime
						}
					}
					from := ""
					if t.CarriedOver && t.OriginalDate != nil {
						from = *t.OriginalDate
					}
					tw.AppendRow(table.Row{t.ID, t.Title, slot, t.Status, from})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func sweepCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Carry incomplete one-off tasks onto today",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				carried, err := e.Sweep(ctx, target, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]int64{"carried": carried})
			})
		},
	}
	cmd.Flags().StringVar(&target, "date", "", "target date (defaults to today)")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, evtType, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server and the daily sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)

			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			secret := os.Getenv("TUSK_JWT_SECRET")
			if secret == "" {
				secret = cfg.Server.JWTSecret
			}
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: basePath,
				Auth:     server.AuthConfig{JWTSecret: secret},
			})
			if err != nil {
				return err
			}

			sched := cron.New()
			if _, err := sched.AddFunc(cfg.Sweep.Schedule, func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				defer cancel()
				carried, err := e.Sweep(ctx, "", "scheduler")
				if err != nil {
					fmt.Println("sweep error:", err)
					return
				}
				if carried > 0 {
					fmt.Printf("sweep carried %d task(s) forward\n", carried)
				}
			}); err != nil {
				return fmt.Errorf("sweep schedule %q: %w", cfg.Sweep.Schedule, err)
			}
			sched.Start()
			defer sched.Stop()

			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Tusk API on http://%s%s (sweep schedule %q)\n", addr, basePath, cfg.Sweep.Schedule)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to config)")
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
	cfg, err := config.LoadOptional(workspace)
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
	return fn(ctx, repo.Repo{DB: conn})
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

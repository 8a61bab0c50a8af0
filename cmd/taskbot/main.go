package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"taskbot/internal/app"
	"taskbot/internal/config"
	"taskbot/internal/db"
	"taskbot/internal/directory"
	"taskbot/internal/domain"
	"taskbot/internal/gateway"
	"taskbot/internal/repo"
	"taskbot/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "taskbot",
	Short: "WhatsApp task bot",
	Long: `taskbot lets a team create, list and update tasks from WhatsApp.
- Workspace: the .taskbot directory holding the SQLite database, next to an optional taskbot.yml.
- serve: runs the webhook, the admin API and the daily overdue alerts.
- chat: feeds one message through the bot and prints the replies, for trying flows from a shell.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TASKBOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Bool("debug", false, "debug logging")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(alertsCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(tokenCmd())
}

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if viper.GetBool("debug") {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

// withApp opens the workspace for the duration of fn.
func withApp(ctx context.Context, opts app.Options, fn func(context.Context, *app.App) error) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()
	opts.Workspace = viper.GetString("workspace")
	opts.Log = log
	a, err := app.Open(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage taskbot.yml"}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default taskbot.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if err := c.Validate(); err != nil {
				return err
			}
			return printJSON(c)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate taskbot.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(viper.GetString("workspace")); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	})
	return cfg
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var noSchedule bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the webhook and admin API, and run scheduled alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, a *app.App) error {
				jwtSecret := os.Getenv("TASKBOT_JWT_SECRET")
				handler, err := a.Handler(basePath, jwtSecret)
				if err != nil {
					return err
				}
				if addr == "" {
					addr = a.Config.Server.Addr
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					a.Log.Info("serving", zap.String("addr", addr))
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
				if !noSchedule {
					sched, err := a.Schedule()
					if err != nil {
						return err
					}
					g.Go(func() error {
						if err := sched.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
							return err
						}
						return nil
					})
				}
				return g.Wait()
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from config)")
	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "do not run the daily alert schedule")
	return cmd
}

func chatCmd() *cobra.Command {
	var from, button string
	cmd := &cobra.Command{
		Use:   "chat [text]",
		Short: "Send one message to the bot and print its replies",
		RunE: func(cmd *cobra.Command, args []string) error {
			if from == "" {
				return fmt.Errorf("--from required")
			}
			in := gateway.Inbound{Sender: directory.NormalizePhone(from)}
			switch {
			case button != "":
				in.Type, in.Body = gateway.TypeButton, button
			case len(args) > 0:
				in.Type = gateway.TypeText
				in.Body = strings.ReplaceAll(strings.Join(args, " "), `\n`, "\n")
			default:
				return fmt.Errorf("text or --button required")
			}
			opts := app.Options{Gateway: gateway.NewConsole(os.Stdout), SessionBackend: "sql"}
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app.App) error {
				if !a.Bot.Handle(ctx, in) {
					fmt.Println("(no reply)")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "sender phone number")
	cmd.Flags().StringVar(&button, "button", "", "button id to press instead of sending text")
	return cmd
}

func alertsCmd() *cobra.Command {
	al := &cobra.Command{Use: "alerts", Short: "Overdue alerts"}
	al.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Send overdue alerts now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, a *app.App) error {
				rep, err := a.Alerts.Run(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rep)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Recipients", "Tasks", "Skipped", "Failed"})
				tw.AppendRow(table.Row{rep.Recipients, rep.Tasks, strings.Join(rep.Skipped, ","), strings.Join(rep.Failed, ",")})
				tw.Render()
				return nil
			})
		},
	})
	return al
}

func taskCmd() *cobra.Command {
	tk := &cobra.Command{Use: "task", Short: "Inspect and maintain tasks"}
	tk.AddCommand(taskListCmd())
	tk.AddCommand(&cobra.Command{
		Use:   "archive",
		Short: "Move old completed tasks to history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, a *app.App) error {
				n, err := a.Archive(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("archived %d task(s)\n", n)
				return nil
			})
		},
	})
	return tk
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, a *app.App) error {
				f.Status = domain.Status(status)
				if f.Status != "" && !f.Status.Valid() {
					return fmt.Errorf("invalid status %q", status)
				}
				tasks, err := a.Engine.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Deadline", "Assignee"})
				for _, t := range tasks {
					deadline := ""
					if t.Deadline != nil {
						deadline = *t.Deadline
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, deadline, t.Assignee()})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.AssigneeID, "assignee", "", "assignee filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func userCmd() *cobra.Command {
	us := &cobra.Command{Use: "user", Short: "Manage the user directory"}
	us.AddCommand(userAddCmd())
	us.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, a *app.App) error {
				users, err := a.Engine.Repo.ListUsers(ctx, repo.UserFilters{})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Mobile", "Type", "Enabled"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.FullName, u.Email, u.MobileNo, u.UserType, u.Enabled})
				}
				tw.Render()
				return nil
			})
		},
	})
	return us
}

func userAddCmd() *cobra.Command {
	var u domain.User
	var disabled bool
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if u.ID == "" {
				return fmt.Errorf("--id required")
			}
			u.Enabled = !disabled
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, a *app.App) error {
				if err := a.Engine.Repo.UpsertUser(ctx, u); err != nil {
					return err
				}
				fmt.Println("saved", u.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&u.ID, "id", "", "user id")
	cmd.Flags().StringVar(&u.FullName, "name", "", "full name")
	cmd.Flags().StringVar(&u.Email, "email", "", "email")
	cmd.Flags().StringVar(&u.MobileNo, "mobile", "", "mobile number")
	cmd.Flags().StringVar(&u.UserType, "type", "", "user type (default System User)")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "store the user disabled")
	return cmd
}

func sessionCmd() *cobra.Command {
	var phone string
	ss := &cobra.Command{Use: "session", Short: "Inspect conversation contexts (sql backend)"}
	ss.PersistentFlags().StringVar(&phone, "phone", "", "sender phone number")
	ss.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show live contexts for a phone",
		RunE: func(cmd *cobra.Command, args []string) error {
			if phone == "" {
				return fmt.Errorf("--phone required")
			}
			return withApp(cmd.Context(), app.Options{SessionBackend: "sql"}, func(ctx context.Context, a *app.App) error {
				snap, err := a.Sessions.Snapshot(ctx, directory.NormalizePhone(phone))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(snap)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Context", "Data"})
				for kind, data := range snap {
					tw.AppendRow(table.Row{kind, string(data)})
				}
				tw.SortBy([]table.SortBy{{Name: "Context", Mode: table.Asc}})
				tw.Render()
				return nil
			})
		},
	})
	ss.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Drop every context for a phone",
		RunE: func(cmd *cobra.Command, args []string) error {
			if phone == "" {
				return fmt.Errorf("--phone required")
			}
			return withApp(cmd.Context(), app.Options{SessionBackend: "sql"}, func(ctx context.Context, a *app.App) error {
				return a.Sessions.ClearAll(ctx, directory.NormalizePhone(phone))
			})
		},
	})
	return ss
}

func tokenCmd() *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin API token (uses TASKBOT_JWT_SECRET or server.jwt_secret)",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("TASKBOT_JWT_SECRET")
			if secret == "" {
				c, err := config.LoadOptional(viper.GetString("workspace"))
				if err != nil {
					return err
				}
				secret = c.Server.JWTSecret
			}
			tok, err := server.IssueToken(secret, subject, server.AdminRole)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "admin", "token subject")
	return cmd
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

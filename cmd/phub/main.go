package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"projecthub/internal/app"
	"projecthub/internal/config"
	"projecthub/internal/domain"
	"projecthub/internal/migrate"
	"projecthub/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "phub",
	Short: "projecthub CLI",
	Long: `projecthub runs the workflow engine behind a project marketplace.
- Projects move through lifecycle stages (IDEA -> DRAFT -> ... -> COMPLETED) along edges gated by role and requirements.
- Members hold one role per project; the role decides which actions they may take.
- Tasks form a dependency graph that never contains a cycle, and the conflict detector reports schedule problems.
- Every change is written to the event log, view it with 'phub log tail'.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func initConfig() {
	viper.SetEnvPrefix("PROJECTHUB")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory holding projecthub.yml")
	rootCmd.PersistentFlags().String("config", "", "config file (default <workspace>/projecthub.yml)")
	rootCmd.PersistentFlags().String("db", "", "database path (overrides config)")
	rootCmd.PersistentFlags().StringP("user", "u", "", "acting user id")
	rootCmd.PersistentFlags().StringP("project", "p", "", "project id")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides config)")
	for _, name := range []string{"workspace", "config", "db", "user", "project", "json", "log-level"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(timeCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(doCmd())
}

// loadConfig reads the config file and applies flag and environment
// overrides on top.
func loadConfig() (config.Config, error) {
	path := viper.GetString("config")
	if path == "" {
		path = config.Path(viper.GetString("workspace"))
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if v := viper.GetString("db"); v != "" {
		cfg.Database.Path = v
	} else if !filepath.IsAbs(cfg.Database.Path) {
		cfg.Database.Path = filepath.Join(viper.GetString("workspace"), cfg.Database.Path)
	}
	if v := viper.GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v := viper.GetString("jwt-secret"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	return cfg, cfg.Validate()
}

func withApp(fn func(a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(cfg, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func currentUser() (string, error) {
	u := strings.TrimSpace(viper.GetString("user"))
	if u == "" {
		return "", fmt.Errorf("--user (or PROJECTHUB_USER) is required")
	}
	return u, nil
}

func currentProject() (string, error) {
	p := strings.TrimSpace(viper.GetString("project"))
	if p == "" {
		return "", fmt.Errorf("--project (or PROJECTHUB_PROJECT) is required")
	}
	return p, nil
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Inspect configuration"}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default projecthub.yml into the workspace",
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
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret != "" {
				cfg.Auth.JWTSecret = "********"
			}
			return printJSON(cfg)
		},
	})
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := app.New(cfg, app.Options{SkipMigrate: true})
			if err != nil {
				return err
			}
			defer a.Close()
			applied, err := migrate.Apply(cmd.Context(), a.DB)
			if err != nil {
				return err
			}
			current, latest, err := migrate.Version(cmd.Context(), a.DB)
			if err != nil {
				return err
			}
			fmt.Printf("applied %d migration(s), schema at %d/%d\n", len(applied), current, latest)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				cfg := a.Config
				if addr == "" {
					addr = cfg.Server.Addr
				}
				if basePath == "" {
					basePath = cfg.Server.BasePath
				}
				if cfg.Auth.JWTSecret == "" && !cfg.Auth.AllowUserHeader {
					return fmt.Errorf("auth.jwt_secret (or PROJECTHUB_JWT_SECRET) is required unless auth.allow_user_header is on")
				}
				handler, err := server.New(server.Config{Engine: a.Engine, BasePath: basePath, Auth: cfg.Auth, Logger: a.Logger})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-cmd.Context().Done()
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(ctx)
				}()
				a.Logger.Info("serving projecthub API", "addr", addr, "base_path", basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default server.base_path)")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every committed change: stage moves, membership, tasks, dependencies, checklists and time entries.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var f domain.EventFilter
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "List events after a cursor",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := currentUser()
			if err != nil {
				return err
			}
			if f.ProjectID, err = currentProject(); err != nil {
				return err
			}
			return withApp(func(a *app.App) error {
				items, err := a.Engine.Events(cmd.Context(), user, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "TS", "Type", "Entity", "Actor", "Payload")
				for _, ev := range items {
					tw.AppendRow(row(ev.ID, ev.TS, ev.Type, ev.EntityKind+":"+ev.EntityID, ev.ActorID, ev.Payload))
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&f.Limit, "n", "n", 20, "number of events")
	cmd.Flags().Int64Var(&f.AfterID, "after", 0, "only events with a greater id")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

// doCmd runs any workflow action by name with a JSON payload.
func doCmd() *cobra.Command {
	var payload string
	cmd := &cobra.Command{
		Use:   "do <action>",
		Short: "Perform a workflow action with a JSON payload",
		Example: `  phub do create_task -u ana -p kiosk --payload '{"title":"Wire the screen"}'
  phub do block_task -u ana -p kiosk --payload '{"task_id":"t1","reason":"vendor"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := currentUser()
			if err != nil {
				return err
			}
			if payload != "" && !json.Valid([]byte(payload)) {
				return fmt.Errorf("--payload is not valid JSON")
			}
			return withApp(func(a *app.App) error {
				res, err := a.Engine.Perform(cmd.Context(), engineCommand(domain.Action(args[0]), user, viper.GetString("project"), payload))
				if err != nil {
					return err
				}
				if res == nil {
					fmt.Println("ok")
					return nil
				}
				return printJSON(res)
			})
		},
	}
	cmd.Flags().StringVar(&payload, "payload", "", "JSON payload for the action")
	return cmd
}

// exitCode maps error kinds to distinct process exit codes so scripts can
// branch on them.
func exitCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		return 3
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrDependencyNotFound):
		return 4
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrCircularDependency):
		return 5
	case errors.Is(err, domain.ErrValidation):
		return 2
	case errors.Is(err, domain.ErrStorageUnavailable):
		return 75
	default:
		return 1
	}
}

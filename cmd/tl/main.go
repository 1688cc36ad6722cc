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

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"transline/internal/app"
	"transline/internal/config"
	"transline/internal/db"
	"transline/internal/engine"
	"transline/internal/logger"
	"transline/internal/proxy"
	"transline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tl",
	Short: "Transline CLI",
	Long: `Transline manages translation activities and the role processes working on them.
- Document: the source text of an activity, registered once per activity id.
- Process: the working record of one role (client, translator, reviewer) on a document.
- Only translators edit; every accepted edit saves the previous text so it can be undone.
- Completing a process locks it and marks the document completed.
- Event log: every operation is journaled, view with 'tl log tail'.`,
	SilenceUsage: true,
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
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TRANSLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "actor recorded in audit stamps and events")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(docCmd())
	rootCmd.AddCommand(processCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func docCmd() *cobra.Command {
	doc := &cobra.Command{Use: "doc", Short: "Manage activity documents"}
	doc.AddCommand(docCreateCmd())
	doc.AddCommand(docShowCmd())
	doc.AddCommand(docListCmd())
	return doc
}

func docCreateCmd() *cobra.Command {
	var req engine.DeployRequest
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register the document of an activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				d, err := a.Service.CreateDocument(ctx, req)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&req.ActivityID, "activity", "", "activity id")
	cmd.Flags().StringVar(&req.Text, "text", "", "source text")
	cmd.Flags().StringVar(&req.Instructions, "instructions", "", "instructions for the translator")
	cmd.Flags().StringVar(&req.LanguageFrom, "from", "", "source language")
	cmd.Flags().StringVar(&req.LanguageTo, "to", "", "target language")
	cmd.Flags().IntVar(&req.TimeLimitMinutes, "time-limit", 0, "time limit in minutes")
	cmd.Flags().IntVar(&req.TranslatorCount, "translators", 0, "expected number of translators")
	cmd.Flags().StringVar(&req.ReviewerAPIKey, "reviewer-key", "", "API key issued to the reviewer")
	_ = cmd.MarkFlagRequired("activity")
	return cmd
}

func docShowCmd() *cobra.Command {
	var activityID string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a document",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				d, ok := a.Engine.Store.FindDocument(activityID)
				if !ok {
					return fmt.Errorf("activity %s has no document", activityID)
				}
				return printJSONOrTable(d.Snapshot())
			})
		},
	}
	cmd.Flags().StringVar(&activityID, "activity", "", "activity id")
	_ = cmd.MarkFlagRequired("activity")
	return cmd
}

func docListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				docs := a.Engine.Store.Documents()
				if viper.GetBool("json") {
					return printJSON(docs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Activity", "From", "To", "Status", "Processes"})
				for _, d := range docs {
					tw.AppendRow(table.Row{d.ID, d.ActivityID, d.LanguageFrom, d.LanguageTo, d.Status,
						len(a.Engine.Store.Processes(d.ActivityID))})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func apiKeyCmd() *cobra.Command {
	keys := &cobra.Command{Use: "apikey", Short: "Manage reviewer API keys"}
	keys.AddCommand(apiKeyCreateCmd())
	return keys
}

func apiKeyCreateCmd() *cobra.Command {
	var activityID, raw string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a reviewer API key for an activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if _, ok := a.Engine.Store.FindDocument(activityID); !ok {
					return fmt.Errorf("activity %s has no document", activityID)
				}
				if raw == "" {
					raw = "tlk_" + uuid.NewString()
				}
				key, err := a.Keys.Register(ctx, activityID, raw)
				if err != nil {
					return err
				}
				// the raw key is only shown once
				return printJSONOrTable(map[string]any{
					"id":          key.ID,
					"activity_id": key.ActivityID,
					"user_id":     key.UserID,
					"key":         raw,
				})
			})
		},
	}
	cmd.Flags().StringVar(&activityID, "activity", "", "activity id")
	cmd.Flags().StringVar(&raw, "key", "", "key value (generated when empty)")
	_ = cmd.MarkFlagRequired("activity")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config lives in transline.yml at the workspace root: service URL, server address, audit defaults, identity cache and logging.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default transline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate transline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if file != "" {
				_, err = config.FromFile(file)
			} else {
				_, err = config.Load(viper.GetString("workspace"))
			}
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
	cmd.Flags().StringVar(&file, "file", "", "validate this file instead of the workspace config")
	return cmd
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Event log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var activityID, evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				evts, err := a.Repo.LatestEvents(ctx, n, activityID, evtType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Activity", "Role", "Actor", "Payload"})
				for _, e := range evts {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.ActivityID, e.Role, e.ActorID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&activityID, "activity", "", "activity filter")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = basePath
			}
			secret := viper.GetString("jwt_secret")
			if secret == "" && !cfg.Auth.AllowDevHeaders {
				return fmt.Errorf("TRANSLINE_JWT_SECRET is required for bearer auth")
			}
			log := logger.NewWithWriter(os.Stderr, cfg.Log.Level, cfg.Log.Format)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, err := app.Open(ctx, app.Options{Workspace: workspace, Config: cfg, Logger: log})
			if err != nil {
				return err
			}
			defer a.Close()

			handler, err := server.New(server.Config{
				Service:    a.Service,
				Events:     a.Repo,
				ServiceURL: cfg.Service.URL,
				BasePath:   cfg.Server.BasePath,
				Auth: server.AuthConfig{
					JWTSecret:       secret,
					AllowDevHeaders: cfg.Auth.AllowDevHeaders,
					Reviewers:       a.Reviewers,
				},
				Metrics: promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}),
				Logger:  log,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Info("serving transline api", "addr", cfg.Server.Addr, "base_path", cfg.Server.BasePath,
					"database", db.Path(workspace), "docs", "/docs", "metrics", "/metrics")
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
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address (overrides config)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path (overrides config)")
	return cmd
}

// --- helpers ---

// withApp opens the workspace, rehydrating documents and processes, for one command.
func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	log := logger.NewWithWriter(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	a, err := app.Open(ctx, app.Options{Workspace: workspace, Config: cfg, Logger: log})
	if err != nil {
		return err
	}
	defer a.Close()
	if actor := viper.GetString("actor-id"); actor != "" {
		ctx = proxy.WithActor(ctx, actor)
	}
	return fn(ctx, a)
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

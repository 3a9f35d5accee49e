package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"deckhand/internal/auth"
	"deckhand/internal/client"
	"deckhand/internal/config"
	"deckhand/internal/notify"
	"deckhand/internal/session"
	"deckhand/internal/snapshot"
	"deckhand/internal/templates"
	"deckhand/internal/tui"
	"deckhand/internal/version"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "deckhand",
	Short: "Deckhand - interactive client for the deck director service",
	Long: `Deckhand connects to the deck director service over WebSocket and
drives an AI-assisted presentation session from the terminal.

Run without arguments to start an interactive chat session.`,
	Version: version.Full(),
}

// chatCmd starts an interactive session against the director service
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive deck building session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat("")
	},
}

// newCmd starts a session seeded from a deck template
var newCmd = &cobra.Command{
	Use:   "new <template> <topic>",
	Short: "Start a session from a deck template",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		tpls, err := templates.LoadDir(cfg.Templates.Dir)
		if err != nil {
			return fmt.Errorf("failed to load templates: %w", err)
		}
		tpl, ok := templates.Find(tpls, args[0])
		if !ok {
			return fmt.Errorf("unknown template %q (have %d templates in %s)", args[0], len(tpls), cfg.Templates.Dir)
		}
		return runChat(tpl.Seed(args[1]))
	},
}

// templatesCmd lists the available deck templates
var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List available deck templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		tpls, err := templates.LoadDir(cfg.Templates.Dir)
		if err != nil {
			return err
		}
		if len(tpls) == 0 {
			fmt.Println("No templates found. Add .yaml files under", cfg.Templates.Dir)
			return nil
		}
		for _, t := range tpls {
			fmt.Printf("%-20s %s\n", t.Name, t.Description)
		}
		return nil
	},
}

// snapshotsCmd lists locally saved deck snapshots
var snapshotsCmd = &cobra.Command{
	Use:   "snapshots [presentation-id]",
	Short: "List saved deck snapshots",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		store, err := snapshot.Open(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open snapshot store: %w", err)
		}
		defer store.Close()

		presentationID := ""
		if len(args) == 1 {
			presentationID = args[0]
		}
		infos, err := store.List(context.Background(), presentationID, 50)
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Println("No snapshots saved yet.")
			return nil
		}
		for _, info := range infos {
			fmt.Printf("%-6d %-36s %3d slides  %s  %s\n",
				info.ID, info.PresentationID, info.SlideCount,
				info.SavedAt.Format("2006-01-02 15:04"), info.Title)
		}
		return nil
	},
}

// versionCmd shows build information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Deckhand %s\n", version.Full())
		fmt.Printf("Go version: %s\n", version.GoVersion)
		if version.BuildDate != "unknown" {
			fmt.Printf("Build date: %s\n", version.BuildDate)
		}
	},
}

var tokenCLIConfig = &auth.CLIConfig{}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigPath(), "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(snapshotsCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(auth.TokenRootCmd(tokenCLIConfig))

	// Default to chat when no subcommand is given
	rootCmd.RunE = chatCmd.RunE
}

func initConfig() {
	// Load .env early so ${ENV_VAR} expansion in the config file works
	_ = godotenv.Load()

	if cfg, err := config.Load(cfgFile); err == nil {
		tokenCLIConfig.DatabasePath = cfg.Database.Path
	} else {
		tokenCLIConfig.DatabasePath = config.Default().Database.Path
	}

	if verbose {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	} else {
		// Keep the TUI clean; logs go to a file when requested
		if f, err := os.OpenFile(filepath.Join(os.TempDir(), "deckhand.log"),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			log.SetOutput(f)
		}
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "deckhand.json"
	}
	return filepath.Join(home, ".deckhand", "config.json")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// buildSession wires the credential manager, connection client and
// snapshot store into a session per the loaded configuration. The
// returned cleanup closes everything in reverse order.
func buildSession(cfg *config.Config) (*session.Session, func(), error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	tokenStore, err := auth.OpenTokenStore(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open token store: %w", err)
	}

	httpClient := &http.Client{Timeout: 15 * time.Second}

	mgrOpts := []auth.ManagerOption{auth.WithStore(tokenStore)}
	if cfg.Auth.MaxAttempts > 0 {
		mgrOpts = append(mgrOpts, auth.WithMaxAttempts(cfg.Auth.MaxAttempts))
	}
	mgr := auth.NewManager(nil, mgrOpts...)

	// Source order: network endpoints first, then the session refresh
	// token, then the local cache, then the dev fallback. The session
	// source consults the manager for the current refresh token, so the
	// sources are added after construction.
	if cfg.Auth.ProxyURL != "" {
		mgr.AddSource(auth.NewProxySource(cfg.Auth.ProxyURL, cfg.Auth.UserID, httpClient))
	}
	if cfg.Auth.DirectURL != "" {
		mgr.AddSource(auth.NewDirectSource(cfg.Auth.DirectURL, cfg.Auth.UserID, httpClient))
	}
	if cfg.Auth.RefreshURL != "" {
		mgr.AddSource(auth.NewSessionSource(cfg.Auth.RefreshURL, mgr.RefreshTokenFunc(), httpClient))
	}
	mgr.AddSource(auth.NewStoredSource(tokenStore))
	if cfg.Auth.DevToken != "" {
		mgr.AddSource(auth.NewStaticSource(cfg.Auth.DevToken, time.Hour))
	}

	cl := client.NewClient(client.Config{
		URL:                  cfg.Service.URL,
		TokenFunc:            mgr.GetValidToken,
		MaxReconnectAttempts: cfg.Service.MaxReconnectAttempts,
		BaseReconnectDelay:   cfg.Service.BaseReconnectDelay(),
		MaxReconnectDelay:    cfg.Service.MaxReconnectDelay(),
		HeartbeatInterval:    cfg.Service.HeartbeatInterval(),
		RequestTimeout:       cfg.Service.RequestTimeout(),
	})

	var sessOpts []session.Option
	var snapStore *snapshot.Store
	var pruner *snapshot.Pruner
	if cfg.Snapshots.Enabled {
		snapStore, err = snapshot.NewStore(tokenStore.DB())
		if err != nil {
			tokenStore.Close()
			return nil, nil, fmt.Errorf("failed to open snapshot store: %w", err)
		}
		sessOpts = append(sessOpts, session.WithSnapshots(snapStore))

		pruner = snapshot.NewPruner(snapStore, cfg.Snapshots.Pruner)
		if err := pruner.Start(); err != nil {
			log.Printf("[Main] Snapshot pruner disabled: %v", err)
		}
	}

	sess := session.New(mgr, cl, sessOpts...)

	var detachNotify func()
	if cfg.Notify.Enabled {
		notifier, err := notify.New(cfg.Notify)
		if err != nil {
			log.Printf("[Main] Notifications disabled: %v", err)
		} else {
			detachNotify = notifier.Attach(sess)
		}
	}

	cleanup := func() {
		if detachNotify != nil {
			detachNotify()
		}
		if pruner != nil {
			pruner.Stop()
		}
		sess.Close()
		tokenStore.Close()
	}
	return sess, cleanup, nil
}

func runChat(seedPrompt string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sess, cleanup, err := buildSession(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = sess.Connect(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", cfg.Service.URL, err)
	}

	if seedPrompt != "" {
		// Connect returns before authentication finishes; the seed can
		// only go out once the session is ready.
		readyCtx, readyCancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = sess.WaitReady(readyCtx)
		readyCancel()
		if err != nil {
			return fmt.Errorf("session never became ready, template prompt not sent: %w", err)
		}

		sendCtx, sendCancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err = sess.SendMessage(sendCtx, seedPrompt, session.SendOptions{})
		sendCancel()
		if err != nil {
			log.Printf("[Main] Failed to send template prompt: %v", err)
		}
	}

	return tui.Run(sess)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

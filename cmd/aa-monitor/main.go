package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"aamonitor/internal/app"
	"aamonitor/internal/config"
	"aamonitor/internal/logging"
	"aamonitor/internal/tree"
)

// cli carries the state shared by every command; it is filled by the root
// command's PersistentPreRunE.
type cli struct {
	configFile string
	altScreen  bool

	loader *config.Loader
	cfg    *config.Config
	logger *zap.Logger
	app    *app.App
}

func newRootCmd() (*cobra.Command, *cli) {
	c := &cli{}
	root := &cobra.Command{
		Use:   "aa-monitor",
		Short: "Terminal dashboard for the Auto-Antigravity backend",
		Long: `aa-monitor watches a local Auto-Antigravity server: agents, quotas,
cache, auto-accept decisions and submitted tasks.

Without a subcommand it opens the interactive dashboard.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runTUI(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "config file (default ./aa-monitor.yaml or ~/.config/aa-monitor/aa-monitor.yaml)")
	flags.String("base-url", "", "backend base URL")
	flags.Duration("timeout", 0, "per-request timeout")
	flags.String("python", "", "python interpreter used to spawn the backend")
	flags.Bool("spawn", false, "spawn the backend server on startup")
	flags.String("backend-dir", "", "directory containing run.py")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.String("log-format", "", "json or console")
	flags.String("log-file", "", "log destination, stderr for the terminal")
	flags.String("metrics", "", "serve /metrics and /healthz on this address")
	root.Flags().BoolVar(&c.altScreen, "alt-screen", true, "run the dashboard in the alternate screen")

	root.AddCommand(
		c.statusCmd(),
		c.watchCmd(),
		c.dashboardCmd(),
		c.taskCmd(),
		c.cacheCmd(),
		c.agentsCmd(),
		c.autoAcceptCmd(),
		c.actionsCmd(),
		c.diagnosticsCmd(),
		c.healthCmd(),
		c.serverCmd(),
	)
	return root, c
}

func (c *cli) setup(cmd *cobra.Command) error {
	c.loader = config.NewLoader(c.configFile)
	if err := c.loader.BindFlags(cmd.Flags()); err != nil {
		return err
	}
	cfg, err := c.loader.Load()
	if err != nil {
		return err
	}
	c.cfg = cfg

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	if err != nil {
		return err
	}
	c.logger = logger
	if file := c.loader.ConfigFile(); file != "" {
		logger.Info("config loaded", zap.String("file", file))
	}

	c.app = app.New(cfg, logger, app.Options{})
	return c.app.Start(cmd.Context())
}

func (c *cli) teardown() error {
	if c.app == nil {
		return nil
	}
	return c.app.Close()
}

func (c *cli) runTUI(ctx context.Context) error {
	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithMouseCellMotion()}
	if c.altScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	p := tea.NewProgram(newModel(c.app), opts...)
	for _, provider := range []tree.Provider{c.app.Agents, c.app.Cache, c.app.Actions} {
		cancel := provider.Subscribe(func() { p.Send(treeChangedMsg{}) })
		defer cancel()
	}
	c.loader.Watch(
		func(cfg *config.Config) { p.Send(configReloadedMsg{cfg: cfg}) },
		func(err error) { p.Send(configErrorMsg{err: err}) },
	)
	_, err := p.Run()
	return err
}

// requestContext bounds one-shot commands by the configured API timeout plus
// slack for the follow-up refreshes.
func (c *cli) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, 3*c.cfg.API.Timeout+time.Second)
}

func main() {
	root, c := newRootCmd()
	err := root.ExecuteContext(context.Background())
	if closeErr := c.teardown(); err == nil {
		err = closeErr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "aa-monitor: %v\n", err)
		os.Exit(1)
	}
}

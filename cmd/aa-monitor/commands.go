package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"aamonitor/internal/api"
	"aamonitor/internal/app"
	"aamonitor/internal/backend"
	"aamonitor/internal/dashboard"
	"aamonitor/internal/refresh"
	"aamonitor/internal/tree"
)

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the one-line status summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.requestContext(cmd.Context())
			defer cancel()
			status, err := refresh.ComputeStatus(ctx, c.app.Client)
			if err != nil {
				c.logger.Debug("status computed with errors", zap.Error(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), status.Text)
			return nil
		},
	}
}

func (c *cli) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Poll headlessly and print update messages as JSON lines",
		Long: `watch runs the dashboard and refresh schedules without a terminal UI.
Every applied snapshot is written as an {"type":"update","data":{...}} line and
every status change as a {"type":"status",...} line. Stop with Ctrl+C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := &lineWriter{enc: json.NewEncoder(cmd.OutOrStdout())}
			loop := c.app.Loop(
				func(msg dashboard.Message) { out.write(msg) },
				func(s refresh.StatusBar) {
					out.write(struct {
						Type string `json:"type"`
						refresh.StatusBar
					}{"status", s})
				},
			)
			if err := loop.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			loop.Stop()
			return out.err
		},
	}
}

// lineWriter serializes JSON lines from the scheduler's goroutines.
type lineWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
	err error
}

func (w *lineWriter) write(v any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = w.enc.Encode(v)
	}
}

func (c *cli) dashboardCmd() *cobra.Command {
	var (
		asJSON bool
		width  int
	)
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Collect one snapshot and print the dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.requestContext(cmd.Context())
			defer cancel()
			out, err := c.app.Dispatch(ctx, dashboard.Message{Type: string(dashboard.IntentRefresh)})
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(dashboard.UpdateMessage(out.Snapshot))
			}
			fmt.Fprintln(cmd.OutOrStdout(), dashboard.Paint(dashboard.Render(out.Snapshot, time.Now()), width))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the update message instead of the painted view")
	cmd.Flags().IntVar(&width, "width", 80, "panel width")
	return cmd
}

func (c *cli) taskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "task <description...>",
		Short: "Submit a task to the orchestrator",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.requestContext(cmd.Context())
			defer cancel()
			out, err := c.app.Dispatch(ctx, dashboard.Message{
				Type:        string(dashboard.IntentExecuteTask),
				Description: strings.Join(args, " "),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Notice)
			return nil
		},
	}
}

func (c *cli) cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Show cache usage grouped by agent type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.requestContext(cmd.Context())
			defer cancel()
			if err := c.app.Cache.UpdateData(ctx); err != nil {
				return err
			}
			printTree(cmd.OutOrStdout(), c.app.Cache)
			return nil
		},
	}

	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every cache entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("%w: pass --yes to clear the whole cache", app.ErrConfirmationRequired)
			}
			return c.dispatchNotice(cmd, dashboard.Message{Type: string(dashboard.IntentClearCache), Confirm: true})
		},
	}
	clearCmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the deletion")

	cleanCmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove expired cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.dispatchNotice(cmd, dashboard.Message{Type: string(dashboard.IntentAutoCleanCache)})
		},
	}

	var agentType string
	entriesCmd := &cobra.Command{
		Use:   "entries",
		Short: "List cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.requestContext(cmd.Context())
			defer cancel()
			list, err := c.app.Client.CacheEntries(ctx, agentType)
			if err != nil {
				return err
			}
			printEntries(cmd.OutOrStdout(), list)
			return nil
		},
	}
	entriesCmd.Flags().StringVar(&agentType, "agent-type", "", "only entries of this agent type")

	cmd.AddCommand(clearCmd, cleanCmd, entriesCmd)
	return cmd
}

func (c *cli) agentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List agents with their task counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.requestContext(cmd.Context())
			defer cancel()
			if err := c.app.Agents.UpdateData(ctx); err != nil {
				return err
			}
			printTree(cmd.OutOrStdout(), c.app.Agents)
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "restart <name>",
		Short: "Restart one agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.dispatchNotice(cmd, dashboard.Message{Type: string(dashboard.IntentRestartAgent), Agent: args[0]})
		},
	})
	return cmd
}

func (c *cli) autoAcceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "auto-accept [toggle|on|off]",
		Short:     "Show or change the auto-accept switch",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"toggle", "on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.requestContext(cmd.Context())
			defer cancel()
			var (
				status api.AutoAcceptStatus
				err    error
			)
			switch {
			case len(args) == 0:
				status, err = c.app.Client.AutoAccept(ctx)
			case args[0] == "toggle":
				return c.dispatchNotice(cmd, dashboard.Message{Type: string(dashboard.IntentToggleAutoAccept)})
			default:
				status, err = c.app.Client.SetAutoAccept(ctx, args[0] == "on")
			}
			if err != nil {
				return err
			}
			panel := dashboard.Render(&dashboard.Snapshot{Connected: true, AutoAccept: &status}, time.Now()).AutoAccept
			fmt.Fprintf(cmd.OutOrStdout(), "Auto-Accept %s (traités %d, acceptés %d, rejetés %d)\n",
				onOff(panel.Enabled), panel.Processed, panel.Accepted, panel.Rejected)
			return nil
		},
	}
}

func (c *cli) actionsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "Show auto-accept statistics and recent decisions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.requestContext(cmd.Context())
			defer cancel()
			if limit <= 0 {
				if err := c.app.Actions.UpdateData(ctx); err != nil {
					return err
				}
				printTree(cmd.OutOrStdout(), c.app.Actions)
				return nil
			}
			actions, err := c.app.Client.RecentActions(ctx, limit)
			if err != nil {
				return err
			}
			for _, a := range actions {
				fmt.Fprintln(cmd.OutOrStdout(), formatItem(tree.ActionNode{Action: a}.Render(), 0))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "fetch this many recent actions instead of the default view")
	return cmd
}

func (c *cli) diagnosticsCmd() *cobra.Command {
	var (
		format string
		render bool
	)
	cmd := &cobra.Command{
		Use:   "diagnostics",
		Short: "Run the backend self-checks and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.requestContext(cmd.Context())
			defer cancel()
			out, err := c.app.Dispatch(ctx, dashboard.Message{Type: string(dashboard.IntentRunDiagnostics)})
			if err != nil {
				return err
			}
			text, err := app.FormatReport(*out.Diagnostics, format)
			if err != nil {
				return err
			}
			if render && strings.HasPrefix(strings.ToLower(format), "m") {
				text, err = renderMarkdown(text, 100)
				if err != nil {
					return err
				}
			}
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", app.FormatJSON, "json, yaml or markdown")
	cmd.Flags().BoolVar(&render, "render", true, "style markdown output for the terminal")
	return cmd
}

func (c *cli) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the backend answers its health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.requestContext(cmd.Context())
			defer cancel()
			health, err := c.app.Client.Health(ctx)
			if err != nil {
				return fmt.Errorf("%s: %w", api.ErrorKind(err), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", health.Status, nullCoalesce(health.Framework, "-"), nullCoalesce(health.Version, "-"))
			return nil
		},
	}
}

func (c *cli) serverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Run the backend server in the foreground until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if !c.app.Backend.Running() {
				if err := c.app.Backend.Start(ctx); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "server started from %s\n", c.app.Backend.Dir())
			<-ctx.Done()
			if err := c.app.Backend.Stop(); err != nil && !errors.Is(err, backend.ErrNotRunning) {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "server stopped")
			return nil
		},
	}
}

func (c *cli) dispatchNotice(cmd *cobra.Command, msg dashboard.Message) error {
	ctx, cancel := c.requestContext(cmd.Context())
	defer cancel()
	out, err := c.app.Dispatch(ctx, msg)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out.Notice)
	return nil
}

func printTree(w io.Writer, p tree.Provider) {
	for _, line := range treeLines(p, nil, 0, nil, nil) {
		fmt.Fprintln(w, line)
	}
}

func printEntries(w io.Writer, entries []api.CacheEntry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tAGENT\tFILES\tSIZE (MB)\tCREATED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\t%s\n",
			nullCoalesce(e.TaskID, "-"), nullCoalesce(e.AgentType, "unknown"), e.FileCount, e.TotalSizeMB, nullCoalesce(e.CreatedAt, "-"))
	}
	_ = tw.Flush()
}

func renderMarkdown(md string, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	return r.Render(md)
}

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/verte-zerg/pulse/internal/config"
	"github.com/verte-zerg/pulse/internal/historyui"
	"github.com/verte-zerg/pulse/internal/model"
	"github.com/verte-zerg/pulse/internal/stats"
	"github.com/verte-zerg/pulse/internal/store"
)

var (
	historyPlain       bool
	historyMode        string
	historySince       string
	historyLast        int
	historyCurveWindow int
	historyDelete      []string
	historyDB          string
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse past measurements",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().BoolVar(&historyPlain, "plain", false, "print a text report instead of the interactive view")
	cmd.Flags().StringVar(&historyMode, "mode", "", "mode filter (tap, camera or strap)")
	cmd.Flags().StringVar(&historySince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&historyLast, "last", 0, "limit to last N measurements")
	cmd.Flags().IntVar(&historyCurveWindow, "curve-window", defaultCurveWindow, "moving average window")
	cmd.Flags().StringSliceVar(&historyDelete, "delete", nil, "delete records by ID and exit")
	cmd.Flags().StringVar(&historyDB, "db", "", "history database (default: $XDG_DATA_HOME/pulse/pulse.db)")
	return cmd
}

func parseHistoryConfig() (model.HistoryConfig, error) {
	var filter model.RecordFilter
	if historyMode != "" {
		mode, err := model.ParseMode(historyMode)
		if err != nil {
			return model.HistoryConfig{}, fmt.Errorf("invalid --mode: %w", err)
		}
		filter.Mode = mode
	}
	if historySince != "" {
		parsed, err := time.ParseInLocation("2006-01-02", historySince, time.Local)
		if err != nil {
			return model.HistoryConfig{}, fmt.Errorf("invalid --since value: %w", err)
		}
		filter.Since = &parsed
	}
	if historyLast < 0 {
		return model.HistoryConfig{}, fmt.Errorf("--last must be >= 0")
	}
	filter.Last = historyLast
	if historyCurveWindow < 1 {
		return model.HistoryConfig{}, fmt.Errorf("--curve-window must be >= 1")
	}
	return model.HistoryConfig{Filter: filter, CurveWindow: historyCurveWindow}, nil
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := parseHistoryConfig()
	if err != nil {
		return err
	}

	storePath := historyDB
	if storePath == "" {
		storePath = config.DefaultDBPath()
	}
	st, err := store.Open(storePath)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	if len(historyDelete) > 0 {
		n, err := st.DeleteRecords(cmd.Context(), historyDelete...)
		if err != nil {
			return fmt.Errorf("failed to delete records: %w", err)
		}
		logErrf("Deleted %d of %d record(s)\n", n, len(historyDelete))
		return nil
	}

	stdout := cmd.OutOrStdout()
	interactive := false
	if f, ok := stdout.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}
	if historyPlain || !interactive {
		return printHistory(cmd.Context(), st, cfg)
	}

	program := tea.NewProgram(historyui.NewModel(st, cfg), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run history TUI: %w", err)
	}
	return nil
}

func printHistory(ctx context.Context, st *store.Store, cfg model.HistoryConfig) error {
	report, err := stats.BuildReport(ctx, st, cfg)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	width := 0
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		width = w
	}
	if err := report.Render(os.Stdout, width, false); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

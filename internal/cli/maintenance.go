package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lazypower/tmebrain/internal/retention"
)

var (
	cleanupCheck bool
	cleanupForce bool
	cleanupDays  int
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old history, cache and session rows",
	Long: "With --check, cleanup only runs when the database exceeds its size ceiling.\n" +
		"With --force, rows older than --days are deleted unconditionally.\n" +
		"Without either flag the current storage stats are printed.",
	RunE: runCleanup,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show storage usage",
	RunE:  runStats,
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupCheck, "check", false, "clean up only if over the size ceiling")
	cleanupCmd.Flags().BoolVar(&cleanupForce, "force", false, "clean up regardless of size")
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 0, "retention in days (default from config)")
	cleanupCmd.MarkFlagsMutuallyExclusive("check", "force")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, logger, false)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	switch {
	case cleanupCheck:
		res, err := a.brain.CheckStorage(cmd.Context())
		if err != nil {
			return err
		}
		if res == nil {
			fmt.Fprintln(out, "storage under limit, nothing to do")
			return nil
		}
		printCleanup(out, res)
	case cleanupForce:
		res, err := a.brain.ForceCleanup(cmd.Context(), cleanupDays)
		printCleanup(out, res)
		return err
	default:
		stats, err := a.brain.Stats(cmd.Context())
		if err != nil {
			return err
		}
		printStats(out, stats)
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, logger, false)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.brain.Stats(cmd.Context())
	if err != nil {
		return err
	}
	printStats(cmd.OutOrStdout(), stats)
	return nil
}

func printCleanup(w io.Writer, res *retention.CleanupResult) {
	if res == nil {
		return
	}
	fmt.Fprintf(w, "cutoff:          %s\n", res.Cutoff.Format(time.DateOnly))
	fmt.Fprintf(w, "conversations:   %s deleted\n", humanize.Comma(res.DeletedHistory))
	fmt.Fprintf(w, "cache entries:   %s deleted\n", humanize.Comma(res.DeletedCache))
	fmt.Fprintf(w, "sessions:        %s deleted\n", humanize.Comma(res.DeletedSessions))
	fmt.Fprintf(w, "size:            %s -> %s (freed %s)\n",
		humanize.IBytes(uint64(res.SizeBefore)),
		humanize.IBytes(uint64(res.SizeAfter)),
		humanize.IBytes(uint64(res.Freed)))
}

func printStats(w io.Writer, s *retention.Stats) {
	pct := 0.0
	if s.MaxBytes > 0 {
		pct = float64(s.FootprintBytes) / float64(s.MaxBytes) * 100
	}
	fmt.Fprintf(w, "size:            %s / %s (%.1f%%)\n",
		humanize.IBytes(uint64(s.FootprintBytes)), humanize.IBytes(uint64(s.MaxBytes)), pct)
	fmt.Fprintf(w, "conversations:   %s\n", humanize.Comma(s.History))
	fmt.Fprintf(w, "cache entries:   %s\n", humanize.Comma(s.Cache))
	fmt.Fprintf(w, "sessions:        %s\n", humanize.Comma(s.Sessions))
	fmt.Fprintf(w, "documents:       %s\n", humanize.Comma(s.Documents))
	if s.OldestHistory != nil {
		fmt.Fprintf(w, "oldest:          %s\n", s.OldestHistory.Format(time.DateOnly))
	}
	if s.NeedsCleanup {
		fmt.Fprintln(w, "status:          over limit, run `tmebrain cleanup --check`")
	}
}

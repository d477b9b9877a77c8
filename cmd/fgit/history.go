package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var historyLimit int

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent attempts and per-mirror success rates",
		Long: `Show the most recent clone, pull, push, fetch and download attempts and
how often each mirror has succeeded for you.`,
		Example: `  fgit history
  fgit history --limit 50`,
		Args: cobra.NoArgs,
		RunE: historyRun,
	}

	cmd.Flags().IntVar(&historyLimit, "limit", 20, "number of attempts to show (0 for all)")

	return cmd
}

func historyRun(cmd *cobra.Command, args []string) error {
	st := openHistory()
	if st == nil {
		return errors.New("history is unavailable")
	}
	defer st.Close()

	attempts, err := st.ListAttempts(historyLimit)
	if err != nil {
		return err
	}
	stats, err := st.MirrorStats()
	if err != nil {
		return err
	}

	if len(attempts) == 0 {
		fmt.Println("No attempts recorded.")
		return nil
	}

	fmt.Println("Recent Attempts")
	fmt.Println("===============")
	fmt.Println("")
	fmt.Printf("%-16s %-9s %-16s %-7s %8s  %s\n", "When", "Operation", "Route", "Result", "Took", "Repository")
	fmt.Println(strings.Repeat("-", 90))
	for _, a := range attempts {
		result := "ok"
		if !a.Success {
			result = fmt.Sprintf("exit %d", a.ExitCode)
		}
		fmt.Printf("%-16s %-9s %-16s %-7s %8s  %s\n",
			humanize.Time(a.StartTime),
			a.Operation,
			a.MirrorID,
			result,
			(time.Duration(a.DurationMS) * time.Millisecond).Round(100*time.Millisecond),
			a.Reference,
		)
	}
	fmt.Println("")

	fmt.Println("Routes")
	fmt.Println("======")
	fmt.Println("")
	fmt.Printf("%-16s %9s %9s %10s  %s\n", "Route", "Attempts", "Success", "Avg (ok)", "Last Success")
	fmt.Println(strings.Repeat("-", 70))
	for _, s := range stats {
		last := "never"
		if !s.LastSuccess.IsZero() {
			last = humanize.Time(s.LastSuccess)
		}
		fmt.Printf("%-16s %9d %8.0f%% %10s  %s\n",
			s.MirrorID,
			s.Attempts,
			100*float64(s.Successes)/float64(s.Attempts),
			(time.Duration(s.AvgDurationMS) * time.Millisecond).Round(100*time.Millisecond),
			last,
		)
	}
	fmt.Println("")

	return nil
}

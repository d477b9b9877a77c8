package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fastgit/fgit/internal/mirror"
)

var mirrorsRefresh bool

func newMirrorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirrors",
		Short: "Show the mirror ranking",
		Long: `Show reachable mirrors fastest first. The cached ranking is used while it
is less than an hour old; --refresh probes every mirror again and prints the
measured latencies.`,
		Example: `  fgit mirrors
  fgit mirrors --refresh`,
		Args: cobra.NoArgs,
		RunE: mirrorsRun,
	}

	cmd.Flags().BoolVar(&mirrorsRefresh, "refresh", false, "probe mirrors even if the cached ranking is fresh")

	return cmd
}

func mirrorsRun(cmd *cobra.Command, args []string) error {
	var (
		ids []string
		err error
	)
	if mirrorsRefresh {
		ids, err = newSelector(os.Stdout).Refresh(cmd.Context())
	} else {
		ids, err = newSelector(nil).Select(cmd.Context())
	}
	if err != nil {
		return err
	}

	if len(ids) == 0 {
		fmt.Println("No reachable mirrors.")
		return nil
	}

	fmt.Println("Mirror Ranking")
	fmt.Println("==============")
	fmt.Println("")
	fmt.Printf("%-4s %-16s %s\n", "#", "Mirror", "Base URL")
	fmt.Println(strings.Repeat("-", 70))
	for i, id := range ids {
		base := "(unknown)"
		if m, ok := mirror.Lookup(id); ok {
			base = m.BaseURL
		}
		fmt.Printf("%-4d %-16s %s\n", i+1, id, base)
	}
	fmt.Println("")

	return nil
}

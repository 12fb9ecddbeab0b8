package main

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wowkster/ping-the-internet/internal/slash16"
	"github.com/wowkster/ping-the-internet/internal/stats"
	"github.com/wowkster/ping-the-internet/internal/subnet"
)

type statsCmd struct{}

func newStatsCmd() *statsCmd {
	return &statsCmd{}
}

// Command builds the `pingsweep stats` subcommand, reproducing the
// three original_source/src/bin/stats.rs variants as one flag:
//   - no --only: walk whatever is already persisted under dataDir.
//   - --only a /8 (e.g. "1.x.x.x"): check every /16 under it, reporting
//     "NOT FOUND" for any that haven't been probed yet.
//   - --only a /16 (e.g. "1.2.x.x"): check that single /16.
func (c *statsCmd) Command() *cobra.Command {
	var dataDir string
	var only string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print a pipe-delimited table of persisted /16 results",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter *subnet.Subnet
			if only != "" {
				s, err := subnet.Parse(only)
				if err != nil {
					return err
				}
				filter = &s
			}

			rows, err := collectRows(dataDir, filter)
			if err != nil {
				return err
			}
			stats.WriteTable(cmd.OutOrStdout(), rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "./data", "directory persisted /16 results were written to")
	cmd.Flags().StringVar(&only, "only", "", "restrict to one /8 or /16, e.g. \"1.x.x.x\" or \"1.2.x.x\"")

	return cmd
}

// collectRows dispatches to walkPersisted (no filter, or a filter wider
// than a single /8) or checkRange (filter names a /8 or /16, so every
// candidate in range is checked and reported, present or not).
func collectRows(dataDir string, filter *subnet.Subnet) ([]stats.Row, error) {
	if filter != nil && filter.Mask() >= subnet.MaskA {
		return checkRange(dataDir, *filter)
	}
	return walkPersisted(dataDir)
}

// checkRange reads every /16 in filter's range (a single /16, or all 256
// under a /8), reporting RowNotFound for any that have no result file.
func checkRange(dataDir string, filter subnet.Subnet) ([]stats.Row, error) {
	var targets []subnet.Subnet
	if filter.Mask() >= subnet.MaskB {
		targets = []subnet.Subnet{filter}
	} else {
		a := filter.Octet(0)
		for b := 0; b < 256; b++ {
			target, err := subnet.New(uint32(a)<<24|uint32(b)<<16, subnet.MaskB)
			if err != nil {
				return nil, err
			}
			targets = append(targets, target)
		}
	}

	var rows []stats.Row
	for _, target := range targets {
		result, err := slash16.Read(dataDir, target)
		switch {
		case err == nil:
			rows = append(rows, stats.Row{Subnet: target, Kind: stats.RowCounted, Counts: stats.Reduce(result)})
		case errors.Is(err, slash16.ErrNotFound):
			rows = append(rows, stats.Row{Subnet: target, Kind: stats.RowNotFound})
		default:
			return nil, err
		}
	}
	return rows, nil
}

// walkPersisted lists every {a}/{b} file actually present under dataDir
// and reduces it; nothing is reported for /16s that haven't been probed,
// matching the "everything so far" stats.rs variant.
func walkPersisted(dataDir string) ([]stats.Row, error) {
	aEntries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var rows []stats.Row
	for _, aEntry := range aEntries {
		if !aEntry.IsDir() {
			continue
		}
		a, err := strconv.Atoi(aEntry.Name())
		if err != nil || a < 0 || a > 255 {
			continue
		}

		bEntries, err := os.ReadDir(filepath.Join(dataDir, aEntry.Name()))
		if err != nil {
			return nil, err
		}
		sort.Slice(bEntries, func(i, j int) bool { return bEntries[i].Name() < bEntries[j].Name() })

		for _, bEntry := range bEntries {
			b, err := strconv.Atoi(bEntry.Name())
			if err != nil || b < 0 || b > 255 {
				continue
			}

			target, err := subnet.New(uint32(a)<<24|uint32(b)<<16, subnet.MaskB)
			if err != nil {
				continue
			}

			result, err := slash16.Read(dataDir, target)
			if err != nil {
				return nil, err
			}
			rows = append(rows, stats.Row{Subnet: target, Kind: stats.RowCounted, Counts: stats.Reduce(result)})
		}
	}

	return rows, nil
}

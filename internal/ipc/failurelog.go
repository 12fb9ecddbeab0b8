package ipc

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wowkster/ping-the-internet/internal/metrics"
	"github.com/wowkster/ping-the-internet/internal/slash16"
	"github.com/wowkster/ping-the-internet/internal/subnet"
)

// appendFailureLog appends one "[<ISO8601 local>] <subnet>" line per
// all-Error /24 found in result to <dataDir>/failures.log, and reports
// how many lines were appended so the caller can weigh them against the
// fatal failure threshold.
//
// Grounded on original_source/ping-worker/src/file.rs's per-/24 failure
// append, adapted to Go's os.OpenFile append mode instead of a
// held-open file handle.
func appendFailureLog(dataDir string, target subnet.Subnet, result *slash16.Slash16Result) (int, error) {
	bad := result.AllErrorSlash24s()
	if len(bad) == 0 {
		return 0, nil
	}

	f, err := os.OpenFile(filepath.Join(dataDir, "failures.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("ipc: open failure log: %w", err)
	}
	defer f.Close()

	now := time.Now().Format("2006-01-02T15:04:05-07:00")
	for _, c := range bad {
		sub, err := subnet.New(target.Base()|uint32(c)<<8, subnet.MaskC)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(f, "[%s] %s\n", now, sub.Format()); err != nil {
			return len(bad), fmt.Errorf("ipc: write failure log: %w", err)
		}
	}
	metrics.AllErrorSlash24sTotal.Add(float64(len(bad)))
	return len(bad), nil
}

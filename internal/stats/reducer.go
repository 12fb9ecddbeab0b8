// Package stats reduces a completed /16 result down to summary counts
// and renders them as the sweep's pipe-delimited progress table.
//
// The reducer has no direct teacher analog; it is built from spec §4.8.
// The table renderer is grounded on
// controlplane/telemetry/internal/data/cli/internet.go's use of
// github.com/olekukonko/tablewriter.
package stats

import "github.com/wowkster/ping-the-internet/internal/slash16"

// Counts is the per-/16 reduction of a Slash16Result.
type Counts struct {
	Alive    uint32
	TimedOut uint32
	Errored  uint32
	Total    uint32
}

const addressesPerSlash24 = 256

// Reduce counts outcomes across every /24 of result. An absent /24 (nil
// entry, elided because every address in it timed out) contributes 256
// timeouts identically to a present /24 whose 256 outcomes are all
// Timeout; the reducer makes no distinction between the two.
func Reduce(result *slash16.Slash16Result) Counts {
	var c Counts
	for _, s24 := range result {
		if s24 == nil {
			c.TimedOut += addressesPerSlash24
			continue
		}
		for _, o := range s24 {
			switch {
			case o.IsSuccess():
				c.Alive++
			case o.IsTimeout():
				c.TimedOut++
			case o.IsError():
				c.Errored++
			}
		}
	}
	c.Total = c.Alive + c.TimedOut + c.Errored
	return c
}

// AlivePercent returns the percentage of addresses that answered, or 0
// if Total is 0.
func (c Counts) AlivePercent() float64 {
	if c.Total == 0 {
		return 0
	}
	return 100 * float64(c.Alive) / float64(c.Total)
}

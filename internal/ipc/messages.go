// Package ipc implements the master↔worker control protocol: a master
// process spawns N worker subprocesses, each reachable over its own
// unix-domain socket, and the two sides exchange a stream of
// JSON-encoded messages with no length prefix, relying on JSON's
// self-delimiting grammar to separate one message from the next.
//
// Grounded on client/doublezerod/internal/runtime/run.go (unix listener
// setup, chmod, deferred unlink) for the listener side, and
// e2e/internal/rpc/agent.go's constructor+lifecycle shape for the
// worker-process wrapper.
package ipc

import (
	"github.com/wowkster/ping-the-internet/internal/pingoutcome"
	"github.com/wowkster/ping-the-internet/internal/slash16"
)

// Slash32State mirrors progress.Slash32State's lifecycle, rendered as
// the wire's snake_case enum strings. It is a separate type from
// progress.Slash32State so the wire format doesn't couple to the
// renderer's internal numbering.
type Slash32State string

const (
	Slash32Reserved  Slash32State = "reserved"
	Slash32Scheduled Slash32State = "scheduled"
	Slash32Pending   Slash32State = "pending"
	Slash32Succeeded Slash32State = "succeeded"
	Slash32TimedOut  Slash32State = "timed_out"
	Slash32Errored   Slash32State = "errored"
)

// M2WMessage is anything a master may send to a worker. Exactly one of
// the embedded pointer fields is non-nil; json.Marshal/Unmarshal use
// struct tags rather than a discriminant field, matching the spec's
// "concatenated JSON values" framing (§4.7) where the decoder relies on
// structural shape, not an envelope.
type M2WMessage struct {
	Shutdown    *ShutdownMessage    `json:"shutdown,omitempty"`
	PingSlash16 *PingSlash16Message `json:"ping_slash16,omitempty"`
}

// ShutdownMessage tells the worker to wind down: finish or abandon any
// in-flight /16 (implementation-defined which) and exit 0.
type ShutdownMessage struct{}

// PingSlash16Message asks the worker to probe the /16 whose base is
// Addr (must have its low 16 bits zero).
type PingSlash16Message struct {
	Addr uint32 `json:"addr"`
}

// W2MMessage is anything a worker may send to the master.
type W2MMessage struct {
	Stats        *StatsMessage        `json:"stats,omitempty"`
	StateChanged *StateChangedMessage `json:"state_changed,omitempty"`
	Results      *ResultsMessage      `json:"results,omitempty"`
}

// StatsMessage is a periodic progress summary for the /16 the worker is
// currently probing.
type StatsMessage struct {
	Reserved                 uint32 `json:"reserved"`
	Scheduled                uint32 `json:"scheduled"`
	Pending                  uint32 `json:"pending"`
	Succeeded                uint32 `json:"succeeded"`
	TimedOut                 uint32 `json:"timed_out"`
	Errored                  uint32 `json:"errored"`
	ElapsedMillis            uint64 `json:"elapsed_ms"`
	EstimatedRemainingMillis uint64 `json:"estimated_remaining_ms"`
	EstimatedTotalMillis     uint64 `json:"estimated_total_ms"`
}

// StateChangedMessage announces a single /32's state transition. Addr
// is the full 32-bit address, not just the low two octets, so the
// master can route it to the correct grid cell without tracking which
// /16 each worker currently owns.
type StateChangedMessage struct {
	Addr  uint32       `json:"addr"`
	State Slash32State `json:"state"`
}

// ResultsMessage carries a completed /16's per-/24 outcomes, keyed by
// 3rd octet. Absent /24s are omitted (same elision rule as the on-disk
// format). Exactly one Results is sent per successfully probed
// PingSlash16; an all-timeout /16 sends an empty map.
type ResultsMessage struct {
	Slash24s map[uint8]Slash24Wire `json:"slash24s"`
}

// OutcomeWire is the JSON rendering of a pingoutcome.Outcome.
// pingoutcome.Outcome keeps its fields unexported (it is a binary wire
// type with its own self-delimiting encoding), so IPC carries this
// separate, JSON-tagged shadow of it instead.
type OutcomeWire struct {
	Tag      string `json:"tag"`
	RTTMillis uint16 `json:"rtt_ms,omitempty"`
}

const (
	outcomeTagSuccess = "success"
	outcomeTagTimeout = "timeout"
	outcomeTagError   = "error"
)

func outcomeToWire(o pingoutcome.Outcome) OutcomeWire {
	switch {
	case o.IsSuccess():
		return OutcomeWire{Tag: outcomeTagSuccess, RTTMillis: o.RTTMillis()}
	case o.IsTimeout():
		return OutcomeWire{Tag: outcomeTagTimeout}
	default:
		return OutcomeWire{Tag: outcomeTagError}
	}
}

func outcomeFromWire(w OutcomeWire) pingoutcome.Outcome {
	switch w.Tag {
	case outcomeTagSuccess:
		return pingoutcome.Success(uint32(w.RTTMillis))
	case outcomeTagTimeout:
		return pingoutcome.Timeout()
	default:
		return pingoutcome.Error()
	}
}

// Slash24Wire is the JSON rendering of a slash16.Slash24Result.
type Slash24Wire [256]OutcomeWire

func slash24ToWire(s *slash16.Slash24Result) Slash24Wire {
	var w Slash24Wire
	for i, o := range s {
		w[i] = outcomeToWire(o)
	}
	return w
}

func slash24FromWire(w Slash24Wire) *slash16.Slash24Result {
	var s slash16.Slash24Result
	for i, ow := range w {
		s[i] = outcomeFromWire(ow)
	}
	return &s
}

// NewResultsMessage builds a ResultsMessage from a probed /16's result,
// omitting any elided (all-timeout) /24 exactly as the on-disk codec does.
func NewResultsMessage(result *slash16.Slash16Result) ResultsMessage {
	m := ResultsMessage{Slash24s: make(map[uint8]Slash24Wire)}
	for i, s24 := range result {
		if s24 == nil {
			continue
		}
		m.Slash24s[uint8(i)] = slash24ToWire(s24)
	}
	return m
}

// ToSlash16Result reconstructs a *slash16.Slash16Result from a received
// ResultsMessage.
func (m ResultsMessage) ToSlash16Result() *slash16.Slash16Result {
	result := &slash16.Slash16Result{}
	for i, w := range m.Slash24s {
		result[i] = slash24FromWire(w)
	}
	return result
}

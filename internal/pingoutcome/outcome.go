// Package pingoutcome defines the per-address ping result and its
// self-delimiting binary encoding, grounded on the fixed-width framing
// style of the ICMP echo packets in tools/uping (big-endian header
// fields, no length prefix needed because the tag determines the
// follow-up length).
package pingoutcome

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Tag identifies the encoded variant of an Outcome.
type Tag byte

const (
	TagSuccess Tag = 0x00
	TagTimeout Tag = 0x01
	TagError   Tag = 0x02
)

// maxRTTMillis is the saturation point for Success RTTs: values at or
// above this are clamped to 0xFFFF on encode.
const maxRTTMillis = 0xFFFF

// ErrCorrupt is returned by Decode when the tag byte is not recognized.
var ErrCorrupt = errors.New("pingoutcome: corrupt outcome: unknown tag")

// Outcome is a tagged variant: Success(rtt), Timeout, or Error.
type Outcome struct {
	tag Tag
	rtt uint16 // valid only when tag == TagSuccess
}

// Success constructs a Success outcome, saturating rtt to 65535ms.
func Success(rttMillis uint32) Outcome {
	if rttMillis > maxRTTMillis {
		rttMillis = maxRTTMillis
	}
	return Outcome{tag: TagSuccess, rtt: uint16(rttMillis)}
}

// Timeout constructs a Timeout outcome.
func Timeout() Outcome { return Outcome{tag: TagTimeout} }

// Error constructs an Error outcome.
func Error() Outcome { return Outcome{tag: TagError} }

// Tag returns the outcome's variant tag.
func (o Outcome) Tag() Tag { return o.tag }

// IsSuccess reports whether o is a Success variant.
func (o Outcome) IsSuccess() bool { return o.tag == TagSuccess }

// IsTimeout reports whether o is a Timeout variant.
func (o Outcome) IsTimeout() bool { return o.tag == TagTimeout }

// IsError reports whether o is an Error variant.
func (o Outcome) IsError() bool { return o.tag == TagError }

// RTTMillis returns the round-trip time in milliseconds. Only meaningful
// when IsSuccess() is true.
func (o Outcome) RTTMillis() uint16 { return o.rtt }

// EncodedLen returns the number of bytes Encode will append for o.
func EncodedLen(o Outcome) int {
	if o.tag == TagSuccess {
		return 3
	}
	return 1
}

// Encode appends the binary encoding of o to dst and returns the result.
func Encode(dst []byte, o Outcome) []byte {
	switch o.tag {
	case TagSuccess:
		dst = append(dst, byte(TagSuccess))
		var buf [2]byte
		binary.LittleEndian.PutUint16(buf[:], o.rtt)
		return append(dst, buf[:]...)
	case TagTimeout:
		return append(dst, byte(TagTimeout))
	case TagError:
		return append(dst, byte(TagError))
	default:
		panic(fmt.Sprintf("pingoutcome: encode: invalid tag %d", o.tag))
	}
}

// Decode reads one self-delimiting Outcome from the front of src, returning
// the outcome and the number of bytes consumed. It fails with ErrCorrupt if
// the tag byte is unrecognized, or a truncation error if src is too short
// for the tag's follow-up length.
func Decode(src []byte) (Outcome, int, error) {
	if len(src) < 1 {
		return Outcome{}, 0, fmt.Errorf("pingoutcome: decode: empty input")
	}
	switch Tag(src[0]) {
	case TagSuccess:
		if len(src) < 3 {
			return Outcome{}, 0, fmt.Errorf("pingoutcome: decode: truncated success outcome")
		}
		rtt := binary.LittleEndian.Uint16(src[1:3])
		return Outcome{tag: TagSuccess, rtt: rtt}, 3, nil
	case TagTimeout:
		return Outcome{tag: TagTimeout}, 1, nil
	case TagError:
		return Outcome{tag: TagError}, 1, nil
	default:
		return Outcome{}, 0, fmt.Errorf("%w: 0x%02x", ErrCorrupt, src[0])
	}
}

//go:build linux

// Package rawicmp is a minimal multiplexed ICMP echo transport: one raw
// AF_INET/SOCK_RAW/IPPROTO_ICMP socket shared across many concurrent
// in-flight echoes, demultiplexed by (identifier, sequence). It exists
// because the sweep needs process-wide shared identifier/sequence counters
// and a retry policy that distinguishes "timed out" from "transport
// error" at the granularity of a single attempt (spec §4.4) — properties
// a higher-level pinger library (one socket/one sequence counter per
// pinger) cannot expose at the scale of up to 1024 concurrent probes.
//
// Grounded on tools/uping/pkg/uping/sender.go (raw socket setup,
// checksum, header framing) and listener.go (non-blocking poll loop,
// eventfd-based cancellation), adapted from "one outstanding probe per
// socket" into "many outstanding probes demuxed by id+seq over one
// socket".
package rawicmp

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// ErrTimeout is returned by SendEcho when no reply arrives before the
// deadline. It is distinct from a transport error: the spec only retries
// on transport error, never on timeout.
var ErrTimeout = errors.New("rawicmp: timeout waiting for echo reply")

const (
	icmpEchoRequest = 8
	icmpEchoReply   = 0
	recvBufSize     = 65535
	pollIdleMillis  = 250
)

// Counters holds the process-wide shared identifier/sequence state the
// spec requires (§4.4, §9): both fields are monotonically increasing
// atomic 16-bit values, wrapping on overflow, shared across every probe
// in the worker process.
type Counters struct {
	id  atomic.Uint32
	seq atomic.Uint32
}

// NewCounters seeds the identifier with seed, so worker processes on the
// same host seeded differently start from different identifiers; the
// sequence always starts at zero.
func NewCounters(seed uint16) *Counters {
	c := &Counters{}
	c.id.Store(uint32(seed))
	return c
}

// NextID returns the next 16-bit identifier, wrapping on overflow.
func (c *Counters) NextID() uint16 { return uint16(c.id.Add(1)) }

// NextSeq returns the next 16-bit sequence number, wrapping on overflow.
func (c *Counters) NextSeq() uint16 { return uint16(c.seq.Add(1)) }

type waiter struct {
	ch     chan time.Duration
	sentAt time.Time
}

// Socket is a single raw ICMP socket multiplexed across many outstanding
// echoes.
type Socket struct {
	fd   int
	efd  int // eventfd used to interrupt the poll loop on Close
	wg   sync.WaitGroup
	once sync.Once

	mu      sync.Mutex
	waiters map[uint32]*waiter // key: uint32(id)<<16 | uint32(seq)
}

// Open creates a raw ICMP socket and starts its receive loop in the
// background. Call Close to stop the loop and release the socket. Opening
// this socket requires CAP_NET_RAW (or root).
func Open() (*Socket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW, unix.IPPROTO_ICMP)
	if err != nil {
		return nil, fmt.Errorf("rawicmp: open socket: %w", err)
	}
	ok := false
	defer func() {
		if !ok {
			_ = unix.Close(fd)
		}
	}()

	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("rawicmp: set nonblock: %w", err)
	}

	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("rawicmp: eventfd: %w", err)
	}

	s := &Socket{
		fd:      fd,
		efd:     efd,
		waiters: make(map[uint32]*waiter),
	}
	ok = true

	s.wg.Add(1)
	go s.recvLoop()
	return s, nil
}

// Close stops the receive loop and closes the socket. Idempotent.
func (s *Socket) Close() error {
	s.once.Do(func() {
		var one [8]byte
		binary.LittleEndian.PutUint64(one[:], 1)
		_, _ = unix.Write(s.efd, one[:])
		s.wg.Wait()
		_ = unix.Close(s.fd)
		_ = unix.Close(s.efd)
	})
	return nil
}

func waiterKey(id, seq uint16) uint32 {
	return uint32(id)<<16 | uint32(seq)
}

// SendEcho transmits a single ICMP echo request to dst with the given
// identifier and sequence, and waits up to timeout for the matching
// reply. It returns the round-trip time on success, ErrTimeout if no
// reply arrives in time, or a transport error if the send itself failed.
// Per spec, only the transport-error case should trigger caller-side
// retries.
func (s *Socket) SendEcho(ctx context.Context, dst net.IP, id, seq uint16, timeout time.Duration) (time.Duration, error) {
	dst4 := dst.To4()
	if dst4 == nil {
		return 0, fmt.Errorf("rawicmp: send: %s is not an IPv4 address", dst)
	}

	key := waiterKey(id, seq)
	w := &waiter{ch: make(chan time.Duration, 1)}

	s.mu.Lock()
	s.waiters[key] = w
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.waiters, key)
		s.mu.Unlock()
	}()

	pkt := buildEchoRequest(id, seq)
	addr := &unix.SockaddrInet4{Addr: [4]byte{dst4[0], dst4[1], dst4[2], dst4[3]}}

	w.sentAt = time.Now()
	if err := unix.Sendto(s.fd, pkt, 0, addr); err != nil {
		return 0, fmt.Errorf("rawicmp: sendto %s: %w", dst, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case rtt := <-w.ch:
		return rtt, nil
	case <-timer.C:
		return 0, ErrTimeout
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (s *Socket) recvLoop() {
	defer s.wg.Done()

	buf := make([]byte, recvBufSize)
	pfds := []unix.PollFd{
		{Fd: int32(s.fd), Events: unix.POLLIN},
		{Fd: int32(s.efd), Events: unix.POLLIN},
	}

	for {
		n, err := unix.Poll(pfds, pollIdleMillis)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return
		}
		if pfds[1].Revents&unix.POLLIN != 0 {
			return
		}
		if n == 0 || pfds[0].Revents&(unix.POLLIN|unix.POLLERR) == 0 {
			continue
		}

		nr, _, err := unix.Recvfrom(s.fd, buf, 0)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR) {
				continue
			}
			continue
		}

		receivedAt := time.Now()
		id, seq, ok := parseEchoReply(buf[:nr])
		if !ok {
			continue
		}

		s.mu.Lock()
		w, found := s.waiters[waiterKey(id, seq)]
		s.mu.Unlock()
		if !found {
			continue
		}

		select {
		case w.ch <- receivedAt.Sub(w.sentAt):
		default:
		}
	}
}

// buildEchoRequest constructs an 8-byte ICMP echo request (no payload)
// with a valid checksum.
func buildEchoRequest(id, seq uint16) []byte {
	pkt := make([]byte, 8)
	pkt[0] = icmpEchoRequest
	pkt[1] = 0
	binary.BigEndian.PutUint16(pkt[4:], id)
	binary.BigEndian.PutUint16(pkt[6:], seq)
	binary.BigEndian.PutUint16(pkt[2:], checksum(pkt))
	return pkt
}

// parseEchoReply extracts (id, seq) from a raw IPv4 packet containing an
// ICMP echo reply, verifying the IP/ICMP framing and checksum. It returns
// ok=false for anything else (non-ICMP, non-echo-reply, malformed,
// checksum mismatch).
func parseEchoReply(pkt []byte) (id, seq uint16, ok bool) {
	if len(pkt) < 20 || pkt[0]>>4 != 4 {
		return 0, 0, false
	}
	ihl := int(pkt[0]&0x0F) * 4
	if ihl < 20 || len(pkt) < ihl+8 {
		return 0, 0, false
	}
	if pkt[9] != 1 { // protocol != ICMP
		return 0, 0, false
	}
	icmp := pkt[ihl:]
	if icmp[0] != icmpEchoReply || icmp[1] != 0 {
		return 0, 0, false
	}
	if checksum(icmp) != 0 {
		return 0, 0, false
	}
	return binary.BigEndian.Uint16(icmp[4:6]), binary.BigEndian.Uint16(icmp[6:8]), true
}

// checksum computes the standard Internet checksum (RFC 1071) over b.
func checksum(b []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(b); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(b[i:]))
	}
	if len(b)%2 == 1 {
		sum += uint32(b[len(b)-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}

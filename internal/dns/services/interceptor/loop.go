// Package interceptor runs the packet loop between the virtual interface and
// the blocklist. Every packet read is either written back unchanged or, when
// it carries a DNS query for a blocked name, silently dropped.
package interceptor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/haukened/rr-shield/internal/dns/common/log"
	"github.com/haukened/rr-shield/internal/dns/common/metrics"
	"github.com/haukened/rr-shield/internal/dns/common/names"
	"github.com/haukened/rr-shield/internal/dns/domain"
	"github.com/haukened/rr-shield/internal/dns/gateways/packet"
	"github.com/haukened/rr-shield/internal/dns/gateways/tun"
	"github.com/haukened/rr-shield/internal/dns/gateways/wire"
	"github.com/haukened/rr-shield/internal/dns/repos/blocklist"
)

const (
	// DefaultBufferSize holds the largest possible IPv4 datagram.
	DefaultBufferSize = 65535
	// MinBufferSize is the smallest datagram every IPv4 host must accept.
	MinBufferSize = 576
)

// ErrAlreadyRunning is returned by Run when the loop is already running.
var ErrAlreadyRunning = errors.New("interceptor: loop already running")

// Options configures a Loop. Device and Blocklist are required.
type Options struct {
	Device     tun.Device
	Blocklist  blocklist.Blocklist
	Logger     log.Logger
	Metrics    metrics.Observer
	BufferSize int
}

// Loop owns one interception session: the read buffer, the running flag and
// the blocked-query counter. A Loop runs at most once.
type Loop struct {
	dev     tun.Device
	list    blocklist.Blocklist
	logger  log.Logger
	metrics metrics.Observer
	buf     []byte

	running   atomic.Bool
	started   atomic.Bool
	blocked   atomic.Uint64
	packets   atomic.Uint64
	closeOnce sync.Once
	closeErr  error
}

// New builds a Loop in the running state. Run must be called to start
// processing packets.
func New(opts Options) *Loop {
	size := opts.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	list := opts.Blocklist
	if list == nil {
		list = blocklist.NoopBlocklist{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	obs := opts.Metrics
	if obs == nil {
		obs = metrics.Nop{}
	}
	l := &Loop{
		dev:     opts.Device,
		list:    list,
		logger:  logger,
		metrics: obs,
		buf:     make([]byte, size),
	}
	l.running.Store(true)
	return l
}

// Run reads packets until the loop is halted, ctx is cancelled or the
// device fails. Halting and cancellation return nil; I/O failures while the
// loop is still meant to be running are returned wrapped. The device is
// closed when Run returns.
func (l *Loop) Run(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer l.Halt()

	stop := context.AfterFunc(ctx, func() { l.Halt() })
	defer stop()

	l.logger.Debug(map[string]any{"buffer": len(l.buf)}, "Interception loop started")
	for l.running.Load() {
		n, err := l.dev.Read(l.buf)
		if err != nil {
			if l.stopping(ctx) {
				break
			}
			return fmt.Errorf("read %s: %w", l.dev.Name(), err)
		}
		if n <= 0 {
			continue
		}
		if err := l.process(l.buf[:n]); err != nil {
			if l.stopping(ctx) {
				break
			}
			return err
		}
	}
	l.logger.Debug(map[string]any{"packets": l.packets.Load(), "blocked": l.blocked.Load()}, "Interception loop stopped")
	return nil
}

// Halt clears the running flag and closes the device, which unblocks a read
// in progress. It is safe to call more than once and from any goroutine.
func (l *Loop) Halt() error {
	l.running.Store(false)
	l.closeOnce.Do(func() { l.closeErr = l.dev.Close() })
	return l.closeErr
}

// BlockedCount is the number of queries dropped in this session.
func (l *Loop) BlockedCount() uint64 { return l.blocked.Load() }

// Packets is the number of non-empty packets read in this session.
func (l *Loop) Packets() uint64 { return l.packets.Load() }

func (l *Loop) stopping(ctx context.Context) bool {
	return !l.running.Load() || ctx.Err() != nil
}

// process writes pkt back to the device unless it must be dropped.
func (l *Loop) process(pkt []byte) error {
	l.packets.Add(1)
	class, verdict := l.inspect(pkt)
	l.metrics.ObservePacket(class, verdict)
	if verdict == domain.Drop {
		return nil
	}
	if _, err := l.dev.Write(pkt); err != nil {
		return fmt.Errorf("write %s: %w", l.dev.Name(), err)
	}
	return nil
}

// inspect decides what happens to one packet. A panic while inspecting
// resolves to Forward.
func (l *Loop) inspect(pkt []byte) (class domain.PacketClass, verdict domain.Verdict) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error(map[string]any{"panic": r, "length": len(pkt)}, "Recovered while inspecting packet")
			verdict = domain.Forward
		}
	}()

	c := packet.Classify(pkt, len(pkt))
	if c.Class != domain.ClassIPv4UDP || !c.DNSEligible {
		return c.Class, domain.Forward
	}
	name, ok := wire.ExtractQueryName(pkt, c.PayloadOffset)
	if !ok || name == "" {
		return c.Class, domain.Forward
	}
	d := l.list.Decide(name)
	if !d.IsBlocked() {
		return c.Class, domain.Forward
	}
	total := l.blocked.Add(1)
	l.logger.Info(map[string]any{
		"name":    name,
		"domain":  names.RegistrableDomain(name),
		"rule":    d.MatchedRule,
		"blocked": total,
	}, "Blocking domain")
	return c.Class, d.Verdict()
}

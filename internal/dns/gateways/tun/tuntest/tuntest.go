// Package tuntest provides an in-memory tun.Device for tests.
package tuntest

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"

	"github.com/haukened/rr-shield/internal/dns/gateways/tun"
)

// Device is a duplex packet buffer. Packets queued with Inject are returned
// by Read one at a time; everything passed to Write is recorded. Close
// unblocks pending reads with os.ErrClosed.
type Device struct {
	name string

	in     chan []byte
	closed chan struct{}
	once   sync.Once

	failed   chan struct{}
	failOnce sync.Once

	mu       sync.Mutex
	written  [][]byte
	writeErr error
	readErr  error
	wrote    chan struct{}

	reads      atomic.Int64
	closeCalls atomic.Int64
}

// NewDevice returns a Device with room for buffer queued packets.
func NewDevice(name string, buffer int) *Device {
	return &Device{
		name:   name,
		in:     make(chan []byte, buffer),
		closed: make(chan struct{}),
		failed: make(chan struct{}),
		wrote:  make(chan struct{}, 1024),
	}
}

// Inject queues pkt for a future Read. It copies pkt.
func (d *Device) Inject(pkt []byte) {
	d.in <- append([]byte(nil), pkt...)
}

// FailReads makes Read return err once the queued packets are drained.
func (d *Device) FailReads(err error) {
	d.mu.Lock()
	d.readErr = err
	d.mu.Unlock()
	d.failOnce.Do(func() { close(d.failed) })
}

// FailWrites makes every subsequent Write return err.
func (d *Device) FailWrites(err error) {
	d.mu.Lock()
	d.writeErr = err
	d.mu.Unlock()
}

func (d *Device) Read(p []byte) (int, error) {
	d.reads.Add(1)
	for {
		select {
		case <-d.closed:
			return 0, os.ErrClosed
		default:
		}
		select {
		case pkt := <-d.in:
			return copy(p, pkt), nil
		default:
		}
		d.mu.Lock()
		err := d.readErr
		d.mu.Unlock()
		if err != nil {
			return 0, err
		}
		select {
		case pkt := <-d.in:
			return copy(p, pkt), nil
		case <-d.closed:
			return 0, os.ErrClosed
		case <-d.failed:
		}
	}
}

func (d *Device) Write(p []byte) (int, error) {
	select {
	case <-d.closed:
		return 0, os.ErrClosed
	default:
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writeErr != nil {
		return 0, d.writeErr
	}
	d.written = append(d.written, append([]byte(nil), p...))
	select {
	case d.wrote <- struct{}{}:
	default:
	}
	return len(p), nil
}

func (d *Device) Close() error {
	d.closeCalls.Add(1)
	d.once.Do(func() { close(d.closed) })
	return nil
}

func (d *Device) Name() string { return d.name }

// Written returns a copy of every packet written so far.
func (d *Device) Written() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.written))
	copy(out, d.written)
	return out
}

// Wrote fires once per successful Write, up to its buffer size.
func (d *Device) Wrote() <-chan struct{} { return d.wrote }

// Closed reports whether Close has been called.
func (d *Device) Closed() bool {
	select {
	case <-d.closed:
		return true
	default:
		return false
	}
}

// CloseCalls reports how many times Close was called.
func (d *Device) CloseCalls() int { return int(d.closeCalls.Load()) }

// Reads reports how many times Read was called.
func (d *Device) Reads() int { return int(d.reads.Load()) }

// Establisher hands out Devices and records every request. Err, when set,
// is returned instead of a device.
type Establisher struct {
	mu      sync.Mutex
	Err     error
	devices []*Device
	configs []tun.Config
}

// ErrDenied mimics a host refusing the interface.
var ErrDenied = errors.New("tuntest: permission denied")

func (e *Establisher) Establish(ctx context.Context, cfg tun.Config) (tun.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.configs = append(e.configs, cfg)
	if e.Err != nil {
		return nil, e.Err
	}
	dev := NewDevice(cfg.Name, 64)
	e.devices = append(e.devices, dev)
	return dev, nil
}

// Devices returns every device handed out so far.
func (e *Establisher) Devices() []*Device {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Device(nil), e.devices...)
}

// Last returns the most recent device, or nil.
func (e *Establisher) Last() *Device {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.devices) == 0 {
		return nil
	}
	return e.devices[len(e.devices)-1]
}

// Calls reports how many times Establish was called.
func (e *Establisher) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.configs)
}

// Configs returns every config passed to Establish.
func (e *Establisher) Configs() []tun.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]tun.Config(nil), e.configs...)
}

var _ tun.Device = (*Device)(nil)
var _ tun.Establisher = (*Establisher)(nil)

//go:build linux

package tun

import (
	"errors"

	wgtun "golang.zx2c4.com/wireguard/tun"

	"github.com/haukened/rr-shield/internal/dns/common/log"
)

const (
	// packetOffset leaves headroom in front of every packet for the
	// virtio header wireguard-go reads and writes on offload-capable
	// kernels.
	packetOffset = 16
	// maxPacketSize is the largest IPv4 datagram.
	maxPacketSize = 65535
)

// batchDevice adapts a wireguard-go device, which moves packets in batches,
// to the one-packet Device contract. A single Read may pull several packets
// from the kernel; they are handed out one per call. Read and Write must be
// called from one goroutine, which is how the interception loop uses them.
type batchDevice struct {
	dev    wgtun.Device
	name   string
	logger log.Logger

	bufs  [][]byte
	sizes []int
	next  int
	count int
	err   error // returned once the pending packets are drained

	out [][]byte
}

func newBatchDevice(dev wgtun.Device, name string, logger log.Logger) *batchDevice {
	batch := dev.BatchSize()
	if batch < 1 {
		batch = 1
	}
	d := &batchDevice{
		dev:    dev,
		name:   name,
		logger: logger,
		bufs:   make([][]byte, batch),
		sizes:  make([]int, batch),
		out:    [][]byte{make([]byte, packetOffset, packetOffset+maxPacketSize)},
	}
	for i := range d.bufs {
		d.bufs[i] = make([]byte, packetOffset+maxPacketSize)
	}
	go d.watch()
	return d
}

// Read copies the next packet into p, truncating it if p is too short.
func (d *batchDevice) Read(p []byte) (int, error) {
	for d.next == d.count {
		if d.err != nil {
			err := d.err
			d.err = nil
			return 0, err
		}
		n, err := d.dev.Read(d.bufs, d.sizes, packetOffset)
		d.next, d.count = 0, n
		switch {
		case errors.Is(err, wgtun.ErrTooManySegments):
			d.logger.Warn(map[string]any{"iface": d.name, "packets": n}, "Dropped segments beyond read batch")
		case err != nil:
			d.err = err
		}
	}
	i := d.next
	d.next++
	return copy(p, d.bufs[i][packetOffset:packetOffset+d.sizes[i]]), nil
}

// Write sends p as a batch of one.
func (d *batchDevice) Write(p []byte) (int, error) {
	d.out[0] = append(d.out[0][:packetOffset], p...)
	if _, err := d.dev.Write(d.out, packetOffset); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close releases the device; a Read blocked in the kernel returns an error.
func (d *batchDevice) Close() error { return d.dev.Close() }

func (d *batchDevice) Name() string { return d.name }

// watch drains link events until the device closes its event channel.
func (d *batchDevice) watch() {
	for ev := range d.dev.Events() {
		switch {
		case ev&wgtun.EventDown != 0:
			d.logger.Warn(map[string]any{"iface": d.name}, "Virtual interface went down")
		case ev&wgtun.EventUp != 0:
			d.logger.Debug(map[string]any{"iface": d.name}, "Virtual interface up")
		case ev&wgtun.EventMTUUpdate != 0:
			mtu, err := d.dev.MTU()
			if err != nil {
				d.logger.Warn(map[string]any{"iface": d.name, "error": err.Error()}, "Failed to read MTU")
				continue
			}
			d.logger.Info(map[string]any{"iface": d.name, "mtu": mtu}, "Virtual interface MTU changed")
		}
	}
}

var _ Device = (*batchDevice)(nil)

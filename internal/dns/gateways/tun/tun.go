// Package tun establishes the virtual network interface the interception
// loop reads from. The core only ever sees a Device: read one packet, write
// one packet back.
package tun

import (
	"context"
	"errors"
	"io"
)

// ErrUnsupported is returned by Establish on platforms without TUN support.
var ErrUnsupported = errors.New("tun: virtual interface not supported on this platform")

// Config describes the interface the host glue asks for.
type Config struct {
	// Name is the requested interface name; empty lets the kernel choose.
	Name string
	// Address is the local tunnel address in CIDR form, e.g. 10.0.0.2/32.
	Address string
	// Route is the destination captured by the interface, e.g. 0.0.0.0/0.
	// Empty installs no route.
	Route string
	// RouteMetric is the route priority; a non-zero metric lets the
	// capture route coexist with an existing default route.
	RouteMetric int
	// DNS lists the resolvers the host advertises for the tunnel.
	DNS []string
	// MTU of the interface; zero means 1500.
	MTU int
}

// Device is a raw IPv4 packet source and sink. Each Read returns at most one
// packet; each Write sends exactly one. Close must unblock a pending Read.
type Device interface {
	io.ReadWriteCloser
	Name() string
}

// Establisher creates Devices.
type Establisher interface {
	Establish(ctx context.Context, cfg Config) (Device, error)
}

// EstablisherFunc adapts a function to Establisher.
type EstablisherFunc func(ctx context.Context, cfg Config) (Device, error)

func (f EstablisherFunc) Establish(ctx context.Context, cfg Config) (Device, error) {
	return f(ctx, cfg)
}

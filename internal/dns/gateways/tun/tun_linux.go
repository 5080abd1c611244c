//go:build linux

package tun

import (
	"context"
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
	wgtun "golang.zx2c4.com/wireguard/tun"

	"github.com/haukened/rr-shield/internal/dns/common/log"
)

// defaultMTU applies when Config.MTU is zero.
const defaultMTU = 1500

// createTUN opens the kernel device. It can be replaced in tests.
var createTUN = wgtun.CreateTUN

// linuxEstablisher creates TUN devices with wireguard-go and configures
// them over rtnetlink.
type linuxEstablisher struct {
	logger log.Logger
}

// NewEstablisher returns the Establisher for the running platform.
func NewEstablisher(logger log.Logger) Establisher {
	return &linuxEstablisher{logger: logger}
}

func (e *linuxEstablisher) Establish(ctx context.Context, cfg Config) (Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mtu := cfg.MTU
	if mtu == 0 {
		mtu = defaultMTU
	}
	dev, err := createTUN(cfg.Name, mtu)
	if err != nil {
		return nil, fmt.Errorf("create tun %q: %w", cfg.Name, err)
	}
	name, err := dev.Name()
	if err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("read tun name: %w", err)
	}
	if err := e.configure(name, cfg); err != nil {
		_ = dev.Close()
		return nil, err
	}

	e.logger.Info(map[string]any{
		"iface":   name,
		"address": cfg.Address,
		"route":   cfg.Route,
		"dns":     cfg.DNS,
		"mtu":     mtu,
		"batch":   dev.BatchSize(),
	}, "Virtual interface established")
	return newBatchDevice(dev, name, e.logger), nil
}

// configure assigns the address and capture route, then brings the link up.
func (e *linuxEstablisher) configure(name string, cfg Config) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return fmt.Errorf("lookup link %s: %w", name, err)
	}

	addr, err := netlink.ParseAddr(cfg.Address)
	if err != nil {
		return fmt.Errorf("parse address %q: %w", cfg.Address, err)
	}
	if err := netlink.AddrAdd(link, addr); err != nil {
		return fmt.Errorf("add address %s to %s: %w", cfg.Address, name, err)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("bring up %s: %w", name, err)
	}

	if cfg.Route == "" {
		return nil
	}
	_, dst, err := net.ParseCIDR(cfg.Route)
	if err != nil {
		return fmt.Errorf("parse route %q: %w", cfg.Route, err)
	}
	route := &netlink.Route{
		LinkIndex: link.Attrs().Index,
		Dst:       dst,
		Scope:     netlink.SCOPE_LINK,
		Priority:  cfg.RouteMetric,
	}
	if err := netlink.RouteAdd(route); err != nil {
		return fmt.Errorf("add route %s via %s: %w", cfg.Route, name, err)
	}
	return nil
}

//go:build !linux

package tun

import (
	"context"

	"github.com/haukened/rr-shield/internal/dns/common/log"
)

type unsupportedEstablisher struct{}

// NewEstablisher returns the Establisher for the running platform.
func NewEstablisher(log.Logger) Establisher {
	return unsupportedEstablisher{}
}

func (unsupportedEstablisher) Establish(context.Context, Config) (Device, error) {
	return nil, ErrUnsupported
}

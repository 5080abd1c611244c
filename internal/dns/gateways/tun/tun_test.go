package tun

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstablisherFunc(t *testing.T) {
	want := errors.New("permission denied")
	var got Config
	e := EstablisherFunc(func(_ context.Context, cfg Config) (Device, error) {
		got = cfg
		return nil, want
	})

	_, err := e.Establish(context.Background(), Config{Name: "tun7", Address: "10.0.0.2/32"})

	assert.ErrorIs(t, err, want)
	assert.Equal(t, "tun7", got.Name)
}

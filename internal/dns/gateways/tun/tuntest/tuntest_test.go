package tuntest

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-shield/internal/dns/gateways/tun"
)

func TestDevice_InjectReadWrite(t *testing.T) {
	d := NewDevice("tun0", 4)
	d.Inject([]byte{1, 2, 3})

	buf := make([]byte, 16)
	n, err := d.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, buf[:n])

	_, err = d.Write(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{1, 2, 3}}, d.Written())
	assert.Equal(t, "tun0", d.Name())
}

func TestDevice_CloseUnblocksRead(t *testing.T) {
	d := NewDevice("tun0", 1)
	errCh := make(chan error, 1)
	go func() {
		_, err := d.Read(make([]byte, 4))
		errCh <- err
	}()

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, os.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("read not unblocked")
	}
	assert.True(t, d.Closed())
	assert.Equal(t, 2, d.CloseCalls())

	_, err := d.Write([]byte{1})
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestDevice_Failures(t *testing.T) {
	d := NewDevice("tun0", 2)
	boom := errors.New("boom")

	d.FailWrites(boom)
	_, err := d.Write([]byte{1})
	assert.ErrorIs(t, err, boom)

	d.FailReads(boom)
	_, err = d.Read(make([]byte, 4))
	assert.ErrorIs(t, err, boom)
}

func TestEstablisher(t *testing.T) {
	e := &Establisher{}
	dev, err := e.Establish(context.Background(), tun.Config{Name: "tun9"})
	require.NoError(t, err)
	assert.Same(t, dev, tun.Device(e.Last()))
	assert.Equal(t, 1, e.Calls())

	e.Err = ErrDenied
	_, err = e.Establish(context.Background(), tun.Config{})
	assert.ErrorIs(t, err, ErrDenied)
	assert.Len(t, e.Devices(), 1)
	assert.Equal(t, 2, e.Calls())
}

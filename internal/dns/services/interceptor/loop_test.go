package interceptor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-shield/internal/dns/common/log"
	"github.com/haukened/rr-shield/internal/dns/domain"
	"github.com/haukened/rr-shield/internal/dns/gateways/packet/packettest"
	"github.com/haukened/rr-shield/internal/dns/gateways/tun/tuntest"
	"github.com/haukened/rr-shield/internal/dns/repos/blocklist"
	"github.com/haukened/rr-shield/internal/dns/repos/blocklist/bloom"
	"github.com/haukened/rr-shield/internal/dns/repos/blocklist/builtin"
	"github.com/haukened/rr-shield/internal/dns/repos/blocklist/lru"
)

var errBoom = errors.New("boom")

type logEntry struct {
	level  string
	msg    string
	fields map[string]any
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(level string, f map[string]any, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: f})
}

func (l *recordingLogger) find(msg string) (logEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.msg == msg {
			return e, true
		}
	}
	return logEntry{}, false
}

func (l *recordingLogger) Info(f map[string]any, msg string)  { l.add("INFO", f, msg) }
func (l *recordingLogger) Error(f map[string]any, msg string) { l.add("ERROR", f, msg) }
func (l *recordingLogger) Debug(f map[string]any, msg string) { l.add("DEBUG", f, msg) }
func (l *recordingLogger) Warn(f map[string]any, msg string)  { l.add("WARN", f, msg) }
func (l *recordingLogger) Panic(f map[string]any, msg string) { l.add("PANIC", f, msg) }
func (l *recordingLogger) Fatal(f map[string]any, msg string) { l.add("FATAL", f, msg) }

type observation struct {
	class   domain.PacketClass
	verdict domain.Verdict
}

type recordingObserver struct {
	mu  sync.Mutex
	obs []observation
}

func (r *recordingObserver) ObservePacket(c domain.PacketClass, v domain.Verdict) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obs = append(r.obs, observation{c, v})
}

func (r *recordingObserver) all() []observation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]observation(nil), r.obs...)
}

type panicList struct{ blocklist.NoopBlocklist }

func (panicList) Decide(string) domain.BlockDecision { panic("decide exploded") }

func builtinList(t *testing.T) blocklist.Blocklist {
	t.Helper()
	rules, err := builtin.Rules(log.NewNoopLogger(), time.Unix(1723550000, 0))
	require.NoError(t, err)
	cache, err := lru.New(128)
	require.NoError(t, err)
	return blocklist.NewRepository(rules, cache, bloom.NewFactory(), 0.001)
}

type harness struct {
	dev  *tuntest.Device
	loop *Loop
	done chan error
}

func start(t *testing.T, opts Options) *harness {
	t.Helper()
	dev := tuntest.NewDevice("tun0", 64)
	opts.Device = dev
	h := &harness{dev: dev, loop: New(opts), done: make(chan error, 1)}
	go func() { h.done <- h.loop.Run(context.Background()) }()
	t.Cleanup(func() { _ = h.loop.Halt() })
	return h
}

func (h *harness) waitWrites(t *testing.T, n int) [][]byte {
	t.Helper()
	require.Eventually(t, func() bool { return len(h.dev.Written()) >= n }, 2*time.Second, time.Millisecond)
	return h.dev.Written()
}

func (h *harness) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
		return nil
	}
}

func TestLoop_DropsBlockedQuery(t *testing.T) {
	h := start(t, Options{Blocklist: builtinList(t)})
	sentinel := packettest.DNSQuery(t, "example.org")

	assert.Equal(t, uint64(0), h.loop.BlockedCount())
	h.dev.Inject(packettest.DNSQuery(t, "ad.doubleclick.net"))
	h.dev.Inject(sentinel)

	written := h.waitWrites(t, 1)
	require.Len(t, written, 1)
	assert.Equal(t, sentinel, written[0])
	assert.Equal(t, uint64(1), h.loop.BlockedCount())
}

func TestLoop_ForwardsAllowedQueryByteExact(t *testing.T) {
	h := start(t, Options{Blocklist: builtinList(t)})
	pkt := packettest.DNSQuery(t, "example.org")

	h.dev.Inject(pkt)

	written := h.waitWrites(t, 1)
	assert.Equal(t, pkt, written[0])
	assert.Equal(t, uint64(0), h.loop.BlockedCount())
}

func TestLoop_ForwardsNonDNSTraffic(t *testing.T) {
	short := []byte{0x45, 0x00, 0x00, 0x0a, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	ipv6 := make([]byte, 60)
	ipv6[0] = 0x60

	tests := []struct {
		name string
		pkt  func(t *testing.T) []byte
	}{
		{name: "shorter than ipv4 header", pkt: func(*testing.T) []byte { return short }},
		{name: "ipv6", pkt: func(*testing.T) []byte { return ipv6 }},
		{name: "tcp", pkt: func(t *testing.T) []byte { return packettest.TCP(t, []byte("doubleclick.net")) }},
		{name: "udp without payload", pkt: func(t *testing.T) []byte { return packettest.UDP(t, nil) }},
		{name: "udp shorter than dns header", pkt: func(t *testing.T) []byte { return packettest.UDP(t, []byte{0, 1, 2, 3}) }},
		{name: "single byte", pkt: func(*testing.T) []byte { return []byte{0x45} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := start(t, Options{Blocklist: builtinList(t)})
			pkt := tt.pkt(t)

			h.dev.Inject(pkt)

			written := h.waitWrites(t, 1)
			assert.Equal(t, pkt, written[0])
			assert.Equal(t, uint64(0), h.loop.BlockedCount())
		})
	}
}

func TestLoop_TruncatedQueryStillMatches(t *testing.T) {
	h := start(t, Options{Blocklist: builtinList(t)})
	full := packettest.DNSQuery(t, "ad.doubleclick.net")
	// cut the root label, QTYPE and QCLASS
	truncated := full[:len(full)-5]
	sentinel := packettest.DNSQuery(t, "example.org")

	h.dev.Inject(truncated)
	h.dev.Inject(sentinel)

	written := h.waitWrites(t, 1)
	require.Len(t, written, 1)
	assert.Equal(t, sentinel, written[0])
	assert.Equal(t, uint64(1), h.loop.BlockedCount())
}

func TestLoop_EmptyReadWritesNothing(t *testing.T) {
	h := start(t, Options{})
	sentinel := packettest.DNSQuery(t, "example.org")

	h.dev.Inject(nil)
	h.dev.Inject(sentinel)

	written := h.waitWrites(t, 1)
	require.Len(t, written, 1)
	assert.Equal(t, sentinel, written[0])
	assert.Equal(t, uint64(1), h.loop.Packets())
}

func TestLoop_PanicForwardsPacket(t *testing.T) {
	rec := &recordingLogger{}
	h := start(t, Options{Blocklist: panicList{}, Logger: rec})
	pkt := packettest.DNSQuery(t, "ad.doubleclick.net")

	h.dev.Inject(pkt)
	h.dev.Inject(pkt)

	written := h.waitWrites(t, 2)
	assert.Equal(t, pkt, written[0])
	assert.True(t, h.loop.running.Load())
	_, ok := rec.find("Recovered while inspecting packet")
	assert.True(t, ok)
}

func TestLoop_LogsBlockedDomain(t *testing.T) {
	rec := &recordingLogger{}
	h := start(t, Options{Blocklist: builtinList(t), Logger: rec})

	h.dev.Inject(packettest.DNSQuery(t, "pagead2.GoogleSyndication.com"))
	require.Eventually(t, func() bool { return h.loop.BlockedCount() == 1 }, 2*time.Second, time.Millisecond)

	e, ok := rec.find("Blocking domain")
	require.True(t, ok)
	assert.Equal(t, "INFO", e.level)
	assert.Equal(t, "pagead2.GoogleSyndication.com", e.fields["name"])
	assert.Equal(t, "googlesyndication.com", e.fields["domain"])
	assert.Equal(t, "googlesyndication.com", e.fields["rule"])
}

func TestLoop_ReportsMetrics(t *testing.T) {
	obs := &recordingObserver{}
	h := start(t, Options{Blocklist: builtinList(t), Metrics: obs})

	h.dev.Inject(packettest.DNSQuery(t, "ad.doubleclick.net"))
	h.dev.Inject(packettest.TCP(t, nil))
	h.dev.Inject([]byte{0x60})
	h.dev.Inject(packettest.DNSQuery(t, "example.org"))
	h.waitWrites(t, 3)

	assert.Equal(t, []observation{
		{domain.ClassIPv4UDP, domain.Drop},
		{domain.ClassIPv4Other, domain.Forward},
		{domain.ClassUnsupported, domain.Forward},
		{domain.ClassIPv4UDP, domain.Forward},
	}, obs.all())
}

func TestLoop_HaltStopsCleanly(t *testing.T) {
	h := start(t, Options{})
	h.dev.Inject(packettest.UDP(t, nil))
	h.waitWrites(t, 1)

	require.NoError(t, h.loop.Halt())

	assert.NoError(t, h.wait(t))
	assert.False(t, h.loop.running.Load())
	assert.True(t, h.dev.Closed())
	assert.NoError(t, h.loop.Halt())
	assert.Equal(t, 1, h.dev.CloseCalls())
}

func TestLoop_ContextCancelStopsCleanly(t *testing.T) {
	dev := tuntest.NewDevice("tun0", 4)
	l := New(Options{Device: dev})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
	assert.True(t, dev.Closed())
	assert.False(t, l.running.Load())
}

func TestLoop_ReadFailureIsReturned(t *testing.T) {
	h := start(t, Options{})

	h.dev.FailReads(errBoom)

	err := h.wait(t)
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "read tun0")
	assert.True(t, h.dev.Closed())
}

func TestLoop_WriteFailureIsReturned(t *testing.T) {
	h := start(t, Options{})
	h.dev.FailWrites(errBoom)

	h.dev.Inject(packettest.DNSQuery(t, "example.org"))

	err := h.wait(t)
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "write tun0")
}

func TestLoop_RunsOnce(t *testing.T) {
	dev := tuntest.NewDevice("tun0", 1)
	l := New(Options{Device: dev})
	require.NoError(t, l.Halt())

	assert.NoError(t, l.Run(context.Background()))
	assert.ErrorIs(t, l.Run(context.Background()), ErrAlreadyRunning)
	assert.Equal(t, 0, dev.Reads())
}

func TestNew_BufferSize(t *testing.T) {
	dev := tuntest.NewDevice("tun0", 1)

	assert.Len(t, New(Options{Device: dev}).buf, DefaultBufferSize)
	assert.Len(t, New(Options{Device: dev, BufferSize: 32767}).buf, 32767)
	assert.Len(t, New(Options{Device: dev, BufferSize: MinBufferSize}).buf, MinBufferSize)
}

// Package metrics exposes interception counters as Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/haukened/rr-shield/internal/dns/domain"
)

const namespace = "rr_shield"

// Observer receives one call per packet handled by the interception loop.
type Observer interface {
	ObservePacket(class domain.PacketClass, verdict domain.Verdict)
}

// Recorder counts packets by classification and verdict.
type Recorder struct {
	packets *prometheus.CounterVec
	blocked prometheus.Counter
}

// NewRecorder creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_total",
			Help:      "Packets read from the virtual interface, by classification and verdict.",
		}, []string{"class", "verdict"}),
		blocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocked_queries_total",
			Help:      "DNS queries dropped because the name matched the blocklist.",
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{r.packets, r.blocked} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

func (r *Recorder) ObservePacket(class domain.PacketClass, verdict domain.Verdict) {
	r.packets.WithLabelValues(class.String(), verdict.String()).Inc()
	if verdict == domain.Drop {
		r.blocked.Inc()
	}
}

// Nop discards observations.
type Nop struct{}

func (Nop) ObservePacket(domain.PacketClass, domain.Verdict) {}

var _ Observer = (*Recorder)(nil)
var _ Observer = Nop{}

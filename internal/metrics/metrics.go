// Package metrics instruments the transport with a small Prometheus counter
// set, grounded on facebookincubator/tacquito's use of
// github.com/prometheus/client_golang/prometheus at the TLV server boundary
// (eccf8edb_facebookincubator-tacquito__server.go.go). This is an ambient
// concern the expanded spec adds (SPEC_FULL.md §4.9); spec.md's Non-goals
// don't exclude observability, only protocol features.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Sink is the narrow interface the rest of the transport depends on, so
// tests can inject a no-op implementation without standing up a real
// registry.
type Sink interface {
	ConnectAttempt(mode, result string)
	PacketTransferred(direction string)
	DispatchExit(reason string)
}

// Collector is the production Sink backed by real Prometheus metrics.
type Collector struct {
	connects      *prometheus.CounterVec
	packets       *prometheus.CounterVec
	dispatchExits *prometheus.CounterVec
}

// NewCollector registers the transport's metrics on reg and returns a
// Collector. Passing a fresh prometheus.NewRegistry() keeps tests isolated
// from the default global registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tlscore_connects_total",
			Help: "Socket bring-up attempts by mode (reverse_v4, reverse_v6, reverse, bind, adopt) and result (ok, error).",
		}, []string{"mode", "result"}),
		packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tlscore_packets_total",
			Help: "Packets transferred by direction (rx, tx).",
		}, []string{"direction"}),
		dispatchExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tlscore_dispatch_exits_total",
			Help: "Dispatch loop exits by reason (idle_timeout, expired, peer_closed, error, terminated, command_stop).",
		}, []string{"reason"}),
	}
	reg.MustRegister(c.connects, c.packets, c.dispatchExits)
	return c
}

func (c *Collector) ConnectAttempt(mode, result string) {
	c.connects.WithLabelValues(mode, result).Inc()
}

func (c *Collector) PacketTransferred(direction string) {
	c.packets.WithLabelValues(direction).Inc()
}

func (c *Collector) DispatchExit(reason string) {
	c.dispatchExits.WithLabelValues(reason).Inc()
}

// NoOp is a Sink that discards every observation, used by tests and by
// callers that don't want Prometheus wired in.
type NoOp struct{}

func (NoOp) ConnectAttempt(string, string)  {}
func (NoOp) PacketTransferred(string)       {}
func (NoOp) DispatchExit(string)            {}

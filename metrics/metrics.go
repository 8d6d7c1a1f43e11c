// Package metrics exports orchestrator activity as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	teamauth "github.com/teamup-ku/go-teamauth"
)

var allStates = []teamauth.FlowState{
	teamauth.FlowIdle,
	teamauth.FlowAuthenticating,
	teamauth.FlowExchanging,
	teamauth.FlowOnboarding,
	teamauth.FlowCompletingOnboarding,
	teamauth.FlowAuthenticated,
	teamauth.FlowPendingConfirmation,
	teamauth.FlowFailed,
}

// Collector is a teamauth.ActivitySink backed by Prometheus collectors.
type Collector struct {
	events      *prometheus.CounterVec
	transitions *prometheus.CounterVec
	state       *prometheus.GaugeVec
}

var _ teamauth.ActivitySink = (*Collector)(nil)

// NewCollector creates the collectors and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamauth_events_total",
			Help: "Auth activity events by type and flow.",
		}, []string{"event", "flow"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamauth_flow_transitions_total",
			Help: "Flow state transitions.",
		}, []string{"from", "to"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "teamauth_flow_state",
			Help: "1 for the current flow state, 0 otherwise.",
		}, []string{"state"}),
	}

	reg.MustRegister(c.events, c.transitions, c.state)

	for _, s := range allStates {
		c.state.WithLabelValues(string(s)).Set(0)
	}
	c.state.WithLabelValues(string(teamauth.FlowIdle)).Set(1)

	return c
}

// Record implements teamauth.ActivitySink.
func (c *Collector) Record(_ context.Context, event teamauth.ActivityEvent) error {
	c.events.WithLabelValues(string(event.EventType), event.Flow).Inc()

	if event.EventType != teamauth.ActivityEventFlowTransition {
		return nil
	}

	c.transitions.WithLabelValues(string(event.FromState), string(event.ToState)).Inc()
	for _, s := range allStates {
		v := 0.0
		if s == event.ToState {
			v = 1
		}
		c.state.WithLabelValues(string(s)).Set(v)
	}
	return nil
}

// Handler serves the gatherer in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

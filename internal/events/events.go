// Package events implements the EventService collaborator: typed
// success/failure counters gated by the events_options flags, backed
// by Prometheus counters in the style of box-kube-applier/metrics,
// the one pack repo that imports prometheus/client_golang directly
// for this kind of operational counter.
package events

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/config"
)

const metricsNamespace = "interaction_core"

var (
	endpointSuccessCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "endpoint_success_total",
		Help:      "Count of successful terminal outcomes per endpoint.",
	}, []string{"endpoint"})

	endpointFailureCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "endpoint_failure_total",
		Help:      "Count of failed terminal outcomes per endpoint, labeled by reason.",
	}, []string{"endpoint", "reason"})

	logoutCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "logout_total",
		Help:      "Count of completed logouts.",
	}, []string{"idp"})
)

// Service is the EventService collaborator: it raises typed events and
// never calls back into the components that raised them, breaking the
// cyclic collaborator graph per Design Note §9.
type Service struct {
	opts config.EventsOptions
}

func New(opts config.EventsOptions) *Service {
	return &Service{opts: opts}
}

// EndpointSuccess records a successful terminus of the named endpoint.
func (s *Service) EndpointSuccess(endpoint string) {
	if !s.opts.RaiseSuccessEvents {
		return
	}
	endpointSuccessCount.WithLabelValues(endpoint).Inc()
}

// EndpointFailure records a failed terminus, along with the reason
// code that drove the failure (e.g. "unauthorized_client").
func (s *Service) EndpointFailure(endpoint, reason string) {
	if !s.opts.RaiseFailureEvents {
		return
	}
	endpointFailureCount.WithLabelValues(endpoint, reason).Inc()
	log.Printf("event: %s failure reason=%s", endpoint, reason)
}

// Logout records a completed logout for the given identity provider.
func (s *Service) Logout(idp string) {
	if !s.opts.RaiseSuccessEvents {
		return
	}
	if idp == "" {
		idp = "local"
	}
	logoutCount.WithLabelValues(idp).Inc()
}

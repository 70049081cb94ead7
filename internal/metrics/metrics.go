// Package metrics exposes prometheus counters for lifecycle events.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TransfersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "grove",
		Name:      "transfers_created_total",
		Help:      "Tree transfer invitations issued.",
	})

	TransfersAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grove",
		Name:      "transfers_accepted_total",
		Help:      "Tree transfers accepted, by acceptance option.",
	}, []string{"option"})

	TransfersCompensated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "grove",
		Name:      "transfers_compensated_total",
		Help:      "Transfer rows deleted because the invitation could not be delivered.",
	})

	TransfersExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "grove",
		Name:      "transfers_expired_total",
		Help:      "Pending transfers rewritten to expired by the sweep.",
	})

	TrusteesExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "grove",
		Name:      "trustees_expired_total",
		Help:      "Trustee designations cleared after their window lapsed.",
	})

	MembershipsFrozen = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grove",
		Name:      "memberships_toggled_total",
		Help:      "Memberships frozen or unfrozen.",
	}, []string{"direction"})

	MemoriesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grove",
		Name:      "memories_rejected_total",
		Help:      "Memory submissions refused by the capacity or approval gate.",
	}, []string{"reason"})

	RootsChanged = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grove",
		Name:      "roots_changed_total",
		Help:      "Person roots created or dissolved.",
	}, []string{"action"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

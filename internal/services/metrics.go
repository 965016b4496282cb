package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// invitationOps counts invitation operations by operation and outcome.
	invitationOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invitation_operations_total",
			Help: "Invitation lifecycle operations by operation and result.",
		},
		[]string{"op", "result"},
	)

	// sequenceOps counts sequence assignments by kind and mode (gap, next).
	sequenceOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sequence_assignments_total",
			Help: "Sequence numbers assigned by kind, mode, and result.",
		},
		[]string{"kind", "mode", "result"},
	)

	// partialFailures counts registrations that need manual reconciliation.
	partialFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registration_partial_failures_total",
			Help: "Registrations where the account exists but a follow-up step failed.",
		},
		[]string{"step"},
	)
)

func init() {
	prometheus.MustRegister(invitationOps, sequenceOps, partialFailures)
}

package model

import "time"

// MilestoneKind names a lifecycle milestone mirrored to the ledger.
type MilestoneKind string

// Milestones recorded per report.
const (
	MilestoneSubmitted    MilestoneKind = "submitted"
	MilestoneAcknowledged MilestoneKind = "acknowledged"
	MilestoneResolved     MilestoneKind = "resolved"
	MilestoneDeleted      MilestoneKind = "deleted"
)

// TxRef is a ledger transaction handle. Synthetic refs come from degraded mode
// and never identify a real transaction.
type TxRef struct {
	Hash      string `json:"hash" bson:"hash"`
	Synthetic bool   `json:"synthetic" bson:"synthetic"`
}

// AuditEntry is one reconciliation record per milestone attempt.
type AuditEntry struct {
	ID        string        `json:"id" bson:"_id"`
	ReportID  string        `json:"reportId" bson:"reportId"`
	Kind      MilestoneKind `json:"kind" bson:"kind"`
	ActorID   string        `json:"actorId" bson:"actorId"`
	TxHash    string        `json:"txHash,omitempty" bson:"txHash,omitempty"`
	Synthetic bool          `json:"synthetic" bson:"synthetic"`
	Error     string        `json:"error,omitempty" bson:"error,omitempty"`
	CreatedAt time.Time     `json:"createdAt" bson:"createdAt"`
}

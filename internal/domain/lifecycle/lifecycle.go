// Package lifecycle holds the report state machine: which actions are legal
// from which states, and the conditional update each action performs.
package lifecycle

import (
	"fmt"
	"slices"
	"time"

	"github.com/okian/civicflow/internal/domain/model"
)

// Action is a lifecycle verb.
type Action string

// Lifecycle actions.
const (
	ActionAcknowledge Action = "acknowledge"
	ActionResolve     Action = "resolve"
	ActionDelete      Action = "delete"
)

const defaultMinDwell = 24 * time.Hour

// Option applies a configuration option to the Policy.
type Option func(*Policy)

// WithMinDwell sets how long an acknowledged report must wait before deletion.
func WithMinDwell(d time.Duration) Option {
	return func(p *Policy) {
		if d >= 0 {
			p.minDwell = d
		}
	}
}

// Policy decides transition legality. It is immutable after New.
type Policy struct {
	minDwell time.Duration
}

// New creates a Policy.
func New(opts ...Option) *Policy {
	p := &Policy{minDwell: defaultMinDwell}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MinDwell returns the configured deletion dwell time.
func (p *Policy) MinDwell() time.Duration { return p.minDwell }

// Transition is a single atomic conditional update. A store applies it only
// when Matches holds against the stored record at write time.
type Transition struct {
	Action Action
	From   []model.Status
	To     model.Status
	Actor  string
	At     time.Time

	// Submitter, when set, restricts the update to reports owned by that user.
	Submitter string

	// AcknowledgedBefore, when set, requires acknowledgedAt to be absent or
	// not after this instant.
	AcknowledgedBefore time.Time
}

// Matches reports whether r satisfies every precondition of t.
func (t Transition) Matches(r *model.Report) bool {
	if !slices.Contains(t.From, r.Status) {
		return false
	}
	if t.Submitter != "" && r.SubmittedBy != t.Submitter {
		return false
	}
	if !t.AcknowledgedBefore.IsZero() && r.AcknowledgedAt != nil && r.AcknowledgedAt.After(t.AcknowledgedBefore) {
		return false
	}
	return true
}

// Apply mutates r into the target state. Callers must have checked Matches.
func (t Transition) Apply(r *model.Report) {
	r.Status = t.To
	r.UpdatedAt = t.At
	switch t.To {
	case model.StatusAcknowledged:
		at := t.At
		r.AcknowledgedAt = &at
		r.AcknowledgedBy = t.Actor
	case model.StatusResolved:
		// An admin may resolve straight from SUBMITTED; the acknowledgement
		// stamp is filled in so acknowledgedAt stays set for every later state.
		if r.AcknowledgedAt == nil {
			at := t.At
			r.AcknowledgedAt = &at
			r.AcknowledgedBy = t.Actor
		}
		at := t.At
		r.ResolvedAt = &at
		r.ResolvedBy = t.Actor
	}
}

// Acknowledge plans SUBMITTED -> ACKNOWLEDGED.
func (p *Policy) Acknowledge(actor string, now time.Time) Transition {
	return Transition{
		Action: ActionAcknowledge,
		From:   []model.Status{model.StatusSubmitted},
		To:     model.StatusAcknowledged,
		Actor:  actor,
		At:     now,
	}
}

// Resolve plans a resolution. Self-service resolution is owner-only and needs a
// prior acknowledgement; admins may also resolve directly from SUBMITTED.
func (p *Policy) Resolve(actor string, isAdmin bool, now time.Time) Transition {
	t := Transition{
		Action: ActionResolve,
		To:     model.StatusResolved,
		Actor:  actor,
		At:     now,
	}
	if isAdmin {
		t.From = []model.Status{model.StatusSubmitted, model.StatusAcknowledged}
	} else {
		t.From = []model.Status{model.StatusAcknowledged}
		t.Submitter = actor
	}
	return t
}

// Delete plans a move to DELETED from any live state, honoring the dwell time.
func (p *Policy) Delete(actor string, now time.Time) Transition {
	t := Transition{
		Action: ActionDelete,
		From:   []model.Status{model.StatusSubmitted, model.StatusAcknowledged, model.StatusResolved},
		To:     model.StatusDeleted,
		Actor:  actor,
		At:     now,
	}
	if p.minDwell > 0 {
		t.AcknowledgedBefore = now.Add(-p.minDwell)
	}
	return t
}

// Explain classifies why t does not apply to r, using the shared error
// taxonomy. It returns nil when t matches.
func (p *Policy) Explain(t Transition, r *model.Report) error {
	if t.Matches(r) {
		return nil
	}
	switch t.Action {
	case ActionResolve:
		switch {
		case r.Status == model.StatusResolved:
			return fmt.Errorf("%w: report %s already resolved", model.ErrConflict, r.ID)
		case r.Status == model.StatusDeleted:
			return fmt.Errorf("%w: report %s is deleted", model.ErrInvalidTransition, r.ID)
		case t.Submitter != "" && r.SubmittedBy != t.Submitter:
			return fmt.Errorf("%w: only the submitter may resolve report %s", model.ErrForbidden, r.ID)
		}
	case ActionDelete:
		if r.Status != model.StatusDeleted && r.AcknowledgedAt != nil {
			wait := r.AcknowledgedAt.Add(p.minDwell).Sub(t.At)
			return fmt.Errorf("%w: report %s acknowledged too recently, retry in %s",
				model.ErrInvalidTransition, r.ID, wait.Round(time.Second))
		}
	}
	return fmt.Errorf("%w: cannot %s report %s in status %s", model.ErrInvalidTransition, t.Action, r.ID, r.Status)
}

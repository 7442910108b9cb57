package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/civicflow/internal/adapters/repository"
	"github.com/okian/civicflow/internal/domain/model"
	"github.com/okian/civicflow/pkg/logger"
	"github.com/okian/civicflow/pkg/metrics"
)

const (
	// DefaultTimeout bounds one milestone record end to end.
	DefaultTimeout    = 10 * time.Second
	auditWriteTimeout = 5 * time.Second
	syntheticPrefix   = "local_tx_"
)

// ErrTimeout is returned with a synthetic ref when the chain did not confirm in time.
var ErrTimeout = errors.New("ledger record timed out")

// Recorder mirrors a report milestone to the ledger. It always returns a
// usable ref; a non-nil error means the ref is synthetic and the cause wraps
// model.ErrDownstreamDegraded.
type Recorder interface {
	RecordEvent(ctx context.Context, kind model.MilestoneKind, reportID, actorRef string) (model.TxRef, error)
	// RecordLocal writes an audit row without touching the chain.
	RecordLocal(ctx context.Context, kind model.MilestoneKind, reportID, actorRef string) error
}

// Caller is the chain transport used by ChainRecorder. *Client implements it.
type Caller interface {
	Call(ctx context.Context, function string, args ...string) (string, error)
}

var entryFunctions = map[model.MilestoneKind]string{
	model.MilestoneSubmitted:    "submit_report",
	model.MilestoneAcknowledged: "acknowledge_report",
	model.MilestoneResolved:     "resolve_report",
}

// ChainRecorder records milestones through a Caller and appends every attempt
// to the audit store. A nil Caller runs permanently in degraded mode.
type ChainRecorder struct {
	caller  Caller
	audit   repository.AuditStore
	timeout time.Duration
	now     func() time.Time
	log     logger.Logger
}

// RecorderOption applies a configuration option to the ChainRecorder.
type RecorderOption func(*ChainRecorder)

// WithTimeout sets the per-record deadline.
func WithTimeout(d time.Duration) RecorderOption {
	return func(r *ChainRecorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithRecorderClock overrides time for audit rows and synthetic refs.
func WithRecorderClock(now func() time.Time) RecorderOption {
	return func(r *ChainRecorder) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) RecorderOption {
	return func(r *ChainRecorder) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRecorder builds a ChainRecorder. caller may be nil.
func NewRecorder(caller Caller, audit repository.AuditStore, opts ...RecorderOption) *ChainRecorder {
	r := &ChainRecorder{
		caller:  caller,
		audit:   audit,
		timeout: DefaultTimeout,
		now:     time.Now,
		log:     logger.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Degraded reports whether the recorder has no chain transport.
func (r *ChainRecorder) Degraded() bool { return r.caller == nil }

type callResult struct {
	hash string
	err  error
}

func (r *ChainRecorder) RecordEvent(ctx context.Context, kind model.MilestoneKind, reportID, actorRef string) (model.TxRef, error) {
	start := r.now()
	fn, ok := entryFunctions[kind]
	var cause error
	var hash string
	switch {
	case !ok:
		cause = fmt.Errorf("no ledger function for milestone %q", kind)
	case r.caller == nil:
		cause = ErrNoCredentials
	default:
		hash, cause = r.call(ctx, fn, reportID, actorRef)
	}

	ref := model.TxRef{Hash: hash}
	outcome := "confirmed"
	if cause != nil {
		ref = r.synthetic()
		outcome = "synthetic"
		r.log.Warn(ctx, "ledger degraded, using synthetic ref",
			logger.String("reportId", reportID),
			logger.String("kind", string(kind)),
			logger.String("txHash", ref.Hash),
			logger.Error(cause))
	}
	metrics.RecordLedger(string(kind), outcome, float64(r.now().Sub(start).Milliseconds()))
	r.append(ctx, kind, reportID, actorRef, ref, cause)

	if cause != nil {
		return ref, fmt.Errorf("%w: %w", model.ErrDownstreamDegraded, cause)
	}
	return ref, nil
}

// call bounds the transport by the recorder timeout even if it ignores ctx.
func (r *ChainRecorder) call(ctx context.Context, fn, reportID, actorRef string) (string, error) {
	tctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		h, err := r.caller.Call(tctx, fn, reportID, actorRef)
		done <- callResult{hash: h, err: err}
	}()

	select {
	case res := <-done:
		if res.err == nil && res.hash == "" {
			return "", errors.New("ledger returned empty hash")
		}
		return res.hash, res.err
	case <-tctx.Done():
		return "", fmt.Errorf("%w after %s", ErrTimeout, r.timeout)
	}
}

func (r *ChainRecorder) RecordLocal(ctx context.Context, kind model.MilestoneKind, reportID, actorRef string) error {
	return r.append(ctx, kind, reportID, actorRef, model.TxRef{}, nil)
}

func (r *ChainRecorder) synthetic() model.TxRef {
	return model.TxRef{
		Hash:      fmt.Sprintf("%s%d_%s", syntheticPrefix, r.now().UnixNano(), uuid.NewString()[:8]),
		Synthetic: true,
	}
}

func (r *ChainRecorder) append(ctx context.Context, kind model.MilestoneKind, reportID, actorRef string, ref model.TxRef, cause error) error {
	if r.audit == nil {
		return nil
	}
	e := &model.AuditEntry{
		ID:        uuid.NewString(),
		ReportID:  reportID,
		Kind:      kind,
		ActorID:   actorRef,
		TxHash:    ref.Hash,
		Synthetic: ref.Synthetic,
		CreatedAt: r.now(),
	}
	if cause != nil {
		e.Error = cause.Error()
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()
	if err := r.audit.Append(actx, e); err != nil {
		r.log.Error(ctx, "append audit entry",
			logger.String("reportId", reportID),
			logger.String("kind", string(kind)),
			logger.Error(err))
		return err
	}
	return nil
}

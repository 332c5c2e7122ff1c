package session

import (
	"context"
	"time"

	"github.com/Seednode/quizhost/internal/transport"
)

// reconcileBaseDelay/reconcileMaxDelay bound the background reconciler's own
// backoff (spec §4.8: "a background reconciler resumes persistence"). This
// is deliberately separate from, and longer than, internal/store's
// RetryingStore backoff: a job only ever reaches here after that budget is
// already exhausted, so there is no point retrying at the same pace.
const (
	reconcileBaseDelay = 1 * time.Second
	reconcileMaxDelay  = 30 * time.Second
)

// reconcileJob is one persistence write that failed even after
// RetryingStore's retry budget ran out. attempt must be safe to call
// repeatedly until it returns nil.
type reconcileJob struct {
	describe string
	attempt  func(ctx context.Context) error
}

// enterDegraded marks the session DEGRADED (spec §4.8) and starts a
// background goroutine that keeps retrying job independently of the actor's
// command queue — broadcasts and gameplay keep flowing from in-memory state
// while persistence catches up behind them.
func (s *Session) enterDegraded(ctx context.Context, job reconcileJob) {
	if !s.degraded {
		s.degraded = true
		s.logf("session %s: entering DEGRADED: %s", s.Code, job.describe)
		s.broadcast(transport.TypeSessionDegraded, transport.SessionDegradedPayload{Reason: job.describe})
	}
	s.pendingReconciles++
	go s.runReconciler(ctx, job)
}

// runReconciler retries job with its own backoff until it succeeds or ctx is
// done (session ended), then reports back to the actor via cmdReconcileDone
// so Session.degraded is only ever mutated on the actor's own goroutine.
func (s *Session) runReconciler(ctx context.Context, job reconcileJob) {
	delay := reconcileBaseDelay
	for {
		if err := job.attempt(ctx); err == nil {
			// A plain Submit would block forever if Run already exited and
			// nothing drains s.cmds; race the send against ctx instead.
			select {
			case s.cmds <- cmdReconcileDone{}:
			case <-ctx.Done():
			}
			return
		} else {
			s.logf("session %s: reconcile %s: %v", s.Code, job.describe, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		delay *= 2
		if delay > reconcileMaxDelay {
			delay = reconcileMaxDelay
		}
	}
}

// handleReconcileDone clears one pending reconciliation; once none remain,
// the session leaves DEGRADED and the room is told persistence caught up.
func (s *Session) handleReconcileDone() {
	if s.pendingReconciles > 0 {
		s.pendingReconciles--
	}
	if s.pendingReconciles == 0 && s.degraded {
		s.degraded = false
		s.logf("session %s: leaving DEGRADED", s.Code)
		s.broadcast(transport.TypeSessionRecovered, transport.SessionRecoveredPayload{})
	}
}

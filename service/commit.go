package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"seqdb/infra/catalog"
	"seqdb/infra/txn"
)

// ErrCommitGaveUp is returned when a bounded retry policy ran out of
// attempts before the commit went through.
var ErrCommitGaveUp = errors.New("commit retries exhausted")

// RetryPolicy governs how a transiently failing commit is retried.
// MaxAttempts of zero retries until the commit succeeds or the caller's
// context ends.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: time.Millisecond,
		MaxInterval:     100 * time.Millisecond,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0

	var b backoff.BackOff = eb
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	}
	return backoff.WithContext(b, ctx)
}

// commit commits t, retrying transient failures. Any other outcome aborts t.
func (e *Engine) commit(ctx context.Context, t *txn.Txn, action string) error {
	attempt := 0
	op := func() error {
		attempt++
		err := e.txns.Commit(t)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, txn.ErrCommitFailed):
			return err
		default:
			return backoff.Permanent(err)
		}
	}
	err := backoff.RetryNotify(op, e.retry.backOff(ctx), e.notifyRetry(action, &attempt))
	if err != nil {
		e.txns.Abort(t)
		return e.gaveUp(err, action, attempt)
	}
	return nil
}

// persist writes row in a transaction of its own and commits it. A write
// conflict starts over with a new transaction; a failed commit retries the
// same one.
func (e *Engine) persist(ctx context.Context, apply func(t *txn.Txn) error, action string) error {
	var t *txn.Txn
	attempt := 0
	op := func() error {
		attempt++
		if t == nil {
			t = e.txns.Begin()
			if err := apply(t); err != nil {
				e.txns.Abort(t)
				t = nil
				if errors.Is(err, catalog.ErrConflict) {
					e.metrics.ScanAbort()
					return err
				}
				return backoff.Permanent(err)
			}
		}
		err := e.txns.Commit(t)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, txn.ErrCommitFailed):
			return err
		case errors.Is(err, txn.ErrTxnAborted):
			t = nil
			return err
		default:
			return backoff.Permanent(err)
		}
	}
	err := backoff.RetryNotify(op, e.retry.backOff(ctx), e.notifyRetry(action, &attempt))
	if err != nil {
		if t != nil {
			e.txns.Abort(t)
		}
		return e.gaveUp(err, action, attempt)
	}
	return nil
}

func (e *Engine) notifyRetry(action string, attempt *int) backoff.Notify {
	return func(err error, wait time.Duration) {
		e.metrics.CommitRetry()
		e.log.WithError(err).WithFields(logrus.Fields{
			"action":  action,
			"attempt": *attempt,
			"wait":    wait,
		}).Warn("commit failed, retrying")
	}
}

func (e *Engine) gaveUp(err error, action string, attempts int) error {
	retryable := errors.Is(err, txn.ErrCommitFailed) ||
		errors.Is(err, txn.ErrTxnAborted) ||
		errors.Is(err, catalog.ErrConflict)
	if !retryable {
		return err
	}
	e.log.WithError(err).WithFields(logrus.Fields{
		"action":   action,
		"attempts": attempts,
	}).Error("giving up on commit")
	return errors.Mark(errors.Wrapf(err, "%s: giving up after %d attempts", action, attempts), ErrCommitGaveUp)
}

package twitter

import (
	"context"
	"errors"

	"github.com/masa-finance/timeline-poller/internal/stats"
	"github.com/sirupsen/logrus"
)

// Executor is the single path through which provider calls are made.
type Executor struct {
	session  *Session
	provider Provider
	stats    *stats.StatsCollector
}

func NewExecutor(session *Session, provider Provider, collector *stats.StatsCollector) *Executor {
	return &Executor{session: session, provider: provider, stats: collector}
}

func (ex *Executor) Session() *Session {
	return ex.session
}

// Execute ensures the session, runs op and classifies its failure. An
// unauthorized response triggers one forced re-authentication and exactly
// one retry of op. Cancellation is returned as-is.
func Execute[T any](ctx context.Context, ex *Executor, op func(ctx context.Context, p Provider) (T, error)) (T, error) {
	var zero T

	if err := ex.session.EnsureAuthenticated(ctx); err != nil {
		return zero, err
	}

	ex.stats.Add(stats.ProviderCalls, 1)
	res, err := op(ctx, ex.provider)
	if err == nil {
		return res, nil
	}
	if passthrough(ctx, err) {
		return zero, cancellationOr(ctx, err)
	}

	cond := Classify(err)
	if cond != ConditionUnauthorized {
		ex.record(cond, err)
		return zero, translate(cond, err)
	}

	ex.stats.Add(stats.AuthErrors, 1)
	logrus.WithError(err).Warn("Provider rejected the session, re-authenticating")
	ex.session.Invalidate()
	if aerr := ex.session.Authenticate(ctx); aerr != nil {
		if IsCancellation(aerr) {
			return zero, aerr
		}
		return zero, newError(KindAuthenticationFailed, "Authentication failed: "+aerr.Error(), aerr)
	}

	ex.stats.Add(stats.ProviderCalls, 1)
	res, err = op(ctx, ex.provider)
	if err == nil {
		return res, nil
	}
	if passthrough(ctx, err) {
		return zero, cancellationOr(ctx, err)
	}
	ex.stats.Add(stats.AuthErrors, 1)
	return zero, newError(KindAuthenticationFailed, "Authentication failed: "+err.Error(), err)
}

// Do is Execute for operations without a result.
func Do(ctx context.Context, ex *Executor, op func(ctx context.Context, p Provider) error) error {
	_, err := Execute(ctx, ex, func(ctx context.Context, p Provider) (struct{}, error) {
		return struct{}{}, op(ctx, p)
	})
	return err
}

// passthrough reports errors that skip classification: cancellation and
// errors that are already classified.
func passthrough(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return true
	}
	var te *Error
	return errors.As(err, &te)
}

func cancellationOr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func (ex *Executor) record(cond Condition, err error) {
	switch cond {
	case ConditionRateLimited:
		ex.stats.Add(stats.RateLimitErrors, 1)
		logrus.Warn("rate limited by provider")
	default:
		ex.stats.Add(stats.ProviderErrors, 1)
		logrus.WithError(err).Debugf("provider call failed (%s)", cond)
	}
}

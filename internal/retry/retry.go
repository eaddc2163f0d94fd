// Package retry executes engine calls with bounded retry and classified
// terminal errors.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/escompat/internal/domain"
	"github.com/kailas-cloud/escompat/internal/metrics"
)

// Policy bounds retries of retryable failures. MaxAttempts counts retries
// after the first call, so a call runs at most MaxAttempts+1 times.
type Policy struct {
	MaxAttempts int
	Interval    time.Duration
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Interval: 1500 * time.Millisecond}
}

// Kind tells the executor how to treat a missing index.
type Kind int

const (
	// Read operations return their empty result when the index is missing.
	Read Kind = iota
	// Write operations fail when the index is missing.
	Write
)

// Sleeper waits d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Op describes one engine operation.
type Op[T any] struct {
	Name string
	Kind Kind
	// Call performs one attempt.
	Call func(ctx context.Context) (T, error)
	// Empty builds the result returned for a missing index on reads. Nil means the zero value.
	Empty func() T
	// Recover gets the first look at particular failures. When handled is true its
	// result and error are returned as is.
	Recover func(ctx context.Context, class domain.ErrorClass, cause error) (result T, handled bool, err error)
}

// Executor runs operations under a retry policy. It holds no per-call state and
// is safe for concurrent use.
type Executor struct {
	policy     Policy
	classifier Classifier
	logger     *zap.Logger
	sleep      Sleeper
}

// NewExecutor creates an Executor. classifier defaults to an EngineClassifier,
// logger to a no-op logger.
func NewExecutor(policy Policy, classifier Classifier, logger *zap.Logger) *Executor {
	if policy.MaxAttempts < 0 {
		policy.MaxAttempts = 0
	}
	if policy.Interval < 0 {
		policy.Interval = 0
	}
	if classifier == nil {
		classifier = NewEngineClassifier(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{policy: policy, classifier: classifier, logger: logger, sleep: sleepCtx}
}

// WithSleeper replaces the wait between attempts.
func (e *Executor) WithSleeper(s Sleeper) *Executor {
	if s != nil {
		e.sleep = s
	}
	return e
}

// Policy returns the configured policy.
func (e *Executor) Policy() Policy { return e.policy }

// Classify exposes the executor's classifier.
func (e *Executor) Classify(err error) domain.ErrorClass { return e.classifier.Classify(err) }

// Do runs op until it succeeds, fails terminally or exhausts the policy.
//
// Particular failures (missing index, version conflict, schema mismatch) do not
// consume retries. Malformed queries fail at once. Transient and unclassified
// failures are retried after Policy.Interval.
func Do[T any](ctx context.Context, e *Executor, op Op[T]) (T, error) {
	var zero T
	retries := 0
	for {
		res, err := op.Call(ctx)
		if err == nil {
			return res, nil
		}

		class := e.classifier.Classify(err)

		if class.Particular() {
			if op.Recover != nil {
				if r, handled, rerr := op.Recover(ctx, class, err); handled {
					if rerr != nil {
						return zero, e.terminal(op.Name, domain.ClassOf(rerr), rerr)
					}
					return r, nil
				}
			}
			if class == domain.ClassIndexMissing && op.Kind == Read {
				if op.Empty != nil {
					return op.Empty(), nil
				}
				return zero, nil
			}
			return zero, e.terminal(op.Name, class, err)
		}

		if !class.Retryable() {
			return zero, e.terminal(op.Name, class, err)
		}
		if retries >= e.policy.MaxAttempts {
			return zero, e.terminal(op.Name, class, fmt.Errorf("after %d retries: %w", retries, err))
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, e.terminal(op.Name, class, errors.Join(err, ctxErr))
		}

		retries++
		metrics.RetryAttemptsTotal.WithLabelValues(op.Name, class.String()).Inc()
		e.logger.Warn("engine call failed, retrying",
			zap.String("op", op.Name),
			zap.String("class", class.String()),
			zap.Int("retry", retries),
			zap.Int("max_retries", e.policy.MaxAttempts),
			zap.Duration("interval", e.policy.Interval),
			zap.Error(err),
		)
		if serr := e.sleep(ctx, e.policy.Interval); serr != nil {
			return zero, e.terminal(op.Name, class, errors.Join(err, serr))
		}
	}
}

func (e *Executor) terminal(op string, class domain.ErrorClass, err error) error {
	metrics.OperationErrorsTotal.WithLabelValues(op, class.String()).Inc()
	e.logger.Debug("engine call failed",
		zap.String("op", op),
		zap.String("class", class.String()),
		zap.Error(err),
	)
	var de *domain.Error
	if errors.As(err, &de) && de.Class == class {
		return fmt.Errorf("%s: %w", op, err)
	}
	return domain.NewError(class, op, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("wait for retry: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}

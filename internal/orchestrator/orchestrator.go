// Package orchestrator drives the retry/failover state machine around
// proxy selection and aria2c attempts.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"pixelfetch/internal/aria2"
	"pixelfetch/internal/shared/logger"
	"pixelfetch/internal/shared/types"
	"pixelfetch/internal/shared/useragent"
	"pixelfetch/proxypool"
	"pixelfetch/proxypool/model"
)

// State names one node of the download state machine.
type State string

const (
	StateIdle       State = "idle"
	StateSelecting  State = "selecting"
	StateRunning    State = "running"
	StateEvaluating State = "evaluating"
	StateRetrying   State = "retrying"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// StatusEvent is emitted on every state transition.
type StatusEvent struct {
	State       State  `json:"state"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
	Proxy       string `json:"proxy,omitempty"`
	Message     string `json:"message,omitempty"`
}

// StatusFunc receives state transitions.
type StatusFunc func(StatusEvent)

// AttemptRunner runs one external-downloader attempt to completion.
// *aria2.Runner is the production implementation; tests substitute
// their own.
type AttemptRunner interface {
	Run(ctx context.Context, spec aria2.Spec, onProgress types.ProgressFunc) types.Outcome
}

const (
	// progressInterval rate-limits progress emissions to the caller.
	progressInterval = 2 * time.Second
	// retryDelay separates consecutive attempts.
	retryDelay = 2 * time.Second
)

// Orchestrator coordinates one or more downloads over a shared proxy
// pool. It is safe for concurrent Download calls; per-download state
// lives on the stack of each call.
type Orchestrator struct {
	runner      AttemptRunner
	pool        *proxypool.Pool
	maxAttempts int

	onProgress types.ProgressFunc
	onStatus   StatusFunc

	// test hook; nil means real sleeping
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an orchestrator. pool may be nil when proxying is
// disabled entirely.
func New(runner AttemptRunner, pool *proxypool.Pool, maxAttempts int) *Orchestrator {
	if maxAttempts <= 0 {
		maxAttempts = types.DefaultMaxAttempts
	}
	return &Orchestrator{
		runner:      runner,
		pool:        pool,
		maxAttempts: maxAttempts,
	}
}

// SetProgressFunc installs the caller's progress sink. Emissions are
// rate-limited to one per ~2 seconds.
func (o *Orchestrator) SetProgressFunc(fn types.ProgressFunc) {
	o.onProgress = fn
}

// SetStatusFunc installs the caller's status sink.
func (o *Orchestrator) SetStatusFunc(fn StatusFunc) {
	o.onStatus = fn
}

// Download runs the full state machine for one target and blocks until
// a terminal outcome. Per-attempt failures are absorbed into retry
// decisions; only the terminal outcome is returned, carrying the last
// concrete reason.
func (o *Orchestrator) Download(ctx context.Context, target types.DownloadTarget) types.Outcome {
	l := logger.WithComponent("Orchestrator")

	var (
		lastReason types.FailReason
		lastDetail string
	)

	o.emitStatus(StatusEvent{State: StateIdle, MaxAttempts: o.maxAttempts})

	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		// Cancellation is honored at attempt boundaries as well as
		// inside the running subprocess.
		if ctx.Err() != nil {
			o.emitStatus(StatusEvent{State: StateCancelled, Attempt: attempt, MaxAttempts: o.maxAttempts})
			return types.Cancelled()
		}

		o.emitStatus(StatusEvent{State: StateSelecting, Attempt: attempt, MaxAttempts: o.maxAttempts})

		proxy := o.selectProxy()
		proxyURL := ""
		if proxy != nil {
			proxyURL = proxy.URL
		}

		attemptID := uuid.NewString()
		l.Info().
			Str("attempt_id", attemptID).
			Int("attempt", attempt).
			Int("max_attempts", o.maxAttempts).
			Str("proxy", proxyURL).
			Str("url", target.URL).
			Msg("Starting attempt.")

		o.emitStatus(StatusEvent{State: StateRunning, Attempt: attempt, MaxAttempts: o.maxAttempts, Proxy: proxyURL})

		spec := aria2.Spec{
			Target:    target,
			ProxyURL:  proxyURL,
			UserAgent: useragent.Random(),
		}

		outcome := o.runner.Run(ctx, spec, o.throttledProgress())

		o.emitStatus(StatusEvent{State: StateEvaluating, Attempt: attempt, MaxAttempts: o.maxAttempts, Proxy: proxyURL})

		switch outcome.Kind {
		case types.OutcomeSuccess:
			if proxy != nil {
				o.pool.MarkHealthy(proxy.URL)
			}
			l.Info().Str("attempt_id", attemptID).Int64("size", outcome.FinalSize).Msg("Download succeeded.")
			o.emitStatus(StatusEvent{
				State:       StateSucceeded,
				Attempt:     attempt,
				MaxAttempts: o.maxAttempts,
				Message:     fmt.Sprintf("downloaded %d bytes", outcome.FinalSize),
			})
			return outcome

		case types.OutcomeCancelled:
			o.emitStatus(StatusEvent{State: StateCancelled, Attempt: attempt, MaxAttempts: o.maxAttempts})
			return outcome
		}

		lastReason = outcome.Reason
		lastDetail = outcome.Detail
		l.Warn().
			Str("attempt_id", attemptID).
			Str("reason", string(outcome.Reason)).
			Str("detail", outcome.Detail).
			Msg("Attempt failed.")

		if outcome.Reason == types.FailProxyError && proxy != nil {
			o.pool.MarkFailed(proxy.URL)
		}

		if !outcome.Reason.Retriable() {
			break
		}

		if attempt < o.maxAttempts {
			o.emitStatus(StatusEvent{State: StateRetrying, Attempt: attempt, MaxAttempts: o.maxAttempts})
			if err := o.wait(ctx, retryDelay); err != nil {
				o.emitStatus(StatusEvent{State: StateCancelled, Attempt: attempt, MaxAttempts: o.maxAttempts})
				return types.Cancelled()
			}
		}
	}

	final := o.terminalFailure(lastReason, lastDetail)
	o.emitStatus(StatusEvent{
		State:       StateFailed,
		Attempt:     o.maxAttempts,
		MaxAttempts: o.maxAttempts,
		Message:     final.Detail,
	})
	return final
}

// selectProxy pulls the next proxy when proxying is enabled. A nil
// return means a direct attempt.
func (o *Orchestrator) selectProxy() *model.Proxy {
	if o.pool == nil || !o.pool.Enabled() {
		return nil
	}
	proxy := o.pool.Next()
	if proxy == nil {
		l := logger.WithComponent("Orchestrator")
		l.Warn().Msg("No usable proxy available, falling back to direct connection.")
	}
	return proxy
}

// terminalFailure converts the last attempt's reason into the single
// user-facing failure, never raw subprocess diagnostics.
func (o *Orchestrator) terminalFailure(reason types.FailReason, detail string) types.Outcome {
	switch reason {
	case types.FailSizeExceeded:
		return types.Failed(reason, "file size exceeds the destination limit")
	case types.FailProxyError:
		return types.Failed(reason, fmt.Sprintf("all %d attempts exhausted, every proxy was rejected or rate-limited", o.maxAttempts))
	case types.FailTimeout:
		return types.Failed(reason, fmt.Sprintf("all %d attempts exhausted, the last one timed out", o.maxAttempts))
	default:
		msg := fmt.Sprintf("all %d attempts exhausted", o.maxAttempts)
		if detail != "" {
			msg = fmt.Sprintf("%s (last error: %s)", msg, detail)
		}
		return types.Failed(reason, msg)
	}
}

// throttledProgress wraps the caller's sink so the subprocess stream
// cannot flood it: at most one emission per progressInterval.
func (o *Orchestrator) throttledProgress() types.ProgressFunc {
	if o.onProgress == nil {
		return nil
	}

	var mu sync.Mutex
	var lastEmit time.Time

	return func(snap types.ProgressSnapshot) {
		mu.Lock()
		if time.Since(lastEmit) < progressInterval {
			mu.Unlock()
			return
		}
		lastEmit = time.Now()
		mu.Unlock()

		o.onProgress(snap)
	}
}

func (o *Orchestrator) emitStatus(ev StatusEvent) {
	if o.onStatus != nil {
		o.onStatus(ev)
	}
}

// wait sleeps for d or returns early with the context's error.
func (o *Orchestrator) wait(ctx context.Context, d time.Duration) error {
	if o.sleep != nil {
		return o.sleep(ctx, d)
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

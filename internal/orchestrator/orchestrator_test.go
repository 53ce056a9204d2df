package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"pixelfetch/internal/aria2"
	"pixelfetch/internal/shared/types"
	"pixelfetch/proxypool"
)

// fakeRunner returns scripted outcomes and records the specs it saw.
type fakeRunner struct {
	mu       sync.Mutex
	outcomes []types.Outcome
	specs    []aria2.Spec
}

func (f *fakeRunner) Run(ctx context.Context, spec aria2.Spec, onProgress types.ProgressFunc) types.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.specs = append(f.specs, spec)
	if len(f.outcomes) == 0 {
		return types.Succeeded(0)
	}
	out := f.outcomes[0]
	if len(f.outcomes) > 1 {
		f.outcomes = f.outcomes[1:]
	}
	return out
}

func (f *fakeRunner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.specs)
}

func newTestOrchestrator(runner AttemptRunner, pool *proxypool.Pool, maxAttempts int) *Orchestrator {
	o := New(runner, pool, maxAttempts)
	o.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return o
}

func testPool(t *testing.T, manualList string) *proxypool.Pool {
	t.Helper()
	return proxypool.New(types.ProxyConf{Enabled: true, ManualList: manualList})
}

func TestDownload_ProxyErrorExhaustsAllAttempts(t *testing.T) {
	runner := &fakeRunner{outcomes: []types.Outcome{
		types.Failed(types.FailProxyError, "429 Too Many Requests"),
	}}
	pool := testPool(t, "http://a:8080,http://b:8080,http://c:8080")
	o := newTestOrchestrator(runner, pool, 3)

	outcome := o.Download(context.Background(), types.DownloadTarget{URL: "https://example.test/f"})

	if runner.calls() != 3 {
		t.Errorf("attempts = %d, want 3", runner.calls())
	}
	if outcome.Kind != types.OutcomeFailure || outcome.Reason != types.FailProxyError {
		t.Errorf("outcome = %+v, want proxy-error failure", outcome)
	}
	if outcome.Detail == "429 Too Many Requests" {
		t.Error("terminal detail must not be raw subprocess diagnostics")
	}

	// Every used proxy was marked failed.
	if pool.UsableCount() != 0 {
		t.Errorf("usable proxies = %d, want 0 after exhaustion", pool.UsableCount())
	}

	// Each attempt rotated to a different proxy.
	seen := make(map[string]bool)
	for _, spec := range runner.specs {
		if spec.ProxyURL == "" {
			t.Error("attempt ran direct while proxies were usable")
		}
		seen[spec.ProxyURL] = true
	}
	if len(seen) != 3 {
		t.Errorf("distinct proxies used = %d, want 3", len(seen))
	}
}

func TestDownload_SizeExceededIsNotRetried(t *testing.T) {
	runner := &fakeRunner{outcomes: []types.Outcome{
		types.Failed(types.FailSizeExceeded, "file exceeds the 100 byte ceiling"),
	}}
	o := newTestOrchestrator(runner, testPool(t, "http://a:8080,http://b:8080"), 3)

	outcome := o.Download(context.Background(), types.DownloadTarget{URL: "https://example.test/f"})

	if runner.calls() != 1 {
		t.Errorf("attempts = %d, want 1 for a non-retriable failure", runner.calls())
	}
	if outcome.Reason != types.FailSizeExceeded {
		t.Errorf("reason = %s, want size-exceeded", outcome.Reason)
	}
}

func TestDownload_RecoversAfterTwoCrashes(t *testing.T) {
	runner := &fakeRunner{outcomes: []types.Outcome{
		types.Failed(types.FailProcessCrash, "exit status 7"),
		types.Failed(types.FailProcessCrash, "exit status 7"),
		types.Succeeded(12345),
	}}
	o := newTestOrchestrator(runner, nil, 3)

	outcome := o.Download(context.Background(), types.DownloadTarget{URL: "https://example.test/f"})

	if runner.calls() != 3 {
		t.Errorf("attempts = %d, want 3", runner.calls())
	}
	if outcome.Kind != types.OutcomeSuccess {
		t.Fatalf("outcome = %+v, want success", outcome)
	}
	if outcome.FinalSize != 12345 {
		t.Errorf("FinalSize = %d, want 12345", outcome.FinalSize)
	}
}

func TestDownload_CancelledOutcomeIsTerminal(t *testing.T) {
	runner := &fakeRunner{outcomes: []types.Outcome{types.Cancelled()}}
	o := newTestOrchestrator(runner, nil, 3)

	outcome := o.Download(context.Background(), types.DownloadTarget{URL: "https://example.test/f"})

	if runner.calls() != 1 {
		t.Errorf("attempts = %d, want 1", runner.calls())
	}
	if outcome.Kind != types.OutcomeCancelled {
		t.Errorf("outcome = %+v, want cancelled", outcome)
	}
}

func TestDownload_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &fakeRunner{}
	o := newTestOrchestrator(runner, nil, 3)

	outcome := o.Download(ctx, types.DownloadTarget{URL: "https://example.test/f"})

	if runner.calls() != 0 {
		t.Errorf("attempts = %d, want 0 when already cancelled", runner.calls())
	}
	if outcome.Kind != types.OutcomeCancelled {
		t.Errorf("outcome = %+v, want cancelled", outcome)
	}
}

func TestDownload_DirectFallbackWithEmptyPool(t *testing.T) {
	runner := &fakeRunner{}
	o := newTestOrchestrator(runner, testPool(t, ""), 3)

	outcome := o.Download(context.Background(), types.DownloadTarget{URL: "https://example.test/f"})

	if outcome.Kind != types.OutcomeSuccess {
		t.Fatalf("outcome = %+v, want success", outcome)
	}
	if runner.specs[0].ProxyURL != "" {
		t.Errorf("ProxyURL = %q, want direct connection", runner.specs[0].ProxyURL)
	}
}

func TestDownload_MarksProxyHealthyOnSuccess(t *testing.T) {
	runner := &fakeRunner{}
	pool := testPool(t, "http://a:8080")
	o := newTestOrchestrator(runner, pool, 3)

	if outcome := o.Download(context.Background(), types.DownloadTarget{URL: "https://example.test/f"}); outcome.Kind != types.OutcomeSuccess {
		t.Fatalf("outcome = %+v, want success", outcome)
	}
	snap := pool.Snapshot()
	if snap[0].Status != "healthy" {
		t.Errorf("proxy status = %s, want healthy", snap[0].Status)
	}
}

func TestDownload_StatusEventsEndInTerminalState(t *testing.T) {
	runner := &fakeRunner{outcomes: []types.Outcome{
		types.Failed(types.FailTimeout, "attempt exceeded its 1s budget"),
	}}
	o := newTestOrchestrator(runner, nil, 2)

	var events []StatusEvent
	o.SetStatusFunc(func(ev StatusEvent) { events = append(events, ev) })

	o.Download(context.Background(), types.DownloadTarget{URL: "https://example.test/f"})

	if len(events) == 0 {
		t.Fatal("no status events emitted")
	}
	if last := events[len(events)-1]; last.State != StateFailed {
		t.Errorf("last state = %s, want failed", last.State)
	}
}

func TestThrottledProgress_SuppressesBurst(t *testing.T) {
	o := New(&fakeRunner{}, nil, 1)

	count := 0
	o.SetProgressFunc(func(types.ProgressSnapshot) { count++ })

	fn := o.throttledProgress()
	for i := 0; i < 10; i++ {
		fn(types.ProgressSnapshot{})
	}

	if count != 1 {
		t.Errorf("emissions = %d, want 1 inside the throttle window", count)
	}
}

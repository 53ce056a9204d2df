package aria2

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pixelfetch/internal/shared/types"
)

// writeStub installs a shell script that mimics aria2c's argument
// handling far enough to learn -d and -o, then runs the given body.
// Long-running bodies must redirect their own output so an orphaned
// child cannot hold the pipes open after the shell is killed.
func writeStub(t *testing.T, body string) string {
	t.Helper()

	script := `#!/bin/sh
dir=.
out=stub.out
while [ $# -gt 0 ]; do
  case "$1" in
    -d) dir="$2"; shift 2;;
    -o) out="$2"; shift 2;;
    *) shift;;
  esac
done
` + body + "\n"

	path := filepath.Join(t.TempDir(), "aria2c-stub")
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func testTarget(t *testing.T, timeout time.Duration, ceiling int64) types.DownloadTarget {
	t.Helper()
	return types.DownloadTarget{
		URL:            "https://example.test/file",
		OutputPath:     filepath.Join(t.TempDir(), "out.bin"),
		Connections:    4,
		SizeCeiling:    ceiling,
		AttemptTimeout: timeout,
	}
}

func TestRun_Success(t *testing.T) {
	stub := writeStub(t, `
echo '[#1 SIZE:2B/4B(50%) CN:4 DL:2B ETA:1s]'
printf 'data' > "$dir/$out"
echo 'download completed'
exit 0`)

	target := testTarget(t, 10*time.Second, 0)

	var mu sync.Mutex
	var snaps []types.ProgressSnapshot
	onProgress := func(s types.ProgressSnapshot) {
		mu.Lock()
		snaps = append(snaps, s)
		mu.Unlock()
	}

	outcome := NewRunner(stub).Run(context.Background(), Spec{Target: target}, onProgress)

	if outcome.Kind != types.OutcomeSuccess {
		t.Fatalf("outcome = %+v, want success", outcome)
	}
	if outcome.FinalSize != 4 {
		t.Errorf("FinalSize = %d, want 4", outcome.FinalSize)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(snaps) == 0 {
		t.Fatal("no progress snapshots forwarded")
	}
	if snaps[0].BytesTotal != 4 || snaps[0].BytesDone != 2 {
		t.Errorf("snapshot = %+v, want done=2 total=4", snaps[0])
	}
}

func TestRun_CrashRemovesPartialOutput(t *testing.T) {
	stub := writeStub(t, `
printf 'partial' > "$dir/$out"
echo 'segment download failed' >&2
exit 7`)

	target := testTarget(t, 10*time.Second, 0)

	outcome := NewRunner(stub).Run(context.Background(), Spec{Target: target}, nil)

	if outcome.Kind != types.OutcomeFailure || outcome.Reason != types.FailProcessCrash {
		t.Fatalf("outcome = %+v, want process-crash failure", outcome)
	}
	if _, err := os.Stat(target.OutputPath); !os.IsNotExist(err) {
		t.Error("partial output was not removed")
	}
}

func TestRun_ProxySignatureClassifiesAsProxyError(t *testing.T) {
	stub := writeStub(t, `
echo 'errorCode=1 Connection refused' >&2
exit 1`)

	target := testTarget(t, 10*time.Second, 0)

	outcome := NewRunner(stub).Run(context.Background(), Spec{Target: target}, nil)

	if outcome.Reason != types.FailProxyError {
		t.Errorf("reason = %s, want proxy-error", outcome.Reason)
	}
}

func TestRun_SizeCeilingTerminatesEarly(t *testing.T) {
	stub := writeStub(t, `
printf 'partial' > "$dir/$out"
echo '[#1 SIZE:1GiB/10GiB(10%) CN:4 DL:1MiB ETA:3h]'
sleep 10 > /dev/null 2>&1`)

	target := testTarget(t, 30*time.Second, 1<<20) // 1 MiB ceiling

	start := time.Now()
	outcome := NewRunner(stub).Run(context.Background(), Spec{Target: target}, nil)

	if outcome.Reason != types.FailSizeExceeded {
		t.Fatalf("outcome = %+v, want size-exceeded", outcome)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("runner waited %s instead of terminating early", elapsed)
	}
	if _, err := os.Stat(target.OutputPath); !os.IsNotExist(err) {
		t.Error("partial output was not removed")
	}
}

func TestRun_TimeoutBudget(t *testing.T) {
	stub := writeStub(t, `sleep 10 > /dev/null 2>&1`)

	target := testTarget(t, 300*time.Millisecond, 0)

	outcome := NewRunner(stub).Run(context.Background(), Spec{Target: target}, nil)

	if outcome.Reason != types.FailTimeout {
		t.Errorf("reason = %s, want timeout", outcome.Reason)
	}
}

func TestRun_CancelledLeavesNoPartialFile(t *testing.T) {
	stub := writeStub(t, `
printf 'partial' > "$dir/$out"
sleep 10 > /dev/null 2>&1`)

	target := testTarget(t, 30*time.Second, 0)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(300 * time.Millisecond)
		cancel()
	}()

	outcome := NewRunner(stub).Run(ctx, Spec{Target: target}, nil)

	if outcome.Kind != types.OutcomeCancelled {
		t.Fatalf("outcome = %+v, want cancelled", outcome)
	}
	if _, err := os.Stat(target.OutputPath); !os.IsNotExist(err) {
		t.Error("partial output survived cancellation")
	}
}

func TestBuildArgs(t *testing.T) {
	spec := Spec{
		Target: types.DownloadTarget{
			URL:         "https://pixeldrain.com/api/file/abc",
			OutputPath:  "/tmp/dl/file.mp4",
			Connections: 8,
			Referer:     "https://pixeldrain.com/",
		},
		ProxyURL:  "http://1.2.3.4:8080",
		UserAgent: "test-agent",
	}

	args := BuildArgs(spec)

	want := map[string]string{
		"-x":           "8",
		"-s":           "8",
		"-d":           "/tmp/dl",
		"-o":           "file.mp4",
		"--all-proxy":  "http://1.2.3.4:8080",
		"--user-agent": "test-agent",
		"--referer":    "https://pixeldrain.com/",
	}
	for flag, value := range want {
		found := false
		for i := 0; i < len(args)-1; i++ {
			if args[i] == flag && args[i+1] == value {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("args missing %s %s: %v", flag, value, args)
		}
	}

	if args[len(args)-1] != spec.Target.URL {
		t.Errorf("last arg = %s, want target URL", args[len(args)-1])
	}

	// Direct attempts must not carry a proxy flag.
	direct := BuildArgs(Spec{Target: spec.Target})
	for _, a := range direct {
		if a == "--all-proxy" {
			t.Error("direct attempt still has --all-proxy")
		}
	}
}

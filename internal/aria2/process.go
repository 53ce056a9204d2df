package aria2

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"pixelfetch/internal/shared/logger"
	"pixelfetch/internal/shared/types"
)

// controlFileSuffix is aria2c's resume-control sidecar file.
const controlFileSuffix = ".aria2"

// diagnosticTailLines bounds how much unparsed output is kept for the
// failure detail.
const diagnosticTailLines = 20

// Runner supervises one aria2c subprocess per Run call.
type Runner struct {
	BinaryPath string
}

// NewRunner creates a Runner for the given aria2c binary.
func NewRunner(binaryPath string) *Runner {
	if binaryPath == "" {
		binaryPath = types.DefaultAria2cPath
	}
	return &Runner{BinaryPath: binaryPath}
}

// Run starts aria2c for one attempt, streams both output channels
// through the progress parser, and blocks until a terminal outcome.
// The per-attempt timeout and the size ceiling are enforced here; on
// any non-success outcome the partial output is removed.
func (r *Runner) Run(ctx context.Context, spec Spec, onProgress types.ProgressFunc) types.Outcome {
	l := logger.WithComponent("Aria2/Runner")
	target := spec.Target

	if dir := filepath.Dir(target.OutputPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return types.Failed(types.FailProcessCrash, fmt.Sprintf("cannot create output directory: %v", err))
		}
	}

	attemptCtx := ctx
	if target.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, target.AttemptTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(attemptCtx, r.BinaryPath, BuildArgs(spec)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return types.Failed(types.FailProcessCrash, err.Error())
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return types.Failed(types.FailProcessCrash, err.Error())
	}

	l.Info().Str("url", target.URL).Str("proxy", spec.ProxyURL).Int("connections", target.Connections).Msg("Starting aria2c.")

	if err := cmd.Start(); err != nil {
		return types.Failed(types.FailProcessCrash, fmt.Sprintf("failed to start %s: %v", r.BinaryPath, err))
	}

	var (
		mu           sync.Mutex
		fatalText    string
		sizeExceeded bool
		tail         []string
	)

	consume := func(rd io.Reader) {
		scanner := bufio.NewScanner(rd)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			snap, kind := ParseLine(line)

			switch kind {
			case LineProgress:
				if target.SizeCeiling > 0 && snap.BytesTotal > target.SizeCeiling {
					mu.Lock()
					first := !sizeExceeded
					sizeExceeded = true
					mu.Unlock()
					if first {
						l.Warn().Int64("total", snap.BytesTotal).Int64("ceiling", target.SizeCeiling).Msg("Reported size exceeds ceiling, terminating early.")
						if cmd.Process != nil {
							_ = cmd.Process.Kill()
						}
					}
				}
				if onProgress != nil {
					onProgress(snap)
				}

			case LineFatal:
				mu.Lock()
				if fatalText == "" {
					fatalText = strings.TrimSpace(line)
				}
				mu.Unlock()

			case LineNoise:
				if s := strings.TrimSpace(line); s != "" {
					mu.Lock()
					tail = append(tail, s)
					if len(tail) > diagnosticTailLines {
						tail = tail[1:]
					}
					mu.Unlock()
				}
			}
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); consume(stdout) }()
	go func() { defer wg.Done(); consume(stderr) }()
	wg.Wait()

	waitErr := cmd.Wait()

	mu.Lock()
	detail := fatalText
	if detail == "" {
		detail = strings.Join(tail, "; ")
	}
	exceeded := sizeExceeded
	proxySuspect := fatalText != ""
	mu.Unlock()

	switch {
	case ctx.Err() == context.Canceled:
		r.cleanup(target.OutputPath)
		l.Info().Str("url", target.URL).Msg("Attempt cancelled.")
		return types.Cancelled()

	case exceeded:
		r.cleanup(target.OutputPath)
		return types.Failed(types.FailSizeExceeded,
			fmt.Sprintf("file exceeds the %d byte ceiling", target.SizeCeiling))

	case attemptCtx.Err() == context.DeadlineExceeded:
		r.cleanup(target.OutputPath)
		return types.Failed(types.FailTimeout,
			fmt.Sprintf("attempt exceeded its %s budget", target.AttemptTimeout))

	case waitErr == nil:
		size := int64(0)
		if info, err := os.Stat(target.OutputPath); err == nil {
			size = info.Size()
		}
		l.Info().Str("path", target.OutputPath).Int64("size", size).Msg("aria2c finished successfully.")
		return types.Succeeded(size)

	default:
		r.cleanup(target.OutputPath)
		l.Warn().Err(waitErr).Str("detail", detail).Msg("aria2c exited with an error.")
		if proxySuspect || IsProxyErrorText(detail) || IsProxyErrorText(waitErr.Error()) {
			return types.Failed(types.FailProxyError, detail)
		}
		return types.Failed(types.FailProcessCrash, fmt.Sprintf("%v: %s", waitErr, detail))
	}
}

// cleanup removes partial output and aria2c's control file. Missing
// files are fine.
func (r *Runner) cleanup(outputPath string) {
	for _, path := range []string{outputPath, outputPath + controlFileSuffix} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			l := logger.WithComponent("Aria2/Runner")
			l.Warn().Err(err).Str("path", path).Msg("Failed to remove partial file.")
		}
	}
}

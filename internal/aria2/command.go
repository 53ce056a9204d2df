// Package aria2 owns the invocation of the external aria2c downloader:
// building its argument set, parsing its progress stream, and
// supervising one subprocess per attempt.
package aria2

import (
	"path/filepath"
	"strconv"

	"pixelfetch/internal/shared/types"
)

// Spec is everything one aria2c invocation needs beyond the target:
// the proxy chosen for this attempt (may be empty for a direct
// connection) and the User-Agent rotated in for it.
type Spec struct {
	Target    types.DownloadTarget
	ProxyURL  string
	UserAgent string
}

// BuildArgs assembles the aria2c argument list for a spec.
func BuildArgs(spec Spec) []string {
	connections := spec.Target.Connections
	if connections <= 0 {
		connections = types.DefaultConnections
	}

	outputDir := filepath.Dir(spec.Target.OutputPath)
	if outputDir == "" {
		outputDir = "."
	}
	outputFile := filepath.Base(spec.Target.OutputPath)

	args := []string{
		"-x", strconv.Itoa(connections),
		"-s", strconv.Itoa(connections),
		"-k", "1M",
		"--file-allocation=none",
		"--console-log-level=error",
		"--summary-interval=1",
		"-d", outputDir,
		"-o", outputFile,
	}

	if spec.ProxyURL != "" {
		args = append(args, "--all-proxy", spec.ProxyURL)
	}
	if spec.UserAgent != "" {
		args = append(args, "--user-agent", spec.UserAgent)
	}
	if spec.Target.Referer != "" {
		args = append(args, "--referer", spec.Target.Referer)
	}

	args = append(args, spec.Target.URL)
	return args
}

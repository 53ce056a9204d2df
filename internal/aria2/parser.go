package aria2

import (
	"strconv"
	"strings"
	"time"

	"pixelfetch/internal/shared/types"
)

// LineKind classifies one line of aria2c output.
type LineKind int

const (
	// LineNoise carries no progress information; dropped silently.
	LineNoise LineKind = iota
	// LineProgress yielded a ProgressSnapshot.
	LineProgress
	// LineCompleted is aria2c's terminal success marker.
	LineCompleted
	// LineFatal matched a known rate-limit/connection-failure signature.
	LineFatal
)

// proxySignatures are the substrings that mark a failure as caused by
// the route (rate limit or refused/reset connection) rather than by
// the process itself. Matching is case-insensitive.
var proxySignatures = []string{
	"429",
	"403",
	"too many requests",
	"rate limit",
	"rate-limit",
	"connection refused",
	"connection reset",
	"connection timed out",
	"proxy",
	"ssl/tls handshake failure",
}

// ParseLine converts one line of aria2c output into at most one
// ProgressSnapshot. Malformed lines are never an error: a line with no
// recognizable token is LineNoise, and a recognizable line with a
// malformed numeric token degrades that field to types.Unknown.
//
// Both summary forms are understood:
//
//	[#f00d SIZE:2.1GiB/8.5GiB(24%) CN:16 DL:15.3MiB ETA:7m23s]
//	8.5GiB 2.1GiB(24%) DL:15.3MiB/s ETA:7m23s CN:16
func ParseLine(line string) (types.ProgressSnapshot, LineKind) {
	snap := types.ProgressSnapshot{
		BytesDone:   types.Unknown,
		BytesTotal:  types.Unknown,
		Rate:        types.Unknown,
		ETASeconds:  types.Unknown,
		Connections: types.Unknown,
		At:          time.Now(),
	}

	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return snap, LineNoise
	}

	lower := strings.ToLower(trimmed)
	if strings.Contains(lower, "download completed") {
		return snap, LineCompleted
	}

	matched := false
	for _, field := range strings.Fields(trimmed) {
		field = strings.Trim(field, "[]")
		if field == "" || strings.HasPrefix(field, "#") {
			continue
		}

		switch {
		case strings.HasPrefix(field, "SIZE:"):
			if parseSizePair(strings.TrimPrefix(field, "SIZE:"), &snap) {
				matched = true
			}

		case strings.HasPrefix(field, "DL:"):
			matched = true
			val := strings.TrimSuffix(strings.TrimPrefix(field, "DL:"), "/s")
			if n, err := parseSize(val); err == nil {
				snap.Rate = n
			}

		case strings.HasPrefix(field, "ETA:"):
			matched = true
			if d, err := time.ParseDuration(strings.TrimPrefix(field, "ETA:")); err == nil {
				snap.ETASeconds = int64(d / time.Second)
			}

		case strings.HasPrefix(field, "CN:"):
			matched = true
			if n, err := strconv.ParseInt(strings.TrimPrefix(field, "CN:"), 10, 64); err == nil {
				snap.Connections = n
			}

		case strings.Contains(field, "%)"):
			// bare "done(pct%)" token
			if n, err := parseSize(field[:strings.Index(field, "(")]); err == nil {
				snap.BytesDone = n
				matched = true
			}

		default:
			// A bare size token with no tag is the total. A unit
			// suffix is required so stray integers in log lines are
			// not mistaken for sizes.
			if snap.BytesTotal == types.Unknown && hasUnitSuffix(field) {
				if n, err := parseSize(field); err == nil {
					snap.BytesTotal = n
					matched = true
				}
			}
		}
	}

	if !matched {
		if IsProxyErrorText(trimmed) {
			return snap, LineFatal
		}
		return snap, LineNoise
	}
	return snap, LineProgress
}

// parseSizePair handles aria2c's "done/total(pct%)" form.
func parseSizePair(val string, snap *types.ProgressSnapshot) bool {
	if i := strings.Index(val, "("); i >= 0 {
		val = val[:i]
	}

	done, total, found := strings.Cut(val, "/")
	if !found {
		if n, err := parseSize(done); err == nil {
			snap.BytesDone = n
			return true
		}
		return false
	}

	matched := false
	if n, err := parseSize(done); err == nil {
		snap.BytesDone = n
		matched = true
	}
	if n, err := parseSize(total); err == nil {
		snap.BytesTotal = n
		matched = true
	}
	return matched
}

var sizeUnits = map[string]float64{
	"":    1,
	"b":   1,
	"kib": 1 << 10,
	"mib": 1 << 20,
	"gib": 1 << 30,
	"tib": 1 << 40,
	"kb":  1e3,
	"mb":  1e6,
	"gb":  1e9,
	"tb":  1e12,
}

// hasUnitSuffix reports whether a token ends in a letter, i.e. carries
// a size unit.
func hasUnitSuffix(s string) bool {
	if s == "" {
		return false
	}
	c := s[len(s)-1]
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// parseSize converts a humanized size token like "8.5GiB" into bytes.
func parseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	i := len(s)
	for i > 0 {
		c := s[i-1]
		if c >= '0' && c <= '9' || c == '.' {
			break
		}
		i--
	}

	num := s[:i]
	unit := strings.ToLower(s[i:])

	mult, ok := sizeUnits[unit]
	if !ok {
		return 0, strconv.ErrSyntax
	}

	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, err
	}
	return int64(f * mult), nil
}

// IsProxyErrorText reports whether diagnostic text matches a known
// limit/connection signature, classifying the failure as retriable
// with proxy rotation.
func IsProxyErrorText(text string) bool {
	lower := strings.ToLower(text)
	for _, sig := range proxySignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

package aria2

import (
	"testing"

	"pixelfetch/internal/shared/types"
)

func TestParseLine_BareSummaryForm(t *testing.T) {
	snap, kind := ParseLine("8.5GiB 2.1GiB(24%) DL:15.3MiB/s ETA:7m23s CN:16")
	if kind != LineProgress {
		t.Fatalf("expected LineProgress, got %v", kind)
	}

	wantTotal := int64(8.5 * float64(1<<30))
	if snap.BytesTotal != wantTotal {
		t.Errorf("BytesTotal = %d, want %d", snap.BytesTotal, wantTotal)
	}
	doneF := 2.1 * float64(1<<30)
	wantDone := int64(doneF)
	if snap.BytesDone != wantDone {
		t.Errorf("BytesDone = %d, want %d", snap.BytesDone, wantDone)
	}
	rateF := 15.3 * float64(1<<20)
	wantRate := int64(rateF)
	if snap.Rate != wantRate {
		t.Errorf("Rate = %d, want %d", snap.Rate, wantRate)
	}
	if snap.ETASeconds != 443 {
		t.Errorf("ETASeconds = %d, want 443", snap.ETASeconds)
	}
	if snap.Connections != 16 {
		t.Errorf("Connections = %d, want 16", snap.Connections)
	}
}

func TestParseLine_Aria2cSummaryForm(t *testing.T) {
	snap, kind := ParseLine("[#f00d1e SIZE:2.1GiB/8.5GiB(24%) CN:16 DL:15.3MiB ETA:7m23s]")
	if kind != LineProgress {
		t.Fatalf("expected LineProgress, got %v", kind)
	}

	doneF := 2.1 * float64(1<<30)
	if want := int64(doneF); snap.BytesDone != want {
		t.Errorf("BytesDone = %d, want %d", snap.BytesDone, want)
	}
	if want := int64(8.5 * float64(1<<30)); snap.BytesTotal != want {
		t.Errorf("BytesTotal = %d, want %d", snap.BytesTotal, want)
	}
	rateF := 15.3 * float64(1<<20)
	if want := int64(rateF); snap.Rate != want {
		t.Errorf("Rate = %d, want %d", snap.Rate, want)
	}
	if snap.ETASeconds != 443 {
		t.Errorf("ETASeconds = %d, want 443", snap.ETASeconds)
	}
	if snap.Connections != 16 {
		t.Errorf("Connections = %d, want 16", snap.Connections)
	}
}

func TestParseLine_MissingRateDegradesToUnknown(t *testing.T) {
	snap, kind := ParseLine("8.5GiB 2.1GiB(24%) ETA:7m23s CN:16")
	if kind != LineProgress {
		t.Fatalf("expected LineProgress, got %v", kind)
	}
	if snap.Rate != types.Unknown {
		t.Errorf("Rate = %d, want Unknown", snap.Rate)
	}
	if snap.BytesDone == types.Unknown || snap.BytesTotal == types.Unknown {
		t.Error("size fields should still be parsed")
	}
}

func TestParseLine_MalformedRateTokenDegradesToUnknown(t *testing.T) {
	snap, kind := ParseLine("[#1 SIZE:1.0GiB/2.0GiB(50%) CN:8 DL:garbage ETA:3s]")
	if kind != LineProgress {
		t.Fatalf("expected LineProgress, got %v", kind)
	}
	if snap.Rate != types.Unknown {
		t.Errorf("Rate = %d, want Unknown", snap.Rate)
	}
	if snap.Connections != 8 {
		t.Errorf("Connections = %d, want 8", snap.Connections)
	}
}

func TestParseLine_Noise(t *testing.T) {
	for _, line := range []string{
		"",
		"Download Results:",
		"gid   |stat|avg speed  |path/URI",
		"Status Legend:",
		"(OK):",
	} {
		if _, kind := ParseLine(line); kind != LineNoise {
			t.Errorf("ParseLine(%q) kind = %v, want LineNoise", line, kind)
		}
	}
}

func TestParseLine_Completed(t *testing.T) {
	if _, kind := ParseLine("(OK):download completed."); kind != LineCompleted {
		t.Errorf("expected LineCompleted, got %v", kind)
	}
}

func TestParseLine_FatalSignatures(t *testing.T) {
	for _, line := range []string{
		"errorCode=1 Connection refused",
		"HTTP 429 Too Many Requests",
		"CUID#7 - Restarting the download. URI=... exception: rate limit exceeded",
	} {
		if _, kind := ParseLine(line); kind != LineFatal {
			t.Errorf("ParseLine(%q) kind = %v, want LineFatal", line, kind)
		}
	}
}

func TestParseSizeUnits(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"0B", 0},
		{"1KiB", 1024},
		{"1MiB", 1 << 20},
		{"8.5GiB", int64(8.5 * float64(1<<30))},
		{"2MB", 2000000},
	}
	for _, c := range cases {
		got, err := parseSize(c.in)
		if err != nil {
			t.Errorf("parseSize(%q) error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("parseSize(%q) = %d, want %d", c.in, got, c.want)
		}
	}

	if _, err := parseSize("garbage"); err == nil {
		t.Error("parseSize(garbage) should fail")
	}
}

func TestIsProxyErrorText(t *testing.T) {
	if !IsProxyErrorText("server returned 429") {
		t.Error("429 should classify as proxy error")
	}
	if IsProxyErrorText("disk full") {
		t.Error("disk full should not classify as proxy error")
	}
}

package types

import "time"

// Unknown marks a numeric progress field whose value has not been
// resolved yet (e.g. total size before the server answers HEAD).
const Unknown int64 = -1

// DownloadTarget describes one file the engine should fetch.
type DownloadTarget struct {
	URL            string
	OutputPath     string
	Referer        string
	Connections    int
	SizeCeiling    int64 // bytes; <=0 means unlimited
	AttemptTimeout time.Duration
}

// ProgressSnapshot is an immutable point-in-time summary of a running
// download. Fields that are not yet known carry Unknown.
type ProgressSnapshot struct {
	BytesDone   int64     `json:"bytes_done"`
	BytesTotal  int64     `json:"bytes_total"`
	Rate        int64     `json:"rate"` // bytes per second
	ETASeconds  int64     `json:"eta_seconds"`
	Connections int64     `json:"connections"`
	At          time.Time `json:"at"`
}

// Percent returns completion in [0,100], or Unknown when the total is
// not resolved yet.
func (s ProgressSnapshot) Percent() int64 {
	if s.BytesTotal <= 0 {
		return Unknown
	}
	return s.BytesDone * 100 / s.BytesTotal
}

// FailReason classifies a failed attempt or a terminal failure.
type FailReason string

const (
	FailNone         FailReason = ""
	FailProxyError   FailReason = "proxy-error"
	FailProcessCrash FailReason = "process-crash"
	FailTimeout      FailReason = "timeout"
	FailSizeExceeded FailReason = "size-exceeded"
)

// Retriable reports whether another attempt could plausibly succeed.
// A file that exceeds the destination ceiling stays too large no
// matter which proxy fetches it.
func (r FailReason) Retriable() bool {
	return r != FailSizeExceeded && r != FailNone
}

// OutcomeKind is the terminal classification of an attempt or of a
// whole orchestrated download.
type OutcomeKind string

const (
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeFailure   OutcomeKind = "failure"
	OutcomeCancelled OutcomeKind = "cancelled"
)

// Outcome is the terminal result of an attempt or download.
type Outcome struct {
	Kind      OutcomeKind `json:"kind"`
	Reason    FailReason  `json:"reason,omitempty"`
	FinalSize int64       `json:"final_size,omitempty"`
	Detail    string      `json:"detail,omitempty"`
}

func Succeeded(size int64) Outcome {
	return Outcome{Kind: OutcomeSuccess, FinalSize: size}
}

func Failed(reason FailReason, detail string) Outcome {
	return Outcome{Kind: OutcomeFailure, Reason: reason, Detail: detail}
}

func Cancelled() Outcome {
	return Outcome{Kind: OutcomeCancelled}
}

// ProgressFunc receives progress snapshots. Implementations must be
// fast; the runner calls them inline from the stream reader.
type ProgressFunc func(ProgressSnapshot)

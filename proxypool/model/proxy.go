package model

import (
	"strings"
	"time"
)

// Status is the health state of a pool entry.
type Status string

const (
	StatusUntested Status = "untested"
	StatusHealthy  Status = "healthy"
	StatusFailed   Status = "failed"
)

// Proxy is one outbound proxy candidate. The URL (scheme://host:port)
// is the unique identity inside the pool. A failed proxy is never
// removed, only skipped by selection, so a later reset policy can
// re-enable it.
type Proxy struct {
	URL    string `json:"url"`
	Source string `json:"source"` // "manual" or the scraper name

	Status       Status    `json:"status"`
	FailureCount int       `json:"failure_count"`
	LastUsed     time.Time `json:"last_used"`
	LastChecked  time.Time `json:"last_checked"`
}

// Usable reports whether selection may hand this proxy out.
func (p *Proxy) Usable() bool {
	return p.Status != StatusFailed
}

// Normalize canonicalizes a raw proxy entry: trims whitespace and
// prefixes bare host:port entries with the http scheme. The second
// return value is false when the entry cannot describe a proxy.
func Normalize(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || !strings.Contains(s, ":") {
		return "", false
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	return s, true
}

// New creates an untested pool entry from a normalized URL.
func New(url, source string) *Proxy {
	return &Proxy{
		URL:    url,
		Source: source,
		Status: StatusUntested,
	}
}

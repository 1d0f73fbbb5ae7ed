// Package metrics is the process-wide metrics facade.
//
// Core code records through the package-level helpers and never imports a
// concrete backend. Commands pick a backend at startup with SetBackend;
// until then a no-op backend swallows everything.
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Metric names understood by the backends.
const (
	HTTPRequestsTotal    = "dash_http_requests_total"
	HTTPErrorsTotal      = "dash_http_errors_total"
	HTTPRequestDuration  = "dash_http_request_duration_seconds"
	HTTPResponseDuration = "dash_http_response_duration_seconds"
	HTTPDownloadBytes    = "dash_http_download_bytes"
	FetchTotal           = "dash_fetch_total"
	FetchDuration        = "dash_fetch_duration_seconds"
	RecordsTotal         = "dash_records_total"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric observations.
//
// Implementations must be safe for concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process backend. A nil b restores the no-op.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush flushes the current backend.
func Flush() error {
	return current().Flush()
}

// RecordHTTP records one HTTP attempt.
//
// status is 0 for network errors. Durations that are negative (not
// measured) are skipped. err marks the attempt as failed regardless of
// status.
func RecordHTTP(job string, status int, err error, reqDur, respDur time.Duration, downloadBytes int64) {
	b := current()
	l := Labels{"job": job, "status": statusLabel(status)}

	b.IncCounter(HTTPRequestsTotal, 1, l)
	if err != nil || status == 0 || status >= 400 {
		b.IncCounter(HTTPErrorsTotal, 1, l)
	}
	if reqDur >= 0 {
		b.ObserveHistogram(HTTPRequestDuration, reqDur.Seconds(), l)
	}
	if respDur >= 0 {
		b.ObserveHistogram(HTTPResponseDuration, respDur.Seconds(), l)
	}
	if downloadBytes >= 0 {
		b.ObserveHistogram(HTTPDownloadBytes, float64(downloadBytes), l)
	}
}

// RecordFetch records one list fetch attempt.
//
// attempt is "primary" or "fallback"; err decides status "ok" or "error".
func RecordFetch(resource, attempt string, err error, dur time.Duration) {
	b := current()
	status := "ok"
	if err != nil {
		status = "error"
	}
	l := Labels{"resource": resource, "attempt": attempt, "status": status}
	b.IncCounter(FetchTotal, 1, l)
	if dur >= 0 {
		b.ObserveHistogram(FetchDuration, dur.Seconds(), l)
	}
}

// RecordRecords counts records delivered for a resource.
func RecordRecords(resource string, n int) {
	if n <= 0 {
		return
	}
	current().IncCounter(RecordsTotal, float64(n), Labels{"kind": resource})
}

func statusLabel(status int) string {
	if status <= 0 {
		return "network_error"
	}
	return strconv.Itoa(status)
}

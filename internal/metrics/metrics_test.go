package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type observation struct {
	name   string
	value  float64
	labels Labels
}

// recordingBackend captures every call for assertions.
type recordingBackend struct {
	mu       sync.Mutex
	counters []observation
	hists    []observation
	flushes  int
}

func (r *recordingBackend) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters = append(r.counters, observation{name, delta, labels})
}

func (r *recordingBackend) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hists = append(r.hists, observation{name, value, labels})
}

func (r *recordingBackend) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	return nil
}

func (r *recordingBackend) counter(name string) (observation, bool) {
	for _, o := range r.counters {
		if o.name == name {
			return o, true
		}
	}
	return observation{}, false
}

// These tests mutate the process backend, so they do not run in parallel.

func TestRecordHTTP(t *testing.T) {
	rb := &recordingBackend{}
	SetBackend(rb)
	t.Cleanup(func() { SetBackend(nil) })

	RecordHTTP("dash", 503, nil, 20*time.Millisecond, 30*time.Millisecond, 128)

	req, ok := rb.counter(HTTPRequestsTotal)
	if !ok || req.labels["status"] != "503" || req.labels["job"] != "dash" {
		t.Fatalf("requests counter=%+v ok=%v, want status=503 job=dash", req, ok)
	}
	if _, ok := rb.counter(HTTPErrorsTotal); !ok {
		t.Fatalf("errors counter missing for 503")
	}
	if len(rb.hists) != 3 {
		t.Fatalf("histograms=%d, want 3", len(rb.hists))
	}
}

func TestRecordHTTP_NetworkErrorSkipsUnmeasured(t *testing.T) {
	rb := &recordingBackend{}
	SetBackend(rb)
	t.Cleanup(func() { SetBackend(nil) })

	RecordHTTP("dash", 0, errors.New("dial"), 5*time.Millisecond, -1, -1)

	req, _ := rb.counter(HTTPRequestsTotal)
	if req.labels["status"] != "network_error" {
		t.Fatalf("status label=%q, want network_error", req.labels["status"])
	}
	if len(rb.hists) != 1 {
		t.Fatalf("histograms=%d, want 1 (only request duration)", len(rb.hists))
	}
}

func TestRecordFetchAndRecords(t *testing.T) {
	rb := &recordingBackend{}
	SetBackend(rb)
	t.Cleanup(func() { SetBackend(nil) })

	RecordFetch("orders", "fallback", errors.New("x"), time.Second)
	RecordRecords("orders", 0)
	RecordRecords("orders", 4)

	f, ok := rb.counter(FetchTotal)
	if !ok || f.labels["attempt"] != "fallback" || f.labels["status"] != "error" || f.labels["resource"] != "orders" {
		t.Fatalf("fetch counter=%+v ok=%v", f, ok)
	}
	r, ok := rb.counter(RecordsTotal)
	if !ok || r.value != 4 {
		t.Fatalf("records counter=%+v ok=%v, want value 4", r, ok)
	}
}

func TestFlushAndNilBackend(t *testing.T) {
	rb := &recordingBackend{}
	SetBackend(rb)
	if err := Flush(); err != nil {
		t.Fatalf("Flush() err=%v", err)
	}
	if rb.flushes != 1 {
		t.Fatalf("flushes=%d, want 1", rb.flushes)
	}

	SetBackend(nil)
	if err := Flush(); err != nil {
		t.Fatalf("Flush() on nop err=%v", err)
	}
	RecordHTTP("dash", 200, nil, 0, 0, 0)
}

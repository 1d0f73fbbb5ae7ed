// Package datadog implements a Datadog backend for the internal/metrics package.
//
// Metrics are buffered in memory and submitted on a ticker (default once per
// minute) plus one final time on Close. Long-running dashboard processes get
// a time series instead of a single spike at exit; short CLI runs still get
// their tail flush.
//
// Concurrency model:
//   - Callers may IncCounter/ObserveHistogram at any time.
//   - Flush snapshots and resets the buffers under a mutex, then submits
//     outside the lock.
//   - The flush loop calls Flush periodically; Close stops the loop.
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"dashboard/internal/metrics"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric.
	// If empty, defaults to "dashboard".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod", "service:admin"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// Unexported test seams. Production code never sets them.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the slice of *datadogV2.MetricsApi the backend uses.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu sync.Mutex

	// List fetch metrics, keyed by resource/attempt/status.
	fetchCounts  map[string]float64
	fetchDur     map[string][]float64
	recordCounts map[string]float64

	// HTTP metrics, keyed by status.
	httpReqCounts map[string]float64
	httpErrCounts map[string]float64
	httpReqDur    map[string][]float64
	httpRespDur   map[string][]float64
	httpDownloadB map[string][]float64
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the background flush loop and performs one final Flush.
//
// Close must be called once; a second call panics on the closed stop channel.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

// NewBackend constructs a Datadog backend using the official client and
// starts its flush loop.
//
// Edge cases:
//   - opts.FlushEvery <= 0 defaults to 60s.
//   - Empty opts.JobName defaults to "dashboard".
//   - The env tag comes from ENV, then DD_ENV, else env:unknown.
//
// Credentials (DD_API_KEY, DD_SITE) are read by the client from the
// environment; network errors surface from Flush, not here.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "dashboard"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		submitter = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseTags:   baseTags,
		now:        nowFn,
		newTicker:  newTicker,
	}
	b.reset()

	go b.loop()
	return b, nil
}

func (b *Backend) reset() {
	b.fetchCounts = make(map[string]float64)
	b.fetchDur = make(map[string][]float64)
	b.recordCounts = make(map[string]float64)

	b.httpReqCounts = make(map[string]float64)
	b.httpErrCounts = make(map[string]float64)
	b.httpReqDur = make(map[string][]float64)
	b.httpRespDur = make(map[string][]float64)
	b.httpDownloadB = make(map[string][]float64)
}

// IncCounter implements metrics.Backend. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.FetchTotal:
		b.fetchCounts[fetchKey(labels)] += delta

	case metrics.RecordsTotal:
		kind := labels["kind"]
		if kind == "" {
			return
		}
		b.recordCounts[kind] += delta

	case metrics.HTTPRequestsTotal:
		b.httpReqCounts[statusOf(labels)] += delta

	case metrics.HTTPErrorsTotal:
		b.httpErrCounts[statusOf(labels)] += delta
	}
}

// ObserveHistogram implements metrics.Backend. Unknown names are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.FetchDuration:
		k := fetchKey(labels)
		b.fetchDur[k] = append(b.fetchDur[k], value)

	case metrics.HTTPRequestDuration:
		s := statusOf(labels)
		b.httpReqDur[s] = append(b.httpReqDur[s], value)

	case metrics.HTTPResponseDuration:
		s := statusOf(labels)
		b.httpRespDur[s] = append(b.httpRespDur[s], value)

	case metrics.HTTPDownloadBytes:
		s := statusOf(labels)
		b.httpDownloadB[s] = append(b.httpDownloadB[s], value)
	}
}

func statusOf(l metrics.Labels) string {
	if s := l["status"]; s != "" {
		return s
	}
	return "unknown"
}

// snapshot is the detached buffer state of one flush window.
type snapshot struct {
	fetchCounts  map[string]float64
	fetchDur     map[string][]float64
	recordCounts map[string]float64

	httpReqCounts map[string]float64
	httpErrCounts map[string]float64
	httpReqDur    map[string][]float64
	httpRespDur   map[string][]float64
	httpDownloadB map[string][]float64
}

func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{
		fetchCounts:  b.fetchCounts,
		fetchDur:     b.fetchDur,
		recordCounts: b.recordCounts,

		httpReqCounts: b.httpReqCounts,
		httpErrCounts: b.httpErrCounts,
		httpReqDur:    b.httpReqDur,
		httpRespDur:   b.httpRespDur,
		httpDownloadB: b.httpDownloadB,
	}
	b.reset()
	return s
}

func (s snapshot) isEmpty() bool {
	return len(s.fetchCounts) == 0 &&
		len(s.fetchDur) == 0 &&
		len(s.recordCounts) == 0 &&
		len(s.httpReqCounts) == 0 &&
		len(s.httpErrCounts) == 0 &&
		len(s.httpReqDur) == 0 &&
		len(s.httpRespDur) == 0 &&
		len(s.httpDownloadB) == 0
}

// Flush submits buffered metrics to Datadog and resets local buffers.
//
// Buffers are reset even when submission fails; delivery is best effort.
// Returns nil without submitting when nothing was buffered.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	series := b.buildSeries(snap, b.now().Unix())
	payload := datadogV2.MetricPayload{Series: series}

	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries is pure so series naming and tagging can be tested directly.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(s.fetchCounts)+len(s.httpReqCounts)+64)

	for k, v := range s.fetchCounts {
		series = append(series, countSeries("dash.fetch.total", v, withTags(b.baseTags, fetchTags(k)...), nowUnix))
	}
	for k, samples := range s.fetchDur {
		addPercentiles(&series, "dash.fetch.duration_seconds", withTags(b.baseTags, fetchTags(k)...), samples, nowUnix)
	}
	for kind, v := range s.recordCounts {
		series = append(series, countSeries("dash.records.total", v, withTags(b.baseTags, "kind:"+kind), nowUnix))
	}

	for status, v := range s.httpReqCounts {
		series = append(series, countSeries("dash.http.requests.total", v, withTags(b.baseTags, "status:"+status), nowUnix))
	}
	for status, v := range s.httpErrCounts {
		series = append(series, countSeries("dash.http.errors.total", v, withTags(b.baseTags, "status:"+status), nowUnix))
	}
	for status, samples := range s.httpReqDur {
		addPercentiles(&series, "dash.http.request_duration_seconds", withTags(b.baseTags, "status:"+status), samples, nowUnix)
	}
	for status, samples := range s.httpRespDur {
		addPercentiles(&series, "dash.http.response_duration_seconds", withTags(b.baseTags, "status:"+status), samples, nowUnix)
	}
	for status, samples := range s.httpDownloadB {
		addPercentiles(&series, "dash.http.download_bytes", withTags(b.baseTags, "status:"+status), samples, nowUnix)
	}

	return series
}

// addPercentiles appends p50/p90/p95/p99/max/samples gauges for samples.
// It sorts a copy; samples is not modified. Empty samples add nothing.
func addPercentiles(series *[]datadogV2.MetricSeries, metricPrefix string, tags []string, samples []float64, nowUnix int64) {
	if len(samples) == 0 {
		return
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)

	*series = append(*series,
		gaugeSeries(metricPrefix+".p50", percentileNearestRank(cp, 0.50), tags, nowUnix),
		gaugeSeries(metricPrefix+".p90", percentileNearestRank(cp, 0.90), tags, nowUnix),
		gaugeSeries(metricPrefix+".p95", percentileNearestRank(cp, 0.95), tags, nowUnix),
		gaugeSeries(metricPrefix+".p99", percentileNearestRank(cp, 0.99), tags, nowUnix),
		gaugeSeries(metricPrefix+".max", cp[len(cp)-1], tags, nowUnix),
		gaugeSeries(metricPrefix+".samples", float64(len(cp)), tags, nowUnix),
	)
}

func countSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

const keySep = "\x00"

// fetchKey encodes resource/attempt/status into one map key.
func fetchKey(l metrics.Labels) string {
	return orUnknown(l["resource"]) + keySep + orUnknown(l["attempt"]) + keySep + orUnknown(l["status"])
}

// fetchTags decodes a fetchKey into Datadog tags.
func fetchTags(k string) []string {
	parts := strings.SplitN(k, keySep, 3)
	for len(parts) < 3 {
		parts = append(parts, "unknown")
	}
	return []string{"resource:" + parts[0], "attempt:" + parts[1], "status:" + parts[2]}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	out = append(out, extras...)
	return out
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var _ metrics.Backend = (*Backend)(nil)

// ParseTagsCSV parses comma-separated tags like "env:prod,service:admin".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

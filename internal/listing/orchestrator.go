// Package listing fetches paginated resources from the admin backend and
// keeps per-view list state.
//
// The backend's pagination parameter names are not stable, so a list
// request is sent at most twice: a primary request carrying every known
// page-size alias, then one minimal fallback. The decoded response is
// handed to the normalize package; nothing here inspects payload shape.
package listing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"dashboard/internal/entity"
	"dashboard/internal/logging"
	"dashboard/internal/metrics"
	"dashboard/internal/normalize"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Transport performs one backend request and returns the decoded JSON.
//
// Implementations reject non-2xx responses with an error
// (*apiclient.APIError for the HTTP client).
type Transport interface {
	Do(ctx context.Context, method, path string, query url.Values, body any) (any, error)
}

// pageSizeKeys are sent together on the primary request; the backend
// honors whichever one it understands.
var pageSizeKeys = []string{"per_page", "perPage", "limit", "page_size", "pageSize"}

// Query is what a list view asks for.
type Query struct {
	Page    int
	PerPage int
	Filters url.Values
}

// Options configures an Orchestrator.
type Options struct {
	// Mapper resolves resource paths and collection aliases. Nil uses the
	// embedded alias table.
	Mapper *entity.Mapper

	// DefaultPerPage replaces a PerPage below 1. Defaults to 20.
	DefaultPerPage int

	// MaxPages caps how many pages FetchAll walks. Defaults to 1000.
	MaxPages int

	Logger *zap.Logger
}

// Orchestrator runs list and mutation requests over a Transport.
type Orchestrator struct {
	t              Transport
	mapper         *entity.Mapper
	defaultPerPage int
	maxPages       int
	log            *zap.Logger
	now            func() time.Time
}

// New builds an Orchestrator.
func New(t Transport, opts Options) *Orchestrator {
	m := opts.Mapper
	if m == nil {
		m = entity.NewMapper(nil)
	}
	per := opts.DefaultPerPage
	if per < 1 {
		per = 20
	}
	maxPages := opts.MaxPages
	if maxPages < 1 {
		maxPages = 1000
	}
	return &Orchestrator{
		t:              t,
		mapper:         m,
		defaultPerPage: per,
		maxPages:       maxPages,
		log:            logging.OrNop(opts.Logger),
		now:            time.Now,
	}
}

// Mapper returns the alias mapper in use.
func (o *Orchestrator) Mapper() *entity.Mapper { return o.mapper }

func (o *Orchestrator) normalizeQuery(q Query) Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 1 {
		q.PerPage = o.defaultPerPage
	}
	return q
}

func primaryValues(q Query) url.Values {
	v := url.Values{}
	for k, vals := range q.Filters {
		v[k] = append([]string(nil), vals...)
	}
	v.Set("page", strconv.Itoa(q.Page))
	per := strconv.Itoa(q.PerPage)
	for _, k := range pageSizeKeys {
		v.Set(k, per)
	}
	return v
}

func fallbackValues(q Query) url.Values {
	return url.Values{
		"page":  {strconv.Itoa(q.Page)},
		"limit": {strconv.Itoa(q.PerPage)},
	}
}

// Fetch loads one page of resource.
//
// The primary request carries page, every page-size alias and the filters.
// If it fails for any reason, exactly one fallback is sent with only page
// and limit. Requests themselves run to completion even if ctx is
// cancelled; ctx is consulted only before the fallback.
//
// Edge cases:
//   - Page < 1 is sent as 1; PerPage < 1 as the configured default.
//   - A response of unrecognized shape is not an error: it yields no items
//     and a default descriptor.
//
// Errors:
//   - Both attempts failed: the fallback's error, wrapped.
//   - ctx cancelled after a failed primary: ctx.Err() joined with the
//     primary error; no fallback is sent.
func (o *Orchestrator) Fetch(ctx context.Context, resource string, q Query) (normalize.ExtractionResult, error) {
	q = o.normalizeQuery(q)
	path := o.mapper.Path(resource)
	req := normalize.Request{Page: q.Page, PerPage: q.PerPage}
	reqCtx := context.WithoutCancel(ctx)

	v, err := o.attempt(reqCtx, resource, "primary", path, primaryValues(q))
	if err == nil {
		return o.normalize(resource, v, req), nil
	}
	o.log.Warn("list request failed; retrying with minimal pagination",
		zap.String("resource", resource),
		zap.Int("page", q.Page),
		zap.Int("per_page", q.PerPage),
		zap.Error(err),
	)

	if cerr := ctx.Err(); cerr != nil {
		return normalize.ExtractionResult{}, fmt.Errorf("listing: fetch %s: %w", resource, errors.Join(cerr, err))
	}

	v, err = o.attempt(reqCtx, resource, "fallback", path, fallbackValues(q))
	if err != nil {
		o.log.Error("list fallback failed",
			zap.String("resource", resource),
			zap.Int("page", q.Page),
			zap.Error(err),
		)
		return normalize.ExtractionResult{}, fmt.Errorf("listing: fetch %s: %w", resource, err)
	}
	return o.normalize(resource, v, req), nil
}

func (o *Orchestrator) attempt(ctx context.Context, resource, attempt, path string, query url.Values) (any, error) {
	start := o.now()
	v, err := o.t.Do(ctx, http.MethodGet, path, query, nil)
	metrics.RecordFetch(resource, attempt, err, o.now().Sub(start))
	return v, err
}

func (o *Orchestrator) normalize(resource string, v any, req normalize.Request) normalize.ExtractionResult {
	res := normalize.Normalize(v, req, o.mapper.CollectionKeys(resource)...)
	metrics.RecordRecords(resource, len(res.Items))
	return res
}

// FetchAll walks every page of resource and concatenates the items in page
// order.
//
// Page 1 is fetched first to learn LastPage; the remaining pages are
// fetched with at most concurrency requests in flight. The returned
// descriptor is page 1's with CurrentPage 1.
//
// Edge cases:
//   - concurrency < 1 is treated as 1.
//   - LastPage beyond MaxPages is truncated with a warning.
//
// Errors:
//   - The first page error encountered; remaining pages are skipped.
func (o *Orchestrator) FetchAll(ctx context.Context, resource string, q Query, concurrency int) (normalize.ExtractionResult, error) {
	q.Page = 1
	first, err := o.Fetch(ctx, resource, q)
	if err != nil {
		return normalize.ExtractionResult{}, err
	}

	last := first.Page.LastPage
	if last > o.maxPages {
		o.log.Warn("page count truncated",
			zap.String("resource", resource),
			zap.Int("last_page", last),
			zap.Int("max_pages", o.maxPages),
		)
		last = o.maxPages
	}
	if last <= 1 {
		return first, nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	// Keep asking for the size the server confirmed on page 1.
	q.PerPage = first.Page.PerPage
	pages := make([][]normalize.RawRecord, last-1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for p := 2; p <= last; p++ {
		p := p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pq := q
			pq.Page = p
			res, err := o.Fetch(gctx, resource, pq)
			if err != nil {
				return fmt.Errorf("page %d: %w", p, err)
			}
			pages[p-2] = res.Items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return normalize.ExtractionResult{}, fmt.Errorf("listing: fetch all %s: %w", resource, err)
	}

	out := first
	out.Page.CurrentPage = 1
	for _, items := range pages {
		out.Items = append(out.Items, items...)
	}
	return out, nil
}

// Mutate runs a create, update or delete and returns the affected record.
//
// Unlike Fetch, a mutation is sent once and honors ctx normally.
//
// The record is taken from the response as: the first object of a bare
// array; V.data when it is an object; the first object of V.data when it
// is an array; else V itself when it is an object. Anything else, including
// an empty body, yields an empty record.
func (o *Orchestrator) Mutate(ctx context.Context, method, path string, body any) (normalize.RawRecord, error) {
	v, err := o.t.Do(ctx, method, path, nil, body)
	if err != nil {
		o.log.Warn("mutation failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("listing: %s %s: %w", method, path, err)
	}
	return recordOf(v), nil
}

// Record loads a single record, such as a recipe for the edit form, and
// normalizes the response the same way as Mutate.
func (o *Orchestrator) Record(ctx context.Context, path string) (normalize.RawRecord, error) {
	v, err := o.t.Do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("listing: get %s: %w", path, err)
	}
	return recordOf(v), nil
}

func recordOf(v any) normalize.RawRecord {
	switch t := v.(type) {
	case []any:
		if items := normalize.ExtractItems(t); len(items) > 0 {
			return items[0]
		}
	case map[string]any:
		switch d := t["data"].(type) {
		case map[string]any:
			return d
		case []any:
			if items := normalize.ExtractItems(d); len(items) > 0 {
				return items[0]
			}
			return normalize.RawRecord{}
		}
		return t
	}
	return normalize.RawRecord{}
}

package listing

import (
	"context"
	"net/url"
	"slices"
	"sync"

	"dashboard/internal/normalize"
)

// View is the state of one on-screen list: the query it shows and the last
// result applied to it.
//
// Every fetch takes a sequence number from Begin. Apply accepts a result
// only for the most recently issued number, so a slow response to an old
// query never overwrites a newer one. Views share nothing with each other.
type View struct {
	resource string

	mu     sync.Mutex
	issued uint64
	query  Query
	sizes  []int
	result normalize.ExtractionResult
	err    error
	loaded bool
}

// ViewState is a copy of a View's state.
//
// PageSizes are the page-size selector options: the configured sizes plus
// the current page size when the server confirmed one outside them.
type ViewState struct {
	Resource  string
	Query     Query
	PageSizes []int
	Result    normalize.ExtractionResult
	Err       error
	Loaded    bool
	Seq       uint64
}

// NewView returns a view of resource starting at q.
func NewView(resource string, q Query) *View {
	return &View{resource: resource, query: cloneQuery(q)}
}

func cloneQuery(q Query) Query {
	if q.Filters != nil {
		f := make(url.Values, len(q.Filters))
		for k, v := range q.Filters {
			f[k] = append([]string(nil), v...)
		}
		q.Filters = f
	}
	return q
}

// Begin issues the next sequence number and returns it with the query to
// fetch. Any fetch begun earlier becomes stale.
func (v *View) Begin() (uint64, Query) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.issued++
	return v.issued, cloneQuery(v.query)
}

// Apply records the outcome of the fetch begun as seq.
//
// It reports false and changes nothing when seq is not the latest issued.
// On success the view adopts the server's page and, when the server
// confirmed a different page size than requested, its page size.
// On error the previous result is kept and the error stored.
func (v *View) Apply(seq uint64, res normalize.ExtractionResult, err error) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if seq != v.issued {
		return false
	}
	v.err = err
	if err != nil {
		return true
	}
	v.result = res
	v.loaded = true
	if res.Page.CurrentPage >= 1 {
		v.query.Page = res.Page.CurrentPage
	}
	if res.Page.PerPage >= 1 && res.Page.PerPage != v.query.PerPage {
		v.query.PerPage = res.Page.PerPage
	}
	return true
}

// SetPage moves to page p (values below 1 become 1).
func (v *View) SetPage(p int) {
	if p < 1 {
		p = 1
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.query.Page = p
}

// SetPerPage changes the page size and returns to page 1.
func (v *View) SetPerPage(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.query.PerPage = n
	v.query.Page = 1
}

// SetPageSizes sets the configured page-size choices. Values below 1 are
// dropped; duplicates collapse.
func (v *View) SetPageSizes(sizes []int) {
	clean := make([]int, 0, len(sizes))
	for _, n := range sizes {
		if n >= 1 {
			clean = append(clean, n)
		}
	}
	slices.Sort(clean)
	clean = slices.Compact(clean)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.sizes = clean
}

// pageSizeOptions returns sizes with current merged in, ascending.
func pageSizeOptions(sizes []int, current int) []int {
	out := append([]int(nil), sizes...)
	if current >= 1 {
		if _, found := slices.BinarySearch(out, current); !found {
			out = append(out, current)
			slices.Sort(out)
		}
	}
	return out
}

// SetFilter sets (or, with an empty value, clears) a filter and returns to
// page 1.
func (v *View) SetFilter(key, value string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.query.Filters == nil {
		v.query.Filters = url.Values{}
	}
	if value == "" {
		v.query.Filters.Del(key)
	} else {
		v.query.Filters.Set(key, value)
	}
	v.query.Page = 1
}

// State returns a copy of the view's state.
func (v *View) State() ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return ViewState{
		Resource:  v.resource,
		Query:     cloneQuery(v.query),
		PageSizes: pageSizeOptions(v.sizes, v.query.PerPage),
		Result:    v.result,
		Err:       v.err,
		Loaded:    v.loaded,
		Seq:       v.issued,
	}
}

// Load fetches the view's current query through o and applies the result.
//
// The returned result is the one fetched; applied reports whether it was
// still current when it arrived.
func (v *View) Load(ctx context.Context, o *Orchestrator) (res normalize.ExtractionResult, applied bool, err error) {
	seq, q := v.Begin()
	res, err = o.Fetch(ctx, v.resource, q)
	return res, v.Apply(seq, res, err), err
}

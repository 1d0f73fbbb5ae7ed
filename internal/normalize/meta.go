package normalize

// metaSources are the places pagination fields have been observed, in
// priority order. Some backends nest pagination under an error envelope.
var metaSources = []site{
	self,
	field("data"),
	field("error"),
	field("meta"),
	field("pagination"),
}

// Field alias lists, in priority order within a single source.
var (
	CurrentPageAliases = []string{"current_page", "currentPage", "page", "page_number", "pageNumber"}
	PerPageAliases     = []string{"per_page", "perPage", "page_size", "pageSize", "limit", "size"}
	LastPageAliases    = []string{"last_page", "lastPage", "total_pages", "totalPages", "page_count", "pageCount"}
	TotalAliases       = []string{"total", "total_count", "totalCount", "total_items", "totalItems"}
)

// findInt scans every meta source in order and, within each source, every
// alias in order. The first non-null hit ends the scan: it is returned when
// it is numeric and accepted by valid, otherwise the field is absent. Later
// sources and aliases are never consulted, and conflicting values are not
// merged.
func findInt(v any, aliases []string, valid func(int) bool) (int, bool) {
	for _, src := range metaSources {
		obj, ok := src(v).(map[string]any)
		if !ok {
			continue
		}
		for _, a := range aliases {
			raw, present := obj[a]
			if !present || raw == nil {
				continue
			}
			n, ok := AsInt(raw)
			if !ok || !valid(n) {
				return 0, false
			}
			return n, true
		}
	}
	return 0, false
}

func atLeastOne(n int) bool  { return n >= 1 }
func nonNegative(n int) bool { return n >= 0 }

// ReconcilePage derives a fully populated PageDescriptor from payload v.
//
// Resolution per field is first-found-wins over (source, alias) pairs, where
// the sources are v, v.data, v.error, v.meta and v.pagination.
//
// Defaults and derivations:
//   - PerPage falls back to req.PerPage; CurrentPage falls back to req.Page.
//   - Total falls back to itemCount.
//   - LastPage, when absent or non-numeric, is max(1, ceil(Total/PerPage)).
//
// Edge cases:
//   - The first non-null hit decides a field. When it is non-numeric or
//     below the field's lower bound (page/perPage/lastPage < 1, total < 0)
//     the field is absent; later sources are not consulted.
//   - Numeric strings are accepted ("20").
//   - A non-object payload (bare array, scalar, nil) only yields defaults.
//
// Authoritative values are returned untouched; in particular a supplied
// LastPage is never recomputed even when it disagrees with Total/PerPage.
func ReconcilePage(v any, req Request, itemCount int) PageDescriptor {
	req = req.sanitized()
	if itemCount < 0 {
		itemCount = 0
	}

	pd := PageDescriptor{CurrentPage: req.Page, PerPage: req.PerPage, Total: itemCount}

	if n, ok := findInt(v, CurrentPageAliases, atLeastOne); ok {
		pd.CurrentPage = n
	}
	if n, ok := findInt(v, PerPageAliases, atLeastOne); ok {
		pd.PerPage = n
	}
	if n, ok := findInt(v, TotalAliases, nonNegative); ok {
		pd.Total = n
	}
	if n, ok := findInt(v, LastPageAliases, atLeastOne); ok {
		pd.LastPage = n
	} else {
		pd.LastPage = LastPageFor(pd.Total, pd.PerPage)
	}
	return pd
}

// LastPageFor returns max(1, ceil(total/perPage)).
//
// Example: total=101, perPage=20 -> 6; total=100, perPage=20 -> 5.
func LastPageFor(total, perPage int) int {
	if perPage < 1 || total <= 0 {
		return 1
	}
	pages := total / perPage
	if total%perPage != 0 {
		pages++
	}
	return pages
}

// Normalize runs the array extractor and the meta reconciler over the same
// payload. The extracted item count backs Total (and therefore LastPage)
// when the backend omits it.
func Normalize(v any, req Request, extraKeys ...string) ExtractionResult {
	items := ExtractItems(v, extraKeys...)
	return ExtractionResult{
		Items: items,
		Page:  ReconcilePage(v, req, len(items)),
	}
}

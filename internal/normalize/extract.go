package normalize

// site resolves one candidate location of the record array inside a payload.
// It returns nil when the location does not exist.
type site func(v any) any

// baseSites are tried in order before any resource-specific alias.
var baseSites = []site{
	self,
	field("data"),
	field("result"),
	field("results"),
	field("items"),
	field("records"),
}

func self(v any) any { return v }

func field(key string) site {
	return func(v any) any {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		return obj[key]
	}
}

// ExtractItems locates the list of records inside v.
//
// Candidate sites, in priority order:
//   - v itself
//   - v.data, v.result, v.results, v.items, v.records
//   - v.<extraKey> for each resource alias (e.g. "addons"), in the given order
//
// The first candidate that is an array wins. A candidate that is not an array
// but whose "data" member is one is unwrapped one level, which covers the
// {data: {data: [...]}} envelope.
//
// Edge cases:
//   - No recognizable array yields an empty, non-nil slice.
//   - Elements that are not JSON objects (null, scalars, nested arrays) are
//     skipped; object order is preserved.
func ExtractItems(v any, extraKeys ...string) []RawRecord {
	sites := make([]site, 0, len(baseSites)+len(extraKeys))
	sites = append(sites, baseSites...)
	for _, k := range extraKeys {
		if k != "" {
			sites = append(sites, field(k))
		}
	}

	for _, s := range sites {
		if arr, ok := arrayAt(s(v)); ok {
			return recordsOf(arr)
		}
	}
	return []RawRecord{}
}

// arrayAt reports the array at candidate c, unwrapping c.data once.
func arrayAt(c any) ([]any, bool) {
	if arr, ok := c.([]any); ok {
		return arr, true
	}
	if arr, ok := field("data")(c).([]any); ok {
		return arr, true
	}
	return nil, false
}

func recordsOf(arr []any) []RawRecord {
	out := make([]RawRecord, 0, len(arr))
	for _, el := range arr {
		if obj, ok := el.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

// Package normalize turns arbitrary backend JSON into a list of raw records
// plus a fully populated page descriptor.
//
// Everything in this package is pure: JSON value in, records/descriptor out.
// No function here performs I/O, logs, or returns an error; a payload whose
// shape is not recognized yields an empty list and a default descriptor.
//
// JSON values are expected in the form produced by encoding/json decoding
// into `any` (map[string]any, []any, string, bool, nil and either float64 or
// json.Number for numbers).
package normalize

// RawRecord is one backend entity before mapping.
type RawRecord = map[string]any

// PageDescriptor is the canonical pagination state of one list view.
//
// Invariants after ReconcilePage:
//   - CurrentPage >= 1, PerPage >= 1, LastPage >= 1, Total >= 0.
//   - When the backend did not supply a last page,
//     LastPage == max(1, ceil(Total / PerPage)).
type PageDescriptor struct {
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
	LastPage    int `json:"last_page"`
	Total       int `json:"total"`
}

// ExtractionResult is the list plus pagination a view renders.
type ExtractionResult struct {
	Items []RawRecord    `json:"items"`
	Page  PageDescriptor `json:"page"`
}

// Request is the page/perPage the caller asked for. It supplies defaults
// for descriptor fields the backend omitted.
type Request struct {
	Page    int
	PerPage int
}

func (r Request) sanitized() Request {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PerPage < 1 {
		r.PerPage = 1
	}
	return r
}

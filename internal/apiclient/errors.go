package apiclient

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// maxMessageLen bounds messages lifted from response bodies.
const maxMessageLen = 200

// APIError is a non-2xx response.
type APIError struct {
	Status    int
	Message   string
	Body      []byte
	RequestID string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("apiclient: status %d: %s", e.Status, e.Message)
}

// messageFrom picks a human-readable message out of an error body.
//
// JSON bodies are searched for message, error, detail and errors[0] in
// that order; HTML pages yield their <title> or, failing that, their
// collapsed body text. Anything else falls back to the trimmed body and
// finally to the status text.
func messageFrom(body []byte, contentType string, status int) string {
	trimmed := bytes.TrimSpace(body)

	if v, err := decodeJSON(trimmed); err == nil {
		if m := jsonMessage(v); m != "" {
			return truncate(m)
		}
	}

	if strings.Contains(contentType, "html") || bytes.HasPrefix(trimmed, []byte("<")) {
		if m := htmlMessage(trimmed); m != "" {
			return truncate(m)
		}
	}

	if len(trimmed) > 0 && utf8.Valid(trimmed) && !bytes.HasPrefix(trimmed, []byte("{")) && !bytes.HasPrefix(trimmed, []byte("[")) {
		return truncate(collapse(string(trimmed)))
	}
	if t := http.StatusText(status); t != "" {
		return t
	}
	return fmt.Sprintf("status %d", status)
}

func jsonMessage(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		for _, k := range []string{"message", "error", "detail"} {
			if m := jsonMessage(t[k]); m != "" {
				return m
			}
		}
		if errs, ok := t["errors"].([]any); ok && len(errs) > 0 {
			return jsonMessage(errs[0])
		}
		// Validation errors keyed by field: {"errors": {"name": ["required"]}}.
		if errs, ok := t["errors"].(map[string]any); ok {
			for _, k := range sortedKeys(errs) {
				if m := jsonMessage(errs[k]); m != "" {
					return k + ": " + m
				}
			}
		}
	case []any:
		if len(t) > 0 {
			return jsonMessage(t[0])
		}
	}
	return ""
}

func htmlMessage(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	if title := collapse(doc.Find("title").First().Text()); title != "" {
		return title
	}
	if h1 := collapse(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return collapse(doc.Find("body").Text())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxMessageLen {
		return s
	}
	r := []rune(s)
	return string(r[:maxMessageLen]) + "…"
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

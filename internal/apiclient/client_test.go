package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestClient(t *testing.T, h http.HandlerFunc, tokens TokenSource) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(Options{
		BaseURL:      srv.URL + "/api/",
		Tokens:       tokens,
		HTTPClient:   srv.Client(),
		newRequestID: func() string { return "req-1" },
	})
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	return c
}

func TestNew_RejectsRelativeBase(t *testing.T) {
	t.Parallel()

	for _, base := range []string{"", "/api", "::bad"} {
		if _, err := New(Options{BaseURL: base}); err == nil {
			t.Fatalf("New(%q) err=nil, want error", base)
		}
	}
}

func TestGet_HeadersQueryAndNumbers(t *testing.T) {
	t.Parallel()

	var gotPath, gotQuery, gotAuth, gotReqID string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get("X-Request-ID")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":[{"id":9007199254740993}]}`)
	}, StaticToken("secret"))

	v, err := c.Get(context.Background(), "/orders", url.Values{"page": {"2"}})
	if err != nil {
		t.Fatalf("Get() err=%v", err)
	}
	if gotPath != "/api/orders" || gotQuery != "page=2" {
		t.Fatalf("path=%q query=%q", gotPath, gotQuery)
	}
	if gotAuth != "Bearer secret" || gotReqID != "req-1" {
		t.Fatalf("auth=%q reqID=%q", gotAuth, gotReqID)
	}

	id := v.(map[string]any)["data"].([]any)[0].(map[string]any)["id"]
	if id != json.Number("9007199254740993") {
		t.Fatalf("id=%#v, want json.Number preserving precision", id)
	}
}

func TestPost_SendsJSON(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	var gotMethod, gotCT, gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotCT = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"data":{"id":1}}`)
	}, nil)

	if _, err := c.Post(context.Background(), "addons", map[string]any{"name": "Cheese"}); err != nil {
		t.Fatalf("Post() err=%v", err)
	}
	if gotMethod != http.MethodPost || gotCT != "application/json" {
		t.Fatalf("method=%q content-type=%q", gotMethod, gotCT)
	}
	if gotAuth != "" {
		t.Fatalf("Authorization=%q, want none for empty token", gotAuth)
	}
	if diff := cmp.Diff(map[string]any{"name": "Cheese"}, gotBody); diff != "" {
		t.Fatalf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestDelete_NoContent(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method=%s, want DELETE", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	}, nil)

	v, err := c.Delete(context.Background(), "/addons/3")
	if err != nil || v != nil {
		t.Fatalf("Delete()=(%v,%v), want (nil,nil)", v, err)
	}
}

func TestDo_APIErrorMessages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		ctype   string
		body    string
		wantMsg string
	}{
		{name: "json_message", status: 422, ctype: "application/json", body: `{"message":"name is required"}`, wantMsg: "name is required"},
		{name: "json_error_string", status: 400, ctype: "application/json", body: `{"error":"bad page"}`, wantMsg: "bad page"},
		{name: "json_error_object", status: 400, ctype: "application/json", body: `{"error":{"message":"nested"}}`, wantMsg: "nested"},
		{name: "json_detail", status: 404, ctype: "application/json", body: `{"detail":"Not found."}`, wantMsg: "Not found."},
		{name: "json_errors_list", status: 422, ctype: "application/json", body: `{"errors":[{"message":"first"},{"message":"second"}]}`, wantMsg: "first"},
		{name: "json_errors_by_field", status: 422, ctype: "application/json", body: `{"errors":{"price":["must be positive"]}}`, wantMsg: "price: must be positive"},
		{name: "json_without_message", status: 500, ctype: "application/json", body: `{"code":7}`, wantMsg: "Internal Server Error"},
		{name: "html_title", status: 502, ctype: "text/html", body: "<html><head><title> 502 Bad\n Gateway </title></head><body>nginx</body></html>", wantMsg: "502 Bad Gateway"},
		{name: "html_body_only", status: 500, ctype: "text/html", body: "<html><body><p>Server   exploded</p></body></html>", wantMsg: "Server exploded"},
		{name: "plain_text", status: 503, ctype: "text/plain", body: "maintenance", wantMsg: "maintenance"},
		{name: "empty_body", status: 401, ctype: "", body: "", wantMsg: "Unauthorized"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if tc.ctype != "" {
					w.Header().Set("Content-Type", tc.ctype)
				}
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}, nil)

			_, err := c.Get(context.Background(), "x", nil)
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err=%v, want *APIError", err)
			}
			if apiErr.Status != tc.status || apiErr.Message != tc.wantMsg {
				t.Fatalf("APIError=%d %q, want %d %q", apiErr.Status, apiErr.Message, tc.status, tc.wantMsg)
			}
			if string(apiErr.Body) != tc.body || apiErr.RequestID != "req-1" {
				t.Fatalf("Body=%q RequestID=%q", apiErr.Body, apiErr.RequestID)
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("Error()=%q missing message", err.Error())
			}
		})
	}
}

func TestDo_UndecodableSuccessIsError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data": [`)
	}, nil)

	_, err := c.Get(context.Background(), "x", nil)
	if err == nil || !strings.Contains(err.Error(), "decode") {
		t.Fatalf("err=%v, want decode error", err)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Fatalf("decode failure surfaced as APIError")
	}
}

type failingTokens struct{}

func (failingTokens) Token(context.Context) (string, error) { return "", errors.New("expired") }

func TestDo_TokenError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("request sent despite token failure")
	}, failingTokens{})

	if _, err := c.Get(context.Background(), "x", nil); err == nil || !strings.Contains(err.Error(), "expired") {
		t.Fatalf("err=%v, want token error", err)
	}
}

func TestDo_NetworkError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := New(Options{BaseURL: base})
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	_, err = c.Get(context.Background(), "x", nil)
	if err == nil {
		t.Fatalf("Get() against closed server err=nil")
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Fatalf("network failure surfaced as APIError")
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	c, err := New(Options{BaseURL: "https://admin.example.com/api"})
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	tests := []struct {
		path  string
		query url.Values
		want  string
	}{
		{path: "orders", want: "https://admin.example.com/api/orders"},
		{path: "/orders/7", want: "https://admin.example.com/api/orders/7"},
		{path: "orders", query: url.Values{"limit": {"5"}, "page": {"1"}}, want: "https://admin.example.com/api/orders?limit=5&page=1"},
		{path: "https://cdn.example.com/x.json", want: "https://cdn.example.com/x.json"},
	}
	for _, tc := range tests {
		if got := c.resolve(tc.path, tc.query); got != tc.want {
			t.Fatalf("resolve(%q)=%q, want %q", tc.path, got, tc.want)
		}
	}
}

package improve

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestImprover(url, key string) *Improver {
	return New(Config{URL: url, Model: "test-model", APIKey: key, Timeout: 5 * time.Second}, nil)
}

func TestImproveDisabledWithoutKey(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	i := newTestImprover(srv.URL, "")
	if got := i.Improve(context.Background(), "raw text"); got != "raw text" {
		t.Errorf("Improve = %q, want passthrough", got)
	}
	if calls.Load() != 0 {
		t.Error("disabled improver must not call out")
	}
}

func TestImproveSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer k123" {
			t.Errorf("auth header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  structured text  "}}]}`))
	}))
	defer srv.Close()

	i := newTestImprover(srv.URL, "k123")
	if got := i.Improve(context.Background(), "raw text"); got != "structured text" {
		t.Errorf("Improve = %q, want %q", got, "structured text")
	}
}

func TestImproveFallsBackOnHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	i := newTestImprover(srv.URL, "k123")
	if got := i.Improve(context.Background(), "raw text"); got != "raw text" {
		t.Errorf("Improve = %q, want fallback to input", got)
	}
}

func TestImproveFallsBackOnBadShape(t *testing.T) {
	cases := []string{
		`{"choices":[]}`,
		`{"error":{"message":"quota"}}`,
		`{"choices":[{"message":{}}]}`,
		`not json at all`,
	}
	for _, payload := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(payload))
		}))
		i := newTestImprover(srv.URL, "k123")
		if got := i.Improve(context.Background(), "raw text"); got != "raw text" {
			t.Errorf("payload %q: Improve = %q, want fallback", payload, got)
		}
		srv.Close()
	}
}

func TestImproveBlankContentFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"   "}}]}`))
	}))
	defer srv.Close()

	i := newTestImprover(srv.URL, "k123")
	if got := i.Improve(context.Background(), "raw text"); got != "raw text" {
		t.Errorf("Improve = %q, want fallback on blank content", got)
	}
}

func TestImproveBlankInputSkipsCall(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	i := newTestImprover(srv.URL, "k123")
	if got := i.Improve(context.Background(), "  \n "); got != "  \n " {
		t.Errorf("blank input must pass through, got %q", got)
	}
	if calls.Load() != 0 {
		t.Error("blank input must not call out")
	}
}

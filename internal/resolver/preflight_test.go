package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPreflight_HeadAccepted(t *testing.T) {
	var methods []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := preflight(context.Background(), srv.Client(), srv.URL, nil); err != nil {
		t.Fatalf("preflight() error = %v", err)
	}
	if len(methods) != 1 || methods[0] != http.MethodHead {
		t.Fatalf("methods = %v, want single HEAD", methods)
	}
}

func TestPreflight_HeadRejectedFallsBackToRangedGet(t *testing.T) {
	var gotRange string
	var methods []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		gotRange = r.Header.Get("Range")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte{0})
	}))
	defer srv.Close()

	if err := preflight(context.Background(), srv.Client(), srv.URL, nil); err != nil {
		t.Fatalf("preflight() error = %v", err)
	}
	if len(methods) != 2 || methods[1] != http.MethodGet {
		t.Fatalf("methods = %v, want HEAD then GET", methods)
	}
	if gotRange != "bytes=0-0" {
		t.Fatalf("Range = %q, want bytes=0-0", gotRange)
	}
}

func TestPreflight_HardFailureDoesNotRetry(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if err := preflight(context.Background(), srv.Client(), srv.URL, nil); err == nil {
		t.Fatal("preflight() = nil, want error for 404")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (404 is not a HEAD rejection)", calls)
	}
}

func TestPreflight_ForwardsHeaders(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	headers := map[string]string{"User-Agent": "playflow-test/1.0"}
	if err := preflight(context.Background(), srv.Client(), srv.URL, headers); err != nil {
		t.Fatalf("preflight() error = %v", err)
	}
	if gotUA != "playflow-test/1.0" {
		t.Fatalf("User-Agent = %q", gotUA)
	}
}

package earthengine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(url string) *Client {
	c := NewClient(url, "token")
	c.baseBackoff = time.Millisecond
	return c
}

func TestEvaluateDecodesRaster(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/evaluate" {
			t.Errorf("path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Errorf("auth header %q", got)
		}
		var req struct {
			Expression *Expr `json:"expression"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Expression == nil || req.Expression.Op != "reproject" {
			t.Errorf("unexpected expression %+v", req.Expression)
		}
		_ = json.NewEncoder(w).Encode(Raster{
			CRS: "EPSG:5070", Scale: 30, Width: 2, Height: 1,
			Values: []float64{1, 0}, Mask: []bool{true, true},
		})
	}))
	defer srv.Close()

	img := NewImage("a").Reproject("EPSG:5070", 30)
	r, err := testClient(srv.URL).Evaluate(context.Background(), img)
	if err != nil {
		t.Fatal(err)
	}
	if r.CRS != "EPSG:5070" || r.Width != 2 || len(r.Values) != 2 {
		t.Fatalf("raster %+v", r)
	}
}

func TestEvaluateRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(Raster{Width: 1, Height: 1, Values: []float64{7}})
	}))
	defer srv.Close()

	r, err := testClient(srv.URL).Evaluate(context.Background(), NewImage("a"))
	if err != nil {
		t.Fatal(err)
	}
	if r.Values[0] != 7 {
		t.Fatalf("value %v", r.Values[0])
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("calls %d", calls)
	}
}

func TestEvaluateSurfacesBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "asset not found"})
	}))
	defer srv.Close()

	// Lazily-surfaced failure: a bogus asset only errors at evaluation.
	_, err := testClient(srv.URL).Evaluate(context.Background(), NewImage("projects/nowhere/assets/bogus"))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestEvaluateRejectsMalformedRaster(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Raster{Width: 2, Height: 2, Values: []float64{1}})
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).Evaluate(context.Background(), NewImage("a")); err == nil {
		t.Fatal("expected validation error")
	}
}

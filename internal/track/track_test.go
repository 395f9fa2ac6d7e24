package track

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type recorded struct {
	method      string
	path        string
	contentType string
	body        []byte
}

func recordingServer(t *testing.T) (*httptest.Server, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("auth header %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		calls = append(calls, recorded{
			method: r.Method, path: r.URL.Path,
			contentType: r.Header.Get("Content-Type"), body: body,
		})
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func fastClient(url string) *Client {
	c := NewClient(url, "key")
	c.baseBackoff = time.Millisecond
	return c
}

func TestClientLifecycle(t *testing.T) {
	srv, calls := recordingServer(t)
	c := fastClient(srv.URL)
	ctx := context.Background()

	if err := c.InitRun(ctx, RunConfig{Project: "canopy", Name: "ds-cover-RGB", BatchSize: 64}); err != nil {
		t.Fatal(err)
	}
	id := c.RunID()
	if id == "" {
		t.Fatal("no run ID after init")
	}
	if err := c.LogMetrics(ctx, 3, map[string]float64{"epoch/train_loss": 0.4}); err != nil {
		t.Fatal(err)
	}
	if err := c.LogImage(ctx, "hist", []byte{0x89, 'P', 'N', 'G'}); err != nil {
		t.Fatal(err)
	}
	if err := c.UpdateSummary(ctx, map[string]any{"final/r2_score": 0.9}); err != nil {
		t.Fatal(err)
	}
	if err := c.Alert(ctx, "Run Complete", "R^2: 0.9000"); err != nil {
		t.Fatal(err)
	}
	if err := c.Finish(ctx, "finished"); err != nil {
		t.Fatal(err)
	}

	paths := []string{
		"/api/runs",
		"/api/runs/" + id + "/metrics",
		"/api/runs/" + id + "/files/hist",
		"/api/runs/" + id + "/summary",
		"/api/alerts",
		"/api/runs/" + id + "/finish",
	}
	if len(*calls) != len(paths) {
		t.Fatalf("%d calls, want %d", len(*calls), len(paths))
	}
	for i, want := range paths {
		if (*calls)[i].path != want {
			t.Fatalf("call %d path %s, want %s", i, (*calls)[i].path, want)
		}
	}

	var init struct {
		ID     string    `json:"id"`
		Config RunConfig `json:"config"`
	}
	if err := json.Unmarshal((*calls)[0].body, &init); err != nil {
		t.Fatal(err)
	}
	if init.ID != id || init.Config.Project != "canopy" || init.Config.BatchSize != 64 {
		t.Fatalf("init payload %+v", init)
	}
	if ct := (*calls)[2].contentType; ct != "image/png" {
		t.Fatalf("image content type %s", ct)
	}
	if !bytes.HasPrefix((*calls)[2].body, []byte{0x89, 'P', 'N', 'G'}) {
		t.Fatal("image body not forwarded")
	}
	var metricsBody struct {
		Step    int                `json:"step"`
		Metrics map[string]float64 `json:"metrics"`
	}
	if err := json.Unmarshal((*calls)[1].body, &metricsBody); err != nil {
		t.Fatal(err)
	}
	if metricsBody.Step != 3 || metricsBody.Metrics["epoch/train_loss"] != 0.4 {
		t.Fatalf("metrics payload %+v", metricsBody)
	}
}

func TestCallsBeforeInitRunFail(t *testing.T) {
	c := fastClient("http://unused")
	ctx := context.Background()
	if err := c.LogMetrics(ctx, 1, nil); err == nil {
		t.Fatal("expected no-active-run error")
	}
	if err := c.Finish(ctx, "finished"); err == nil {
		t.Fatal("expected no-active-run error")
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := fastClient(srv.URL).InitRun(context.Background(), RunConfig{Name: "r"}); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("calls %d", calls)
	}
}

func TestClientSurfacesServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "duplicate run config"})
	}))
	defer srv.Close()

	err := fastClient(srv.URL).InitRun(context.Background(), RunConfig{Name: "r"})
	if err == nil || !strings.Contains(err.Error(), "duplicate run config") {
		t.Fatalf("err %v", err)
	}
}

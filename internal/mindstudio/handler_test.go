package mindstudio

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newCallbackRouter(t *testing.T) (*gin.Engine, *MemoryThreadStore, *Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := NewMemoryThreadStore()
	h := NewHandler(store)
	r := gin.New()
	h.RegisterRoutes(r.Group("/api/v1"))
	return r, store, h
}

func TestCallbackStoresResultByQueryThreadID(t *testing.T) {
	r, store, _ := newCallbackRouter(t)

	body := `{"summary": "done via callback"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/mindstudio/callback?threadId=th-1", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	tr, err := store.Get(context.Background(), "th-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tr.Status != ThreadDone {
		t.Fatalf("thread status = %s", tr.Status)
	}
	if string(tr.Output) != body {
		t.Fatalf("output = %s", tr.Output)
	}
}

func TestCallbackFindsThreadIDInBody(t *testing.T) {
	r, store, _ := newCallbackRouter(t)

	body := `{"thread_id": "th-2", "summary": "found me"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/mindstudio/callback", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if _, err := store.Get(context.Background(), "th-2"); err != nil {
		t.Fatalf("thread not stored: %v", err)
	}
}

func TestCallbackForUndispatchedThreadIsStored(t *testing.T) {
	// Post-restart recovery: the callback may reference a thread this
	// process never dispatched.
	r, store, _ := newCallbackRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/mindstudio/callback?threadId=unknown-77", strings.NewReader(`{"x": 1}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	tr, err := store.Get(context.Background(), "unknown-77")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tr.Status != ThreadDone {
		t.Fatalf("thread status = %s", tr.Status)
	}
}

func TestCallbackErrorStatus(t *testing.T) {
	r, store, _ := newCallbackRouter(t)

	body := `{"threadId": "th-3", "status": "error", "message": "workflow crashed"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/mindstudio/callback", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	tr, _ := store.Get(context.Background(), "th-3")
	if tr.Status != ThreadError || tr.Error != "workflow crashed" {
		t.Fatalf("thread = %+v", tr)
	}
}

func TestCallbackWithoutThreadIDRejected(t *testing.T) {
	r, _, _ := newCallbackRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/mindstudio/callback", strings.NewReader(`{"summary": "no id"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestPollResult(t *testing.T) {
	r, store, _ := newCallbackRouter(t)

	if err := store.Complete(context.Background(), "th-4", json.RawMessage(`{"summary": "finished"}`), nil); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/mindstudio/result?threadId=th-4", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != ThreadDone {
		t.Fatalf("status field = %v", resp["status"])
	}
	if resp["output"] == nil {
		t.Fatal("expected output attached")
	}
}

func TestPollResultUnknownThread(t *testing.T) {
	r, _, _ := newCallbackRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/mindstudio/result?threadId=missing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestPollResultIsRateLimited(t *testing.T) {
	r, store, h := newCallbackRouter(t)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	h.limiter = newPollLimiter(time.Second, func() time.Time { return now })

	if err := store.MarkRunning(context.Background(), "th-5"); err != nil {
		t.Fatal(err)
	}

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/v1/mindstudio/result?threadId=th-5", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first poll status = %d", first.Code)
	}

	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/v1/mindstudio/result?threadId=th-5", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second poll status = %d, want 429", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

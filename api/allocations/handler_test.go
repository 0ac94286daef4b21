package allocations

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/agrilink/fulfillment/core/allocation"
	"github.com/agrilink/fulfillment/core/match"
	"github.com/agrilink/fulfillment/core/model"
	"github.com/agrilink/fulfillment/infra/logger"
	"github.com/agrilink/fulfillment/infra/notify"
	"github.com/agrilink/fulfillment/infra/storage"
)

func newTestMux(t *testing.T) (*http.ServeMux, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	ranker := match.NewRanker(match.NewScorer(match.DefaultWeights(), match.NewClassifier(match.DefaultKeywordTable())))
	mgr, err := allocation.NewManager(store, ranker, notify.NewMockNotifier(), nil, nil, logger.NopLogger{}, allocation.Config{})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	mux := http.NewServeMux()
	NewHandler(mgr, logger.NopLogger{}).Register(mux)
	return mux, store
}

func seedBatch(t *testing.T, store *storage.MemoryStore, id, remaining string) {
	t.Helper()
	rem, err := decimal.NewFromString(remaining)
	if err != nil {
		t.Fatalf("bad decimal: %v", err)
	}
	b := model.InventoryBatch{
		ID: id, LotCode: "LOT-" + id, Commodity: "tomato", Remaining: rem,
		Unit: "kg", IntakeDate: time.Now().Add(-24 * time.Hour),
		RiskScore: 80, Status: model.BatchActive,
	}
	if err := store.Batches().Insert(context.Background(), b); err != nil {
		t.Fatalf("insert batch: %v", err)
	}
}

func do(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func submitRequestBody() map[string]any {
	return map[string]any{
		"commodity":   "tomato",
		"quantity":    "500",
		"unit":        "kg",
		"destination": "retail store",
	}
}

func TestSubmitAndGet(t *testing.T) {
	mux, _ := newTestMux(t)
	rr := do(t, mux, "POST", "/api/requests", submitRequestBody())
	if rr.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	var created requestResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Status != "pending" || created.ID == "" {
		t.Fatalf("unexpected response %#v", created)
	}

	rr = do(t, mux, "GET", "/api/requests/"+created.ID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get status %d", rr.Code)
	}

	rr = do(t, mux, "GET", "/api/requests/unknown", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestSubmit_ValidationError(t *testing.T) {
	mux, _ := newTestMux(t)
	body := submitRequestBody()
	delete(body, "commodity")
	rr := do(t, mux, "POST", "/api/requests", body)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRankingEndpoint(t *testing.T) {
	mux, store := newTestMux(t)
	seedBatch(t, store, "b1", "1000")
	seedBatch(t, store, "b2", "200")

	rr := do(t, mux, "POST", "/api/requests", submitRequestBody())
	var created requestResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rr = do(t, mux, "GET", "/api/requests/"+created.ID+"/ranking", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	var ranked []rankedBatchResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &ranked); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(ranked))
	}
	if !ranked[0].Sufficient || ranked[1].Sufficient {
		t.Fatalf("sufficiency flags wrong: %#v", ranked)
	}
}

func TestApproveFlow(t *testing.T) {
	mux, store := newTestMux(t)
	seedBatch(t, store, "b1", "500")

	rr := do(t, mux, "POST", "/api/requests", submitRequestBody())
	var created requestResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rr = do(t, mux, "POST", "/api/requests/"+created.ID+"/review", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("review status %d", rr.Code)
	}

	rr = do(t, mux, "POST", "/api/requests/"+created.ID+"/approve", map[string]string{"batch_id": "b1"})
	if rr.Code != http.StatusOK {
		t.Fatalf("approve status %d: %s", rr.Code, rr.Body.String())
	}
	var res approveResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Request.Status != "allocated" || res.Dispatch.Status != "pending" {
		t.Fatalf("unexpected approve response %#v", res)
	}

	// Second approval conflicts: the request already committed.
	rr = do(t, mux, "POST", "/api/requests/"+created.ID+"/approve", map[string]string{"batch_id": "b1"})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}

	rr = do(t, mux, "POST", "/api/dispatches/"+res.Dispatch.ID+"/status", map[string]string{"status": "in-transit"})
	if rr.Code != http.StatusOK {
		t.Fatalf("dispatch update status %d: %s", rr.Code, rr.Body.String())
	}
	rr = do(t, mux, "GET", "/api/dispatches/"+res.Dispatch.ID, nil)
	var d dispatchResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &d); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.Status != "in-transit" {
		t.Fatalf("dispatch status = %s", d.Status)
	}
}

func TestApprove_ResponseCarriesBatchSnapshot(t *testing.T) {
	mux, store := newTestMux(t)
	seedBatch(t, store, "b1", "500")

	rr := do(t, mux, "POST", "/api/requests", submitRequestBody())
	var created requestResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	rr = do(t, mux, "POST", "/api/requests/"+created.ID+"/approve", map[string]string{"batch_id": "b1"})
	if rr.Code != http.StatusOK {
		t.Fatalf("approve status %d: %s", rr.Code, rr.Body.String())
	}

	// The caller must be able to observe the post-commit batch state
	// without a second round trip.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(rr.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := raw["batch"]; !ok {
		t.Fatalf("approve response has no batch field: %s", rr.Body.String())
	}
	var res approveResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Batch.Remaining.IsZero() {
		t.Errorf("batch remaining = %s, want 0", res.Batch.Remaining)
	}
	if res.Batch.Status != "dispatched" {
		t.Errorf("batch status = %s, want dispatched", res.Batch.Status)
	}
	if res.Batch.DispatchedAt == nil {
		t.Error("batch dispatched_at missing after depletion")
	}
	if res.Batch.ID != "b1" || res.Batch.LotCode != "LOT-b1" {
		t.Errorf("batch identity wrong: %#v", res.Batch)
	}
}

func TestApprove_InsufficientConflict(t *testing.T) {
	mux, store := newTestMux(t)
	seedBatch(t, store, "b1", "100")

	rr := do(t, mux, "POST", "/api/requests", submitRequestBody())
	var created requestResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	rr = do(t, mux, "POST", "/api/requests/"+created.ID+"/approve", map[string]string{"batch_id": "b1"})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRejectAndList(t *testing.T) {
	mux, _ := newTestMux(t)
	rr := do(t, mux, "POST", "/api/requests", submitRequestBody())
	var created requestResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rr = do(t, mux, "POST", "/api/requests/"+created.ID+"/reject", map[string]string{"reason": "stock damaged"})
	if rr.Code != http.StatusOK {
		t.Fatalf("reject status %d", rr.Code)
	}
	var rejected requestResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &rejected); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rejected.Status != "cancelled" || rejected.Notes != "stock damaged" {
		t.Fatalf("unexpected reject response %#v", rejected)
	}

	rr = do(t, mux, "GET", "/api/requests?status=cancelled", nil)
	var listed []requestResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 cancelled request, got %d", len(listed))
	}

	rr = do(t, mux, "GET", "/api/requests?status=bogus", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad status, got %d", rr.Code)
	}
}

func TestBadJSON(t *testing.T) {
	mux, _ := newTestMux(t)
	req := httptest.NewRequest("POST", "/api/requests", bytes.NewBufferString("{"))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/ActionLedger/internal/api"
	"github.com/jmerrifield20/ActionLedger/internal/auth"
	"github.com/jmerrifield20/ActionLedger/internal/chain"
	"github.com/jmerrifield20/ActionLedger/internal/ledger"
	"go.uber.org/zap"
)

const testKey = "test-api-key"

var ctx = context.Background()

func setupRouter(t *testing.T) (*gin.Engine, *ledger.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := ledger.NewMemoryStore()
	h := api.NewEventHandler(store, 100, zap.NewNop())

	r := gin.New()
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	authed := r.Group("/", api.APIKeyAuth(auth.NewKeySet([]string{testKey})))
	h.Register(authed)
	return r, store
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any, key string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if key != "" {
		req.Header.Set(api.APIKeyHeader, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSubmit_201(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(t, r, http.MethodPost, "/events", ledger.Submission{
		AgentID:    "a1",
		ActionType: "llm_start",
		InputHash:  chain.HashContent("prompt"),
	}, testKey)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var e ledger.Event
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatal(err)
	}
	if e.SequenceNumber != 1 {
		t.Errorf("sequence_number: got %d, want 1", e.SequenceNumber)
	}
	if e.OutputHash != chain.ZeroDigest {
		t.Errorf("absent output_hash: got %q, want zero digest", e.OutputHash)
	}
	if !chain.ValidDigest(e.LinkHash) {
		t.Errorf("link_hash: %q", e.LinkHash)
	}
}

func TestSubmit_400_missingActionType(t *testing.T) {
	r, store := setupRouter(t)

	w := doJSON(t, r, http.MethodPost, "/events", ledger.Submission{AgentID: "a1"}, testKey)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}

	// The rejection must not have consumed a sequence number.
	e, err := store.Append(ctx, ledger.Submission{AgentID: "a1", ActionType: "llm_start"})
	if err != nil {
		t.Fatal(err)
	}
	if e.SequenceNumber != 1 {
		t.Errorf("sequence after rejected submit: got %d, want 1", e.SequenceNumber)
	}
}

func TestSubmit_400_malformedBody(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewBufferString("{not json"))
	req.Header.Set(api.APIKeyHeader, testKey)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSubmit_401_withoutKey(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(t, r, http.MethodPost, "/events", ledger.Submission{
		AgentID:    "a1",
		ActionType: "llm_start",
	}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/events", ledger.Submission{
		AgentID:    "a1",
		ActionType: "llm_start",
	}, "wrong-key")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong key, got %d", w.Code)
	}
}

func TestVerify_200_validChain(t *testing.T) {
	r, _ := setupRouter(t)

	for _, action := range []string{"llm_start", "llm_end"} {
		w := doJSON(t, r, http.MethodPost, "/events", ledger.Submission{
			AgentID:    "a1",
			ActionType: action,
		}, testKey)
		if w.Code != http.StatusCreated {
			t.Fatalf("append %s: %d", action, w.Code)
		}
	}

	w := doJSON(t, r, http.MethodGet, "/verify?agent_id=a1", nil, testKey)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var res ledger.VerificationResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if !res.IsValid || res.EventsChecked != 2 {
		t.Errorf("verify: valid=%v checked=%d", res.IsValid, res.EventsChecked)
	}
}

func TestVerify_200_unknownAgentTriviallyValid(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(t, r, http.MethodGet, "/verify?agent_id=ghost", nil, testKey)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var res ledger.VerificationResult
	json.Unmarshal(w.Body.Bytes(), &res)
	if !res.IsValid || res.EventsChecked != 0 {
		t.Errorf("unknown agent: valid=%v checked=%d, want true/0", res.IsValid, res.EventsChecked)
	}
}

func TestVerify_400_missingAgentID(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(t, r, http.MethodGet, "/verify", nil, testKey)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestVerify_reportsTamperedChain(t *testing.T) {
	r, store := setupRouter(t)

	for _, action := range []string{"llm_start", "tool_start", "tool_end"} {
		doJSON(t, r, http.MethodPost, "/events", ledger.Submission{
			AgentID:    "a1",
			ActionType: action,
		}, testKey)
	}

	page, err := store.List(ctx, ledger.Filter{AgentID: "a1"})
	if err != nil {
		t.Fatal(err)
	}
	page.Events[1].OutputHash = chain.HashContent("forged")

	w := doJSON(t, r, http.MethodGet, "/verify?agent_id=a1", nil, testKey)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var res ledger.VerificationResult
	json.Unmarshal(w.Body.Bytes(), &res)
	if res.IsValid {
		t.Fatal("tampered chain reported valid")
	}
	if res.FirstInvalidSequence == nil || *res.FirstInvalidSequence != 2 {
		t.Errorf("first_invalid_sequence: got %v, want 2", res.FirstInvalidSequence)
	}
}

func TestList_paginationAndFilters(t *testing.T) {
	r, _ := setupRouter(t)

	for i := 0; i < 3; i++ {
		doJSON(t, r, http.MethodPost, "/events", ledger.Submission{
			AgentID:    "a1",
			ActionType: "tool_end",
		}, testKey)
	}
	doJSON(t, r, http.MethodPost, "/events", ledger.Submission{
		AgentID:    "a1",
		ActionType: "llm_start",
	}, testKey)

	w := doJSON(t, r, http.MethodGet, "/events?agent_id=a1&action_type=tool_end&page=1&page_size=2", nil, testKey)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var page ledger.Page
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 3 || len(page.Events) != 2 || page.Page != 1 || page.PageSize != 2 {
		t.Errorf("page: total=%d len=%d page=%d size=%d", page.Total, len(page.Events), page.Page, page.PageSize)
	}
}

func TestList_outOfRangePageIsEmpty(t *testing.T) {
	r, _ := setupRouter(t)
	doJSON(t, r, http.MethodPost, "/events", ledger.Submission{AgentID: "a1", ActionType: "llm_start"}, testKey)

	w := doJSON(t, r, http.MethodGet, "/events?agent_id=a1&page=50", nil, testKey)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var page ledger.Page
	json.Unmarshal(w.Body.Bytes(), &page)
	if len(page.Events) != 0 || page.Total != 1 {
		t.Errorf("out-of-range page: len=%d total=%d", len(page.Events), page.Total)
	}
}

func TestHead_200(t *testing.T) {
	r, _ := setupRouter(t)
	doJSON(t, r, http.MethodPost, "/events", ledger.Submission{AgentID: "a1", ActionType: "llm_start"}, testKey)

	w := doJSON(t, r, http.MethodGet, "/agents/a1/head", nil, testKey)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var head ledger.Head
	json.Unmarshal(w.Body.Bytes(), &head)
	if head.SequenceNumber != 1 || !chain.ValidDigest(head.LinkHash) {
		t.Errorf("head: seq=%d link=%q", head.SequenceNumber, head.LinkHash)
	}
}

func TestAgents_200(t *testing.T) {
	r, _ := setupRouter(t)
	doJSON(t, r, http.MethodPost, "/events", ledger.Submission{AgentID: "b1", ActionType: "llm_start"}, testKey)
	doJSON(t, r, http.MethodPost, "/events", ledger.Submission{AgentID: "a1", ActionType: "llm_start"}, testKey)

	w := doJSON(t, r, http.MethodGet, "/agents", nil, testKey)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Agents []string `json:"agents"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Agents) != 2 || resp.Agents[0] != "a1" {
		t.Errorf("agents: got %v", resp.Agents)
	}
}

func TestHealth_200_unauthenticated(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(t, r, http.MethodGet, "/health", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != "ok" {
		t.Errorf("status: got %q, want ok", resp["status"])
	}
}

package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jmerrifield20/ActionLedger/pkg/client"
)

var ctx = context.Background()

func TestHashContent_knownDigest(t *testing.T) {
	got := client.HashContent("hello world")
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got != want {
		t.Errorf("HashContent(\"hello world\") = %q, want %q", got, want)
	}
	if client.HashContent("a") == client.HashContent("b") {
		t.Error("distinct inputs produced identical digests")
	}
}

func TestLogEvent_sendsAuthAndBody(t *testing.T) {
	var gotKey string
	var gotSub client.EventSubmission

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/events" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotKey = r.Header.Get("X-API-Key")
		json.NewDecoder(r.Body).Decode(&gotSub)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(client.Event{
			AgentID:        gotSub.AgentID,
			SequenceNumber: 1,
			ActionType:     gotSub.ActionType,
			InputHash:      gotSub.InputHash,
			OutputHash:     client.ZeroDigest,
			LinkHash:       client.HashContent("link"),
		})
	}))
	defer srv.Close()

	c := client.MustNew(srv.URL, "sdk-key")
	e, err := c.LogEvent(ctx, client.EventSubmission{
		AgentID:    "a1",
		ActionType: "llm_start",
		InputHash:  client.HashContent("prompt"),
	})
	if err != nil {
		t.Fatal(err)
	}

	if gotKey != "sdk-key" {
		t.Errorf("X-API-Key: got %q", gotKey)
	}
	if gotSub.AgentID != "a1" || gotSub.ActionType != "llm_start" {
		t.Errorf("submitted payload: %+v", gotSub)
	}
	if e.SequenceNumber != 1 {
		t.Errorf("sequence_number: got %d, want 1", e.SequenceNumber)
	}
}

func TestLogEvent_surfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid agent_id: must not be empty"})
	}))
	defer srv.Close()

	c := client.MustNew(srv.URL, "sdk-key")
	_, err := c.LogEvent(ctx, client.EventSubmission{ActionType: "llm_start"})
	if err == nil {
		t.Fatal("expected error")
	}

	apiErr, ok := err.(*client.APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d", apiErr.StatusCode)
	}
	if apiErr.Message != "invalid agent_id: must not be empty" {
		t.Errorf("message: got %q", apiErr.Message)
	}
	if apiErr.IsRetryable() {
		t.Error("validation error reported as retryable")
	}
}

func TestAPIError_retryable(t *testing.T) {
	if !(&client.APIError{StatusCode: 503}).IsRetryable() {
		t.Error("503 should be retryable")
	}
	if !(&client.APIError{StatusCode: 429}).IsRetryable() {
		t.Error("429 should be retryable")
	}
	if (&client.APIError{StatusCode: 401}).IsRetryable() {
		t.Error("401 should not be retryable")
	}
}

func TestVerifyChain_queryAndDecode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/verify" || r.URL.Query().Get("agent_id") != "a1" {
			t.Errorf("unexpected request: %s", r.URL.String())
		}
		seq := int64(2)
		json.NewEncoder(w).Encode(client.VerificationResult{
			AgentID:              "a1",
			IsValid:              false,
			EventsChecked:        1,
			FirstInvalidSequence: &seq,
		})
	}))
	defer srv.Close()

	c := client.MustNew(srv.URL, "sdk-key")
	res, err := c.VerifyChain(ctx, "a1")
	if err != nil {
		t.Fatal(err)
	}
	if res.IsValid || res.FirstInvalidSequence == nil || *res.FirstInvalidSequence != 2 {
		t.Errorf("result: %+v", res)
	}
}

func TestListEvents_buildsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("agent_id") != "a1" || q.Get("action_type") != "tool_end" ||
			q.Get("page") != "2" || q.Get("page_size") != "10" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(client.EventPage{Page: 2, PageSize: 10})
	}))
	defer srv.Close()

	c := client.MustNew(srv.URL, "sdk-key")
	page, err := c.ListEvents(ctx, client.ListOptions{
		AgentID:    "a1",
		ActionType: "tool_end",
		Page:       2,
		PageSize:   10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if page.Page != 2 {
		t.Errorf("page: got %d", page.Page)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("X-API-Key") != "" {
			// Health is unauthenticated; the SDK still sending a key is
			// harmless, but the endpoint must not require one.
			t.Log("health request carried an API key")
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer srv.Close()

	c := client.MustNew(srv.URL, "")
	if err := c.Health(ctx); err != nil {
		t.Errorf("Health(): %v", err)
	}
}

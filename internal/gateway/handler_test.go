package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/classpoll/livepoll/internal/models"
	"github.com/classpoll/livepoll/internal/session"
)

func newTestMux(t *testing.T) (*http.ServeMux, *session.Engine) {
	t.Helper()
	store := session.NewStore()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	engine := session.NewEngine(store, clock, nil)

	mux := http.NewServeMux()
	NewHandler(engine, nil).RegisterRoutes(mux)
	return mux, engine
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	mux, _ := newTestMux(t)

	// Register two students.
	rec := doJSON(t, mux, http.MethodPost, "/api/students", map[string]string{"name": "Alice"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, want 201", rec.Code)
	}
	var reg struct {
		StudentID string `json:"studentId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &reg); err != nil {
		t.Fatalf("failed to decode register response: %v", err)
	}
	alice := reg.StudentID

	rec = doJSON(t, mux, http.MethodPost, "/api/students", map[string]string{"name": "Bob"})
	if err := json.Unmarshal(rec.Body.Bytes(), &reg); err != nil {
		t.Fatalf("failed to decode register response: %v", err)
	}
	bob := reg.StudentID

	// Create a poll; duration omitted falls back to the default.
	rec = doJSON(t, mux, http.MethodPost, "/api/polls", map[string]any{
		"question": "Capital of France?",
		"options":  []string{"Paris", "Lyon"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create poll status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var poll models.Poll
	if err := json.Unmarshal(rec.Body.Bytes(), &poll); err != nil {
		t.Fatalf("failed to decode poll: %v", err)
	}
	if poll.DurationSec != DefaultPollDurationSec {
		t.Errorf("DurationSec = %d, want default %d", poll.DurationSec, DefaultPollDurationSec)
	}

	rec = doJSON(t, mux, http.MethodGet, "/api/state/remaining", nil)
	var remaining struct {
		TimeRemainingSec int `json:"timeRemainingSec"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &remaining); err != nil {
		t.Fatalf("failed to decode remaining: %v", err)
	}
	if remaining.TimeRemainingSec != DefaultPollDurationSec {
		t.Errorf("timeRemainingSec = %d, want %d", remaining.TimeRemainingSec, DefaultPollDurationSec)
	}

	// Both students answer.
	for i, id := range []string{alice, bob} {
		rec = doJSON(t, mux, http.MethodPost, "/api/answers", map[string]any{
			"studentId":   id,
			"studentName": "student",
			"optionIndex": i,
		})
		if rec.Code != http.StatusAccepted {
			t.Fatalf("answer status = %d, want 202: %s", rec.Code, rec.Body.String())
		}
	}

	// Chat works alongside polling.
	rec = doJSON(t, mux, http.MethodPost, "/api/chat", map[string]string{
		"message":    "nice work everyone",
		"senderType": "teacher",
		"senderName": "Ms. K",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("chat status = %d, want 202", rec.Code)
	}

	// The state snapshot reflects everything.
	rec = doJSON(t, mux, http.MethodGet, "/api/state", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("state status = %d, want 200", rec.Code)
	}
	state, err := models.DecodeSnapshot(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("state response is not a valid snapshot: %v", err)
	}
	if state.Results == nil || state.Results.TotalVotes != 2 {
		t.Errorf("Results = %+v, want totalVotes 2", state.Results)
	}
	if len(state.ChatMessages) != 1 {
		t.Errorf("len(ChatMessages) = %d, want 1", len(state.ChatMessages))
	}

	// Kick Bob.
	rec = doJSON(t, mux, http.MethodPost, "/api/students/"+bob+"/kick", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("kick status = %d, want 202", rec.Code)
	}
}

func TestRejectionStatusMapping(t *testing.T) {
	mux, engine := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/students", map[string]string{"name": "Alice"})
	var reg struct {
		StudentID string `json:"studentId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &reg); err != nil {
		t.Fatalf("failed to decode register response: %v", err)
	}
	alice := reg.StudentID

	t.Run("answer with no active poll conflicts", func(t *testing.T) {
		rec := doJSON(t, mux, http.MethodPost, "/api/answers", map[string]any{
			"studentId": alice, "studentName": "Alice", "optionIndex": 0,
		})
		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", rec.Code)
		}
	})

	if _, err := engine.CreatePoll(t.Context(), "Q?", []string{"A", "B"}, 30, nil); err != nil {
		t.Fatalf("CreatePoll failed: %v", err)
	}

	t.Run("overlapping poll conflicts", func(t *testing.T) {
		rec := doJSON(t, mux, http.MethodPost, "/api/polls", map[string]any{
			"question": "Q2?", "options": []string{"A", "B"},
		})
		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", rec.Code)
		}
	})

	t.Run("invalid option index is a bad request", func(t *testing.T) {
		rec := doJSON(t, mux, http.MethodPost, "/api/answers", map[string]any{
			"studentId": alice, "studentName": "Alice", "optionIndex": 5,
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("duplicate answer conflicts", func(t *testing.T) {
		rec := doJSON(t, mux, http.MethodPost, "/api/answers", map[string]any{
			"studentId": alice, "studentName": "Alice", "optionIndex": 0,
		})
		if rec.Code != http.StatusAccepted {
			t.Fatalf("first answer status = %d, want 202", rec.Code)
		}
		rec = doJSON(t, mux, http.MethodPost, "/api/answers", map[string]any{
			"studentId": alice, "studentName": "Alice", "optionIndex": 1,
		})
		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", rec.Code)
		}
	})

	t.Run("kicked student is forbidden", func(t *testing.T) {
		rec := doJSON(t, mux, http.MethodPost, "/api/students", map[string]string{"name": "Eve"})
		var evReg struct {
			StudentID string `json:"studentId"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &evReg); err != nil {
			t.Fatalf("failed to decode register response: %v", err)
		}
		doJSON(t, mux, http.MethodPost, "/api/students/"+evReg.StudentID+"/kick", nil)

		rec = doJSON(t, mux, http.MethodPost, "/api/answers", map[string]any{
			"studentId": evReg.StudentID, "studentName": "Eve", "optionIndex": 0,
		})
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("malformed body is a bad request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/polls", bytes.NewReader([]byte("{")))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("blank name is a bad request", func(t *testing.T) {
		rec := doJSON(t, mux, http.MethodPost, "/api/students", map[string]string{"name": "  "})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

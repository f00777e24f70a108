package nlu

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestInterpret(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/webhook/rest/webhook" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["sender"] != "session-1" || req["message"] != "anomalies aujourd'hui ?" {
			t.Errorf("unexpected request %v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"responses": []map[string]any{
				{
					"text": "Voici les anomalies du jour.",
					"metadata": map[string]any{
						"intent":   "ask_anomalies_today",
						"entities": map[string]any{"period": "today"},
					},
				},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	responses, err := c.Interpret(context.Background(), "session-1", "anomalies aujourd'hui ?", nil)
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if len(responses) != 1 {
		t.Fatalf("responses = %d, want 1", len(responses))
	}
	if responses[0].Metadata == nil || responses[0].Metadata.Intent != "ask_anomalies_today" {
		t.Fatalf("unexpected metadata %+v", responses[0].Metadata)
	}
	if responses[0].Metadata.Entities["period"] != "today" {
		t.Fatalf("entities = %v", responses[0].Metadata.Entities)
	}
}

func TestInterpretUnreachable(t *testing.T) {
	c := New("http://127.0.0.1:1", 100*time.Millisecond)
	if _, err := c.Interpret(context.Background(), "s", "bonjour", nil); err == nil {
		t.Fatal("expected an error for an unreachable NLU")
	}
}

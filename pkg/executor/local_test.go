package executor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/perch-systems/offload/pkg/task"
)

func newLocalServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *LocalExecutor) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	exec, err := NewLocalExecutor(srv.URL, "test-model", 5*time.Second)
	if err != nil {
		t.Fatalf("NewLocalExecutor() error: %v", err)
	}
	return srv, exec
}

func completionHandler(t *testing.T, content string, usage Usage) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/models":
			w.WriteHeader(http.StatusOK)
		case "/chat/completions":
			var req localRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("bad request body: %v", err)
			}
			if req.Model != "test-model" {
				t.Errorf("request model = %q, want test-model", req.Model)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"id":    "cmpl-1",
				"model": req.Model,
				"choices": []map[string]any{{
					"index":         0,
					"message":       map[string]string{"role": "assistant", "content": content},
					"finish_reason": "stop",
				}},
				"usage": usage,
			})
		default:
			http.NotFound(w, r)
		}
	}
}

func TestNewLocalExecutor_Validation(t *testing.T) {
	if _, err := NewLocalExecutor("", "m", time.Second); err == nil {
		t.Error("empty endpoint should be rejected")
	}
	if _, err := NewLocalExecutor("http://localhost:11434/v1", "", time.Second); err == nil {
		t.Error("empty model should be rejected")
	}
}

func TestLocalExecutor_CheckHealth(t *testing.T) {
	_, exec := newLocalServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("health probe hit %s, want /models", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	})
	if !exec.CheckHealth(context.Background()) {
		t.Error("CheckHealth() = false against a healthy endpoint")
	}

	_, down := newLocalServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	if down.CheckHealth(context.Background()) {
		t.Error("CheckHealth() = true against a 500 endpoint")
	}

	unreachable, err := NewLocalExecutor("http://127.0.0.1:1", "m", 500*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if unreachable.CheckHealth(context.Background()) {
		t.Error("CheckHealth() = true against a closed port")
	}
}

func TestLocalExecutor_Execute(t *testing.T) {
	_, exec := newLocalServer(t, completionHandler(t, "done", Usage{PromptTokens: 12, CompletionTokens: 8}))

	req := &task.Request{ID: "t1", Type: "file_search", Description: "find all TODO markers"}
	resp, err := exec.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if resp.Result != "done" {
		t.Errorf("Result = %q, want %q", resp.Result, "done")
	}
	if resp.TokensUsed != 20 {
		t.Errorf("TokensUsed = %d, want usage total 20", resp.TokensUsed)
	}
	if resp.Confidence != localConfidence {
		t.Errorf("Confidence = %g, want %g", resp.Confidence, localConfidence)
	}
	if !resp.OK() {
		t.Error("response should carry no errors")
	}
}

func TestLocalExecutor_Execute_EstimatesMissingUsage(t *testing.T) {
	_, exec := newLocalServer(t, completionHandler(t, "short answer", Usage{}))

	resp, err := exec.Execute(context.Background(), &task.Request{
		ID: "t1", Type: "file_search", Description: "count the files",
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if resp.TokensUsed <= 0 {
		t.Errorf("TokensUsed = %d, want a positive estimate when usage is absent", resp.TokensUsed)
	}
}

func TestLocalExecutor_Execute_ModelError(t *testing.T) {
	_, exec := newLocalServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "model not loaded", "type": "invalid_request"},
		})
	})

	_, err := exec.Execute(context.Background(), &task.Request{
		ID: "t1", Type: "file_search", Description: "anything",
	})
	if err == nil {
		t.Fatal("Execute() should surface the model error")
	}
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("error %T should be an *ExecError", err)
	}
	if execErr.Status != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", execErr.Status)
	}
}

func TestLocalExecutor_Execute_TransportFailureIsTransient(t *testing.T) {
	exec, err := NewLocalExecutor("http://127.0.0.1:1", "m", 500*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	_, err = exec.Execute(context.Background(), &task.Request{
		ID: "t1", Type: "file_search", Description: "anything",
	})
	if err == nil {
		t.Fatal("Execute() should fail against a closed port")
	}
	if !IsTransient(err) {
		t.Errorf("transport failure should be transient, got %v", err)
	}
}

func TestLocalExecutor_Initialize(t *testing.T) {
	_, exec := newLocalServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if err := exec.Initialize(context.Background()); err != nil {
		t.Errorf("Initialize() error against a healthy endpoint: %v", err)
	}

	down, err := NewLocalExecutor("http://127.0.0.1:1", "m", 500*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if err := down.Initialize(context.Background()); err == nil {
		t.Error("Initialize() should fail when the endpoint is unreachable")
	} else if !IsTransient(err) {
		t.Errorf("unreachable endpoint should be a transient error, got %v", err)
	}
}

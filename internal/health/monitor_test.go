package health

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"guidechat/internal/backendtest"
	"guidechat/internal/models"
	"guidechat/internal/transport"
)

func TestEvaluateReady(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()

	monitor := NewMonitor(transport.NewClient(backend.URL), zerolog.Nop())
	status := monitor.Evaluate(context.Background())
	if !status.Ready || status.ChunkCount != 42 || status.Reason != models.ReasonNone {
		t.Fatalf("unexpected status %#v", status)
	}
	if status.CheckedAt.IsZero() {
		t.Fatalf("expected CheckedAt to be set")
	}
	if backend.HealthCalls() != 1 {
		t.Fatalf("expected one status request, got %d", backend.HealthCalls())
	}
}

func TestEvaluateKnowledgeBaseMissing(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()
	backend.SetHealth(http.StatusOK, gin.H{"knowledge_base_loaded": false, "chunks_count": 7})

	status := NewMonitor(transport.NewClient(backend.URL), zerolog.Nop()).Evaluate(context.Background())
	if status.Ready {
		t.Fatalf("expected not ready")
	}
	if status.Reason != models.ReasonKnowledgeBaseUnavailable {
		t.Fatalf("unexpected reason %q", status.Reason)
	}
	if status.ChunkCount != 0 {
		t.Fatalf("chunk count is only meaningful when ready, got %d", status.ChunkCount)
	}
}

func TestEvaluateUnreachable(t *testing.T) {
	backend := backendtest.New()
	url := backend.URL
	backend.Close()

	status := NewMonitor(transport.NewClient(url), zerolog.Nop()).Evaluate(context.Background())
	if status.Ready || status.Reason != models.ReasonBackendUnreachable {
		t.Fatalf("unexpected status %#v", status)
	}
}

type failingChecker struct{ calls int }

func (f *failingChecker) CheckHealth(context.Context) (*transport.Health, error) {
	f.calls++
	return nil, &transport.Error{Kind: transport.KindBackend, StatusCode: 500, Message: "boom", Err: errors.New("boom")}
}

func TestEvaluateBackendFailureIsUnreachable(t *testing.T) {
	checker := &failingChecker{}
	status := NewMonitor(checker, zerolog.Nop()).Evaluate(context.Background())
	if status.Ready || status.Reason != models.ReasonBackendUnreachable {
		t.Fatalf("unexpected status %#v", status)
	}
	if checker.calls != 1 {
		t.Fatalf("expected no retries, got %d calls", checker.calls)
	}
}

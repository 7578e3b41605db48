package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"guidechat/internal/backendtest"
)

func TestCheckHealthDecodesStatus(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()

	client := NewClient(backend.URL)
	health, err := client.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth error: %v", err)
	}
	if !health.Ready || health.ChunkCount != 42 {
		t.Fatalf("unexpected health %#v", health)
	}
	if backend.HealthCalls() != 1 {
		t.Fatalf("expected exactly one status request, got %d", backend.HealthCalls())
	}
}

func TestCheckHealthNotLoaded(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()
	backend.SetHealth(http.StatusOK, gin.H{"knowledge_base_loaded": false, "chunks_count": 0})

	health, err := NewClient(backend.URL).CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth error: %v", err)
	}
	if health.Ready {
		t.Fatalf("expected not ready")
	}
}

func TestAskDecodesMixedSources(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()
	backend.OnAsk(func(q string) (int, any) {
		return http.StatusOK, []byte(`{"answer":"X is...","sources":["plain snippet",{"text":"paged","page":3,"similarity":0.91},{"text":"no page"}]}`)
	})

	answer, err := NewClient(backend.URL+"/").Ask(context.Background(), "What is X?")
	if err != nil {
		t.Fatalf("Ask error: %v", err)
	}
	if answer.Text != "X is..." {
		t.Fatalf("unexpected answer %q", answer.Text)
	}
	if len(answer.Sources) != 3 {
		t.Fatalf("expected 3 sources, got %d", len(answer.Sources))
	}
	if answer.Sources[0].Text != "plain snippet" || answer.Sources[0].Page != 0 {
		t.Fatalf("unexpected string source %#v", answer.Sources[0])
	}
	if answer.Sources[1].Text != "paged" || answer.Sources[1].Page != 3 {
		t.Fatalf("unexpected object source %#v", answer.Sources[1])
	}
	if answer.Sources[2].Page != 0 {
		t.Fatalf("missing page should stay zero: %#v", answer.Sources[2])
	}
	if q := backend.Questions(); len(q) != 1 || q[0] != "What is X?" {
		t.Fatalf("backend saw %v", q)
	}
}

func TestAskBackendErrorMessages(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    any
		wantMsg string
	}{
		{"detail", http.StatusServiceUnavailable, gin.H{"detail": "model overloaded"}, "model overloaded"},
		{"error", http.StatusBadRequest, gin.H{"error": "Question is required"}, "Question is required"},
		{"error wins over detail", http.StatusInternalServerError, gin.H{"error": "boom", "detail": "ignored"}, "boom"},
		{"non-string detail", http.StatusUnprocessableEntity, gin.H{"detail": []any{gin.H{"loc": "body"}}}, UnknownErrorMessage},
		{"plain text body", http.StatusBadGateway, "bad gateway", UnknownErrorMessage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			backend := backendtest.New()
			defer backend.Close()
			backend.OnAsk(func(string) (int, any) { return tc.status, tc.body })

			_, err := NewClient(backend.URL).Ask(context.Background(), "q")
			te := AsError(err)
			if te == nil || te.Kind != KindBackend {
				t.Fatalf("expected backend error, got %v", err)
			}
			if te.StatusCode != tc.status || te.Message != tc.wantMsg {
				t.Fatalf("unexpected error %#v", te)
			}
		})
	}
}

func TestAskMalformedSuccessBody(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()
	backend.OnAsk(func(string) (int, any) { return http.StatusOK, "not json" })

	_, err := NewClient(backend.URL).Ask(context.Background(), "q")
	te := AsError(err)
	if te == nil || te.Kind != KindBackend || te.Message != "malformed response" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestAskNetworkError(t *testing.T) {
	backend := backendtest.New()
	url := backend.URL
	backend.Close()

	_, err := NewClient(url).Ask(context.Background(), "q")
	var te *Error
	if !errors.As(err, &te) || te.Kind != KindNetwork {
		t.Fatalf("expected network error, got %v", err)
	}
	if !strings.Contains(te.Error(), "network error") {
		t.Fatalf("unexpected message %q", te.Error())
	}
}

func TestAskHonorsCallerContext(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()
	release := make(chan struct{})
	defer close(release)
	backend.OnAsk(func(string) (int, any) {
		<-release
		return http.StatusOK, gin.H{"answer": "late"}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewClient(backend.URL).Ask(ctx, "q")
	te := AsError(err)
	if te == nil || te.Kind != KindNetwork || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline network error, got %v", err)
	}
}

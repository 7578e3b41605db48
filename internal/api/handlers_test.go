package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"guidechat/internal/backendtest"
	"guidechat/internal/conversation"
	"guidechat/internal/health"
	"guidechat/internal/models"
	"guidechat/internal/render"
	"guidechat/internal/storage"
	"guidechat/internal/transport"
)

type testServer struct {
	router      *gin.Engine
	backend     *backendtest.Server
	controller  *conversation.Controller
	broadcaster *render.Broadcaster
}

func TestAskFlow(t *testing.T) {
	g := NewWithT(t)
	srv := newTestServer(t, nil)
	srv.backend.OnAsk(func(q string) (int, any) {
		return http.StatusOK, gin.H{
			"answer":  "It is a guide.",
			"sources": []any{gin.H{"text": strings.Repeat("p", 160), "page": 2, "similarity": 0.9}},
		}
	})

	statusResp := doJSONRequest(t, srv.router, http.MethodGet, "/api/session/status", nil, nil)
	assertStatus(t, statusResp, http.StatusOK)
	var status struct {
		Online     bool     `json:"online"`
		ChunkCount int      `json:"chunk_count"`
		Known      bool     `json:"known"`
		QuickAsks  []string `json:"quick_asks"`
	}
	decodeJSON(t, statusResp.Body.Bytes(), &status)
	g.Expect(status.Online).To(BeTrue())
	g.Expect(status.Known).To(BeTrue())
	g.Expect(status.ChunkCount).To(Equal(42))
	g.Expect(status.QuickAsks).To(HaveLen(1))

	askResp := doJSONRequest(t, srv.router, http.MethodPost, "/api/session/ask", map[string]string{"question": " What is this? "}, nil)
	assertStatus(t, askResp, http.StatusAccepted)

	var body struct {
		Messages   []render.MessagePayload `json:"messages"`
		TurnStatus string                  `json:"turn_status"`
	}
	g.Eventually(func() int {
		resp := doJSONRequest(t, srv.router, http.MethodGet, "/api/session/messages", nil, nil)
		assertStatus(t, resp, http.StatusOK)
		decodeJSON(t, resp.Body.Bytes(), &body)
		return len(body.Messages)
	}).Should(Equal(2))
	g.Expect(body.TurnStatus).To(Equal("idle"))
	g.Expect(body.Messages[0].Sender).To(Equal(models.SenderUser))
	g.Expect(body.Messages[0].Text).To(Equal("What is this?"))
	g.Expect(body.Messages[1].Text).To(Equal("It is a guide."))
	g.Expect(body.Messages[1].Sources).To(HaveLen(1))
	g.Expect(body.Messages[1].Sources[0].Page).To(Equal(2))
	g.Expect(body.Messages[1].Sources[0].Preview).To(Equal(strings.Repeat("p", 150) + "..."))
	g.Expect(srv.backend.Questions()).To(Equal([]string{"What is this?"}))
}

func TestAskValidation(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/session/ask", map[string]string{"question": "   "}, nil)
	assertStatus(t, resp, http.StatusBadRequest)
	if !strings.Contains(resp.Body.String(), "Question is required") {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}

	req := httptest.NewRequest(http.MethodPost, "/api/session/ask", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assertStatus(t, rec, http.StatusBadRequest)

	if got := srv.backend.Questions(); len(got) != 0 {
		t.Fatalf("backend should not be called, got %v", got)
	}
}

func TestAskWhilePendingConflicts(t *testing.T) {
	g := NewWithT(t)
	srv := newTestServer(t, nil)
	release := make(chan struct{})
	srv.backend.OnAsk(func(q string) (int, any) {
		<-release
		return http.StatusOK, gin.H{"answer": "done"}
	})
	defer close(release)

	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/session/ask", map[string]string{"question": "first"}, nil)
	assertStatus(t, resp, http.StatusAccepted)

	resp = doJSONRequest(t, srv.router, http.MethodPost, "/api/session/ask", map[string]string{"question": "second"}, nil)
	assertStatus(t, resp, http.StatusConflict)

	// the first question reaches the backend asynchronously
	g.Eventually(srv.backend.Questions).Should(HaveLen(1))
	g.Consistently(srv.backend.Questions, 100*time.Millisecond).Should(HaveLen(1))
}

func TestAskRejectedWhenOffline(t *testing.T) {
	srv := newTestServer(t, func(b *backendtest.Server) {
		b.SetHealth(http.StatusOK, gin.H{"status": "ok", "knowledge_base_loaded": false, "chunks_count": 0})
	})

	statusResp := doJSONRequest(t, srv.router, http.MethodGet, "/api/session/status", nil, nil)
	assertStatus(t, statusResp, http.StatusOK)
	var status struct {
		Online bool   `json:"online"`
		Reason string `json:"reason"`
	}
	decodeJSON(t, statusResp.Body.Bytes(), &status)
	if status.Online || status.Reason != string(models.ReasonKnowledgeBaseUnavailable) {
		t.Fatalf("unexpected status %+v", status)
	}

	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/session/ask", map[string]string{"question": "hello"}, nil)
	assertStatus(t, resp, http.StatusServiceUnavailable)
}

func TestRefreshReevaluatesHealth(t *testing.T) {
	srv := newTestServer(t, func(b *backendtest.Server) {
		b.SetHealth(http.StatusInternalServerError, "boom")
	})
	if srv.controller.State().BackendReady() {
		t.Fatalf("backend should start offline")
	}

	srv.backend.SetHealth(http.StatusOK, gin.H{"status": "ok", "knowledge_base_loaded": true, "chunks_count": 7})
	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/session/refresh", nil, nil)
	assertStatus(t, resp, http.StatusOK)
	var status struct {
		Online     bool `json:"online"`
		ChunkCount int  `json:"chunk_count"`
	}
	decodeJSON(t, resp.Body.Bytes(), &status)
	if !status.Online || status.ChunkCount != 7 {
		t.Fatalf("unexpected refreshed status %+v", status)
	}
	if !srv.controller.State().BackendReady() {
		t.Fatalf("refresh did not reach the controller")
	}
	if srv.backend.HealthCalls() != 2 {
		t.Fatalf("expected 2 status checks, got %d", srv.backend.HealthCalls())
	}
}

func TestQuickAsk(t *testing.T) {
	g := NewWithT(t)
	srv := newTestServer(t, nil)

	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/session/quick-ask", map[string]int{"index": 3}, nil)
	assertStatus(t, resp, http.StatusNotFound)

	resp = doJSONRequest(t, srv.router, http.MethodPost, "/api/session/quick-ask", map[string]int{"index": 0}, nil)
	assertStatus(t, resp, http.StatusAccepted)
	g.Eventually(srv.backend.Questions).Should(Equal([]string{"What is this document about?"}))
}

func TestEventStream(t *testing.T) {
	g := NewWithT(t)
	srv := newTestServer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/session/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		srv.router.ServeHTTP(rec, req)
	}()
	g.Eventually(srv.broadcaster.Subscribers).Should(Equal(1))

	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/session/ask", map[string]string{"question": "hi"}, nil)
	assertStatus(t, resp, http.StatusAccepted)
	g.Eventually(func() conversation.TurnStatus {
		return srv.controller.State().TurnStatus()
	}).Should(Equal(conversation.StatusIdle))
	g.Eventually(func() int {
		return len(srv.controller.State().Messages())
	}).Should(Equal(2))

	// events are buffered per subscriber; give the stream a moment to drain
	time.Sleep(50 * time.Millisecond)
	cancel()
	wg.Wait()
	g.Expect(srv.broadcaster.Subscribers()).To(BeZero())

	g.Expect(rec.Header().Get("Content-Type")).To(Equal("text/event-stream"))
	events := parseSSE(t, rec.Body.String())
	var names []string
	for _, ev := range events {
		names = append(names, ev.Name)
	}
	g.Expect(names).To(Equal([]string{
		render.EventStatus,
		render.EventMessage,
		render.EventDraft,
		render.EventTurnStarted,
		render.EventMessage,
		render.EventTurnFinished,
	}))

	var finished render.TurnPayload
	decodeJSON(t, []byte(events[5].Data), &finished)
	g.Expect(finished.Outcome).To(Equal(string(conversation.OutcomeAnswered)))
	g.Expect(finished.Pending).To(BeFalse())
}

type fakeStats struct{}

func (fakeStats) Summary(context.Context) ([]storage.OutcomeSummary, error) {
	return []storage.OutcomeSummary{{Outcome: "answered", Count: 3, AvgDuration: time.Second}}, nil
}

func (fakeStats) Recent(_ context.Context, limit int) ([]storage.TurnRecord, error) {
	return []storage.TurnRecord{{TurnID: "typing-1", Outcome: "answered"}}[:min(limit, 1)], nil
}

func TestStatsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	resp := doJSONRequest(t, srv.router, http.MethodGet, "/api/session/stats", nil, nil)
	assertStatus(t, resp, http.StatusNotFound)

	handler := NewHandler(srv.controller, nil, srv.broadcaster, fakeStats{}, HandlerConfig{}, zerolog.Nop())
	router := gin.New()
	handler.RegisterRoutes(router)

	resp = doJSONRequest(t, router, http.MethodGet, "/api/session/stats?limit=5", nil, nil)
	assertStatus(t, resp, http.StatusOK)
	var body struct {
		Summary []storage.OutcomeSummary `json:"summary"`
		Recent  []storage.TurnRecord     `json:"recent"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if len(body.Summary) != 1 || body.Summary[0].Count != 3 || len(body.Recent) != 1 {
		t.Fatalf("unexpected stats %+v", body)
	}

	resp = doJSONRequest(t, router, http.MethodGet, "/api/session/stats?limit=x", nil, nil)
	assertStatus(t, resp, http.StatusBadRequest)

	resp = doJSONRequest(t, router, http.MethodPost, "/api/session/refresh", nil, nil)
	assertStatus(t, resp, http.StatusNotImplemented)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	resp := doJSONRequest(t, srv.router, http.MethodGet, "/metrics", nil, nil)
	assertStatus(t, resp, http.StatusOK)
	if !strings.Contains(resp.Body.String(), "guidechat_backend_ready") {
		t.Fatalf("expected guidechat metrics in exposition")
	}
}

type sseEvent struct {
	Name string
	Data string
}

func parseSSE(t *testing.T, payload string) []sseEvent {
	t.Helper()
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil
	}
	chunks := strings.Split(payload, "\n\n")
	var events []sseEvent
	for _, chunk := range chunks {
		lines := strings.Split(strings.TrimSpace(chunk), "\n")
		var evt sseEvent
		for _, line := range lines {
			switch {
			case strings.HasPrefix(line, "event:"):
				evt.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
				if evt.Data == "" {
					evt.Data = data
				} else {
					evt.Data += "\n" + data
				}
			}
		}
		// keep-alive comments carry no event
		if evt.Name == "" {
			continue
		}
		events = append(events, evt)
	}
	return events
}

// newTestServer runs a controller against a fake backend. setup may adjust
// the backend before the initial status check.
func newTestServer(t *testing.T, setup func(*backendtest.Server)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	backend := backendtest.New()
	t.Cleanup(backend.Close)
	if setup != nil {
		setup(backend)
	}

	client := transport.NewClient(backend.URL)
	monitor := health.NewMonitor(client, zerolog.Nop())
	broadcaster := render.NewBroadcaster(16, render.DefaultPreviewLength, zerolog.Nop())
	controller := conversation.NewController(conversation.NewState(), client, render.NewMulti(broadcaster, render.Metrics{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = controller.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	refresh := func(ctx context.Context) (models.SystemStatus, error) {
		status := monitor.Evaluate(ctx)
		return status, controller.ApplyStatus(ctx, status)
	}
	if _, err := refresh(context.Background()); err != nil {
		t.Fatalf("initial status: %v", err)
	}

	handler := NewHandler(controller, refresh, broadcaster, nil, HandlerConfig{
		QuickAsks:     []string{"What is this document about?"},
		PreviewLength: render.DefaultPreviewLength,
		KeepAlive:     time.Hour,
	}, zerolog.Nop())
	router := gin.New()
	handler.RegisterRoutes(router)

	return &testServer{
		router:      router,
		backend:     backend,
		controller:  controller,
		broadcaster: broadcaster,
	}
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("unexpected status %d, body: %s", rec.Code, rec.Body.String())
	}
}

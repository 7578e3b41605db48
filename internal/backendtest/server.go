// Package backendtest provides an in-process fake of the guide backend's
// chat endpoint for tests.
package backendtest

import (
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/gin-gonic/gin"
)

// AskFunc produces the status code and JSON body for one question.
type AskFunc func(question string) (int, any)

// Server is a programmable fake backend.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	healthStatus int
	healthBody   any
	ask          AskFunc
	questions    []string
	healthCalls  int
}

// New starts a fake backend that reports a loaded knowledge base and echoes questions.
func New() *Server {
	gin.SetMode(gin.TestMode)
	s := &Server{
		healthStatus: http.StatusOK,
		healthBody: gin.H{
			"status":                "ok",
			"message":               "Chat API is running",
			"knowledge_base_loaded": true,
			"chunks_count":          42,
		},
		ask: func(question string) (int, any) {
			return http.StatusOK, gin.H{"answer": "echo: " + question, "sources": []any{}}
		},
	}
	router := gin.New()
	router.GET("/api/chat", s.handleHealth)
	router.POST("/api/chat", s.handleAsk)
	s.Server = httptest.NewServer(router)
	return s
}

// SetHealth replaces the status endpoint response.
func (s *Server) SetHealth(status int, body any) {
	s.mu.Lock()
	s.healthStatus = status
	s.healthBody = body
	s.mu.Unlock()
}

// OnAsk replaces the question handler.
func (s *Server) OnAsk(fn AskFunc) {
	s.mu.Lock()
	s.ask = fn
	s.mu.Unlock()
}

// Questions returns every question received so far, in arrival order.
func (s *Server) Questions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.questions))
	copy(out, s.questions)
	return out
}

// HealthCalls returns how many status requests were served.
func (s *Server) HealthCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthCalls
}

func (s *Server) handleHealth(c *gin.Context) {
	s.mu.Lock()
	s.healthCalls++
	status, body := s.healthStatus, s.healthBody
	s.mu.Unlock()
	writeBody(c, status, body)
}

func (s *Server) handleAsk(c *gin.Context) {
	var req struct {
		Question string `json:"question"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	s.mu.Lock()
	s.questions = append(s.questions, req.Question)
	fn := s.ask
	s.mu.Unlock()

	status, body := fn(req.Question)
	writeBody(c, status, body)
}

func writeBody(c *gin.Context, status int, body any) {
	switch v := body.(type) {
	case string:
		c.Data(status, "text/plain; charset=utf-8", []byte(v))
	case []byte:
		c.Data(status, "application/json", v)
	default:
		c.JSON(status, v)
	}
}

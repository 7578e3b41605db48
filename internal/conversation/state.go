package conversation

import (
	"sync"
	"time"

	"guidechat/internal/models"
	"guidechat/internal/transport"
)

// TurnStatus is the lifecycle position of the current turn.
type TurnStatus string

const (
	StatusIdle    TurnStatus = "idle"
	StatusPending TurnStatus = "pending"
	// StatusFailed is only observable while the error message of a failed
	// turn is being appended.
	StatusFailed TurnStatus = "failed"
)

// Outcome describes how a turn ended.
type Outcome string

const (
	OutcomeAnswered Outcome = "answered"
	OutcomeFailed   Outcome = "failed"
	OutcomeTimedOut Outcome = "timed_out"
)

// Turn is one question and its eventual answer or error.
// ID also keys the typing indicator shown while the turn is pending.
type Turn struct {
	ID         string              `json:"id"`
	Question   string              `json:"question"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at,omitempty"`
	Outcome    Outcome             `json:"outcome,omitempty"`
	ErrorKind  transport.ErrorKind `json:"error_kind,omitempty"`
}

// Duration is zero until the turn finished.
func (t Turn) Duration() time.Duration {
	if t.FinishedAt.IsZero() {
		return 0
	}
	return t.FinishedAt.Sub(t.StartedAt)
}

// State is the conversation of one session. Readers may call the exported
// accessors from any goroutine; only the Controller mutates it.
type State struct {
	mu          sync.RWMutex
	messages    []models.Message
	turnStatus  TurnStatus
	status      models.SystemStatus
	statusKnown bool
	current     *Turn
}

func NewState() *State {
	return &State{turnStatus: StatusIdle}
}

// Snapshot is a consistent copy of State.
type Snapshot struct {
	Messages    []models.Message    `json:"messages"`
	TurnStatus  TurnStatus          `json:"turn_status"`
	Status      models.SystemStatus `json:"status"`
	StatusKnown bool                `json:"status_known"`
	CurrentTurn *Turn               `json:"current_turn,omitempty"`
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Messages:    s.messagesLocked(),
		TurnStatus:  s.turnStatus,
		Status:      s.status,
		StatusKnown: s.statusKnown,
	}
	if s.current != nil {
		turn := *s.current
		snap.CurrentTurn = &turn
	}
	return snap
}

func (s *State) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messagesLocked()
}

func (s *State) messagesLocked() []models.Message {
	out := make([]models.Message, len(s.messages))
	for i, msg := range s.messages {
		out[i] = msg.Clone()
	}
	return out
}

func (s *State) TurnStatus() TurnStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.turnStatus
}

// BackendReady is false until a status has been applied.
func (s *State) BackendReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statusKnown && s.status.Ready
}

// Status returns the last applied SystemStatus and whether one was applied.
func (s *State) Status() (models.SystemStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status, s.statusKnown
}

// CurrentTurn returns the pending turn, if any.
func (s *State) CurrentTurn() (Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Turn{}, false
	}
	return *s.current, true
}

func (s *State) appendMessage(msg models.Message) {
	s.mu.Lock()
	s.messages = append(s.messages, msg.Clone())
	s.mu.Unlock()
}

func (s *State) beginTurn(turn Turn) {
	s.mu.Lock()
	s.current = &turn
	s.turnStatus = StatusPending
	s.mu.Unlock()
}

func (s *State) setTurnStatus(status TurnStatus) {
	s.mu.Lock()
	s.turnStatus = status
	s.mu.Unlock()
}

// endTurn clears the current turn and returns to idle.
func (s *State) endTurn() {
	s.mu.Lock()
	s.current = nil
	s.turnStatus = StatusIdle
	s.mu.Unlock()
}

func (s *State) setStatus(status models.SystemStatus) {
	s.mu.Lock()
	s.status = status
	s.statusKnown = true
	s.mu.Unlock()
}

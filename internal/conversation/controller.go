// Package conversation owns the question/answer turn lifecycle of a chat session.
package conversation

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"guidechat/internal/id"
	"guidechat/internal/models"
	"guidechat/internal/transport"
)

// Bot replies synthesized for failed turns.
const (
	// NetworkFailureText answers a turn whose request never reached the backend.
	NetworkFailureText = "Sorry, something went wrong while connecting to the server. Please try again."
	// BackendFailureText prefixes the message of a backend error.
	BackendFailureText = "Sorry, an error occurred: "
	// TimeoutFailureText answers a turn that exceeded the turn timeout.
	TimeoutFailureText = "Sorry, the server took too long to answer. Please try again."
)

var (
	// ErrStopped is returned when the controller loop is not running anymore.
	ErrStopped = errors.New("conversation controller stopped")
	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("conversation controller already running")
)

// Asker sends one question to the backend.
type Asker interface {
	Ask(ctx context.Context, question string) (*transport.Answer, error)
}

type commandKind int

const (
	cmdSubmit commandKind = iota
	cmdQuickAsk
	cmdStatus
)

type command struct {
	kind     commandKind
	question string
	status   models.SystemStatus
	reply    chan struct{}
}

type askResult struct {
	turnID string
	answer *transport.Answer
	err    error
}

// Controller is the conversation state machine. All transitions run on the
// goroutine that called Run; callers talk to it through Submit, QuickAsk and
// ApplyStatus.
type Controller struct {
	state    *State
	asker    Asker
	renderer Renderer
	logger   zerolog.Logger

	turnTimeout  time.Duration
	newMessageID func() int64
	newTurnID    func() string
	now          func() time.Time

	cmds     chan command
	results  chan askResult
	timeouts chan string
	done     chan struct{}
	running  atomic.Bool

	// owned by the loop goroutine
	cancelAsk context.CancelFunc
	timer     *time.Timer
}

// Option configures a Controller.
type Option func(*Controller)

// WithTurnTimeout bounds how long a turn may stay pending. Zero disables it.
func WithTurnTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.turnTimeout = d
		}
	}
}

// WithLogger sets the logger for turn lifecycle events.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithClock overrides time.Now for message and turn timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// NewController builds a Controller over state. A nil state or renderer is replaced by an empty one.
func NewController(state *State, asker Asker, renderer Renderer, opts ...Option) *Controller {
	if state == nil {
		state = NewState()
	}
	if renderer == nil {
		renderer = NopRenderer{}
	}
	c := &Controller{
		state:        state,
		asker:        asker,
		renderer:     renderer,
		logger:       zerolog.Nop(),
		newMessageID: id.New,
		newTurnID:    func() string { return "typing-" + uuid.NewString() },
		now:          time.Now,
		cmds:         make(chan command),
		results:      make(chan askResult),
		timeouts:     make(chan string),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "conversation").Logger()
	return c
}

// State exposes the controller's conversation for read-only consumers.
func (c *Controller) State() *State {
	return c.state
}

// Run processes commands and backend results until ctx is cancelled.
// An outstanding request is cancelled when Run returns.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(c.done)
	defer c.releaseTurn()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-c.cmds:
			c.handleCommand(ctx, cmd)
			close(cmd.reply)
		case res := <-c.results:
			c.handleResult(res)
		case turnID := <-c.timeouts:
			c.handleTimeout(turnID)
		}
	}
}

// Submit asks question when the session is idle, the backend is ready and the
// trimmed question is non-empty. Anything else is silently ignored. When
// Submit returns nil the submission has been processed; the answer arrives
// later through the Renderer.
func (c *Controller) Submit(ctx context.Context, question string) error {
	return c.send(ctx, command{kind: cmdSubmit, question: question})
}

// QuickAsk fills the input with question and submits it.
func (c *Controller) QuickAsk(ctx context.Context, question string) error {
	return c.send(ctx, command{kind: cmdQuickAsk, question: question})
}

// ApplyStatus records a health evaluation and opens or closes the input gate.
func (c *Controller) ApplyStatus(ctx context.Context, status models.SystemStatus) error {
	return c.send(ctx, command{kind: cmdStatus, status: status})
}

func (c *Controller) send(ctx context.Context, cmd command) error {
	cmd.reply = make(chan struct{})
	select {
	case c.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
	select {
	case <-cmd.reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}

func (c *Controller) handleCommand(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdSubmit:
		c.submit(ctx, cmd.question)
	case cmdQuickAsk:
		c.renderer.DraftChanged(cmd.question)
		c.submit(ctx, cmd.question)
	case cmdStatus:
		c.state.setStatus(cmd.status)
		c.logger.Info().
			Bool("ready", cmd.status.Ready).
			Str("reason", string(cmd.status.Reason)).
			Msg("backend status applied")
		c.renderer.StatusChanged(cmd.status)
	}
}

func (c *Controller) submit(ctx context.Context, raw string) {
	question := strings.TrimSpace(raw)
	switch {
	case question == "":
		return
	case c.state.TurnStatus() != StatusIdle:
		c.logger.Debug().Msg("submission ignored: turn pending")
		return
	case !c.state.BackendReady():
		c.logger.Debug().Msg("submission ignored: backend not ready")
		return
	}

	now := c.now()
	c.appendMessage(models.Message{
		ID:        c.newMessageID(),
		Sender:    models.SenderUser,
		Text:      question,
		CreatedAt: now,
	})
	c.renderer.DraftChanged("")

	turn := Turn{ID: c.newTurnID(), Question: question, StartedAt: now}
	c.state.beginTurn(turn)
	c.logger.Info().Str("turn_id", turn.ID).Msg("turn started")
	c.renderer.TurnStarted(turn)

	c.startAsk(ctx, turn)
}

func (c *Controller) startAsk(ctx context.Context, turn Turn) {
	askCtx, cancel := context.WithCancel(ctx)
	c.cancelAsk = cancel

	go func() {
		answer, err := c.asker.Ask(askCtx, turn.Question)
		select {
		case c.results <- askResult{turnID: turn.ID, answer: answer, err: err}:
		case <-c.done:
		}
	}()

	if c.turnTimeout > 0 {
		turnID := turn.ID
		c.timer = time.AfterFunc(c.turnTimeout, func() {
			select {
			case c.timeouts <- turnID:
			case <-c.done:
			}
		})
	}
}

func (c *Controller) handleResult(res askResult) {
	turn, ok := c.state.CurrentTurn()
	if !ok || turn.ID != res.turnID {
		c.logger.Debug().Str("turn_id", res.turnID).Msg("ignoring response for stale turn")
		return
	}
	c.releaseTurn()

	if res.err != nil {
		te := transport.AsError(res.err)
		turn.ErrorKind = te.Kind
		c.fail(turn, OutcomeFailed, failureText(te))
		return
	}

	msg := models.Message{
		ID:        c.newMessageID(),
		Sender:    models.SenderBot,
		CreatedAt: c.now(),
	}
	if res.answer != nil {
		msg.Text = res.answer.Text
		msg.Sources = res.answer.Sources
	}
	c.appendMessage(msg)
	turn.Outcome = OutcomeAnswered
	c.finish(turn)
}

func (c *Controller) handleTimeout(turnID string) {
	turn, ok := c.state.CurrentTurn()
	if !ok || turn.ID != turnID {
		return
	}
	c.releaseTurn()
	c.fail(turn, OutcomeTimedOut, TimeoutFailureText)
}

// fail collapses a failed turn into a bot message before returning to idle.
func (c *Controller) fail(turn Turn, outcome Outcome, text string) {
	c.state.setTurnStatus(StatusFailed)
	c.appendMessage(models.Message{
		ID:        c.newMessageID(),
		Sender:    models.SenderBot,
		Text:      text,
		CreatedAt: c.now(),
	})
	turn.Outcome = outcome
	c.finish(turn)
}

func (c *Controller) finish(turn Turn) {
	turn.FinishedAt = c.now()
	c.state.endTurn()
	event := c.logger.Info()
	if turn.Outcome != OutcomeAnswered {
		event = c.logger.Warn().Str("error_kind", string(turn.ErrorKind))
	}
	event.Str("turn_id", turn.ID).
		Str("outcome", string(turn.Outcome)).
		Dur("duration", turn.Duration()).
		Msg("turn finished")
	c.renderer.TurnFinished(turn)
}

func (c *Controller) appendMessage(msg models.Message) {
	c.state.appendMessage(msg)
	c.renderer.MessageAppended(msg.Clone())
}

// releaseTurn stops the timeout timer and cancels the in-flight request context.
func (c *Controller) releaseTurn() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancelAsk != nil {
		c.cancelAsk()
		c.cancelAsk = nil
	}
}

func failureText(err *transport.Error) string {
	if err.Kind == transport.KindBackend {
		msg := strings.TrimSpace(err.Message)
		if msg == "" {
			msg = transport.UnknownErrorMessage
		}
		return BackendFailureText + msg
	}
	return NetworkFailureText
}

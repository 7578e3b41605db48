package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"guidechat/internal/api"
	"guidechat/internal/config"
	"guidechat/internal/conversation"
	"guidechat/internal/id"
	"guidechat/internal/logging"
	"guidechat/internal/models"
	"guidechat/internal/redis"
	"guidechat/internal/render"
	"guidechat/internal/tui"
)

func main() {
	cmd := "chat"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		usage()
		return
	}

	cfg, err := config.Load(os.Getenv("GUIDECHAT_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := id.Init(cfg.NodeID); err != nil {
		fmt.Fprintf(os.Stderr, "init id generator: %v\n", err)
		os.Exit(1)
	}

	var logOut io.Writer = os.Stderr
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	} else if cmd == "chat" {
		// the TUI owns the terminal
		logOut = io.Discard
	}
	logger := logging.New(cfg.LogLevel, cfg.IsLocal() && cfg.LogFile == "", logOut)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "chat":
		err = runChat(ctx, cfg, logger)
	case "repl":
		err = runREPL(ctx, cfg, logger, os.Stdin, os.Stdout)
	case "serve":
		err = runServe(ctx, cfg, logger)
	case "status":
		err = runStatus(ctx, cfg, logger)
	case "ask":
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, "Usage: guidechat ask <question>")
			os.Exit(1)
		}
		err = runAsk(ctx, cfg, logger, strings.Join(args, " "))
	case "stats":
		err = runStats(ctx, cfg)
	case "watch":
		err = runWatch(ctx, cfg)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `guidechat - chat with a document knowledge base

Usage:
  guidechat [command]

Commands:
  chat             Interactive terminal UI (default)
  repl             Line-mode chat on stdin/stdout
  serve            Local web bridge with server-sent events and /metrics
  status           Check backend readiness once
  ask <question>   Ask one question and print the answer
  stats            Summarize the turn journal
  watch            Print session events published to redis

Environment:
  GUIDECHAT_CONFIG     config file path (default guidechat.json)
  GUIDECHAT_ENV        "local" or a deployment environment
  GUIDECHAT_BASE_URL   backend origin outside local runs
  GUIDECHAT_LOG_LEVEL  zerolog level
  GUIDECHAT_LOG_FILE   write logs to this file`)
}

var errNotReady = errors.New("backend not ready")

func runChat(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	renderer := tui.NewRenderer()
	s, err := newSession(cfg, logger, renderer)
	if err != nil {
		return err
	}

	refresh := func(ctx context.Context) error {
		_, err := s.refresh(ctx)
		return err
	}
	model := tui.NewModel(ctx, s.controller, refresh, cfg.QuickAsks, cfg.BasicConfig.PreviewLengthChars)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	renderer.Attach(program)

	s.start(ctx)
	defer s.close()
	go func() {
		if _, err := s.refresh(ctx); err != nil {
			logger.Warn().Err(err).Msg("initial status check not applied")
		}
	}()

	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run terminal ui: %w", err)
	}
	return nil
}

func runREPL(ctx context.Context, cfg *config.Config, logger zerolog.Logger, in io.Reader, out io.Writer) error {
	term := render.NewTerminal(out, cfg.BasicConfig.PreviewLengthChars)
	s, err := newSession(cfg, logger, term)
	if err != nil {
		return err
	}
	s.start(ctx)
	defer s.close()

	fmt.Fprintln(out, "Connecting to", cfg.BackendURL())
	if _, err := s.refresh(ctx); err != nil {
		return err
	}
	printQuickAsks(out, cfg.QuickAsks)
	term.Prompt()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				// let a pending answer arrive before exiting
				return waitIdle(ctx, s.controller.State())
			}
			if err := handleLine(ctx, s, term, cfg.QuickAsks, strings.TrimSpace(line)); err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
		}
	}
}

// handleLine runs one REPL input. io.EOF asks the REPL to exit.
func handleLine(ctx context.Context, s *session, term *render.Terminal, quickAsks []string, line string) error {
	switch {
	case line == "/quit" || line == "/exit":
		return io.EOF
	case line == "/refresh":
		_, err := s.refresh(ctx)
		return err
	case line == "":
		term.Prompt()
		return nil
	case strings.HasPrefix(line, "/"):
		n, err := strconv.Atoi(line[1:])
		if err == nil && n >= 1 && n <= len(quickAsks) {
			return s.controller.QuickAsk(ctx, quickAsks[n-1])
		}
		term.Hint(render.UnknownCommandHint(line, len(quickAsks)))
		return nil
	}
	state := s.controller.State()
	if !state.BackendReady() || state.TurnStatus() != conversation.StatusIdle {
		// the controller would ignore it; keep the prompt usable
		term.Prompt()
	}
	return s.controller.Submit(ctx, line)
}

func waitIdle(ctx context.Context, state *conversation.State) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for state.TurnStatus() != conversation.StatusIdle {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

func printQuickAsks(out io.Writer, quickAsks []string) {
	if len(quickAsks) == 0 {
		return
	}
	fmt.Fprintln(out, render.HintStyle.Render("Quick asks:"))
	for i, q := range quickAsks {
		fmt.Fprintf(out, "  /%d %s\n", i+1, q)
	}
	fmt.Fprintln(out, render.HintStyle.Render("/refresh re-checks the server, /quit exits."))
}

func runServe(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	broadcaster := render.NewBroadcaster(cfg.BasicConfig.EventBufferSize, cfg.BasicConfig.PreviewLengthChars, logger)
	s, err := newSession(cfg, logger, broadcaster)
	if err != nil {
		return err
	}
	s.start(ctx)
	defer s.close()

	if _, err := s.refresh(ctx); err != nil {
		return err
	}

	if !cfg.IsLocal() {
		gin.SetMode(gin.ReleaseMode)
	}
	var stats api.StatsSource
	if s.store != nil {
		stats = s.store
	}
	handler := api.NewHandler(s.controller, s.refresh, broadcaster, stats, api.HandlerConfig{
		QuickAsks:     cfg.QuickAsks,
		PreviewLength: cfg.BasicConfig.PreviewLengthChars,
	}, logger)
	router := gin.New()
	router.Use(gin.Recovery())
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:        cfg.BasicConfig.ServerAddress,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
		// event streams end with their request context
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("backend", cfg.BackendURL()).
			Str("env", cfg.Environment).
			Msg("starting web bridge")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("web bridge: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down web bridge...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("web bridge forced to shutdown")
	}
	logger.Info().Msg("web bridge stopped")
	return nil
}

func runStatus(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	s, err := newSession(cfg, logger, render.NewTerminal(os.Stdout, cfg.BasicConfig.PreviewLengthChars))
	if err != nil {
		return err
	}
	s.start(ctx)
	defer s.close()

	status, err := s.refresh(ctx)
	if err != nil {
		return err
	}
	if !status.Ready {
		return errNotReady
	}
	return nil
}

// turnWaiter signals when the first turn finishes.
type turnWaiter struct {
	conversation.NopRenderer
	finished chan conversation.Turn
}

func (w *turnWaiter) TurnFinished(turn conversation.Turn) {
	select {
	case w.finished <- turn:
	default:
	}
}

func runAsk(ctx context.Context, cfg *config.Config, logger zerolog.Logger, question string) error {
	if strings.TrimSpace(question) == "" {
		return errors.New("question is empty")
	}
	waiter := &turnWaiter{finished: make(chan conversation.Turn, 1)}
	term := render.NewTerminal(os.Stdout, cfg.BasicConfig.PreviewLengthChars)
	s, err := newSession(cfg, logger, askPrinter{term}, waiter)
	if err != nil {
		return err
	}
	s.start(ctx)
	defer s.close()

	status, err := s.refresh(ctx)
	if err != nil {
		return err
	}
	if !status.Ready {
		fmt.Println(render.StatusText(status))
		return errNotReady
	}
	if err := s.controller.Submit(ctx, question); err != nil {
		return err
	}

	select {
	case turn := <-waiter.finished:
		if turn.Outcome != conversation.OutcomeAnswered {
			return fmt.Errorf("turn %s", turn.Outcome)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// askPrinter prints only the answer of a one-shot question.
type askPrinter struct {
	term *render.Terminal
}

func (p askPrinter) MessageAppended(msg models.Message) { p.term.MessageAppended(msg) }

func (askPrinter) TurnStarted(conversation.Turn) {}

func (askPrinter) TurnFinished(conversation.Turn) {}

func (askPrinter) StatusChanged(models.SystemStatus) {}

func (askPrinter) DraftChanged(string) {}

func runStats(ctx context.Context, cfg *config.Config) error {
	store, closeDB, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	summary, err := store.Summary(ctx)
	if err != nil {
		return err
	}
	recent, err := store.Recent(ctx, 10)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "OUTCOME\tTURNS\tAVG\tMAX")
	for _, row := range summary {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", row.Outcome, row.Count,
			row.AvgDuration.Round(time.Millisecond), row.MaxDuration.Round(time.Millisecond))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "FINISHED\tTURN\tOUTCOME\tERROR\tSOURCES\tDURATION")
	for _, rec := range recent {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			rec.FinishedAt.Local().Format("2006-01-02 15:04:05"), rec.TurnID, rec.Outcome,
			rec.ErrorKind, rec.SourceCount, rec.Duration.Round(time.Millisecond))
	}
	return w.Flush()
}

func runWatch(ctx context.Context, cfg *config.Config) error {
	rdb, err := redis.NewRedisClient(cfg)
	if err != nil {
		return fmt.Errorf("create redis client: %w", err)
	}
	defer rdb.Close()

	payloads, err := rdb.Subscribe(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "watching %s\n", rdb.Channel())
	for payload := range payloads {
		fmt.Println(string(payload))
	}
	return nil
}

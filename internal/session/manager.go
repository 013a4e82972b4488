// Package session runs the request/response cycle of one shopping
// consultant conversation against a streaming text generator.
//
// A Manager is either Idle or Sending. Submit moves it to Sending, appends
// the user message and an empty assistant placeholder, and starts exactly
// one stream. Chunks extend the placeholder, completion freezes it, and a
// failure replaces it with a fixed fallback notice. Submit while Sending is
// refused. All transitions are serialized by one mutex, so the transcript
// has a single writer.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kainult/price-platform/internal/llm"
	"github.com/kainult/price-platform/internal/transcript"
	"github.com/kainult/price-platform/pkg/logger"
	"github.com/kainult/price-platform/pkg/metrics"
	"github.com/kainult/price-platform/pkg/tracing"
)

var (
	// ErrBusy is returned by Submit while a reply is streaming. The call
	// has no effect.
	ErrBusy = errors.New("session: a reply is still streaming")

	// ErrEmptyMessage is returned by Submit for blank text.
	ErrEmptyMessage = errors.New("session: message is empty")

	// ErrClosed is returned once the manager has been closed.
	ErrClosed = errors.New("session: closed")
)

// StreamError wraps a failure reported by the generator mid-stream. It is
// recovered inside the manager and only ever logged.
type StreamError struct {
	Err error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream failed: %v", e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// State is the manager's position in the request/response cycle.
type State int

const (
	StateIdle State = iota
	StateSending
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	default:
		return "unknown"
	}
}

// Generator produces a reply as an ordered sequence of text fragments.
// llm.Client satisfies it.
type Generator interface {
	CompleteStream(ctx context.Context, req *llm.CompletionRequest, callback llm.StreamCallback) (*llm.CompletionResponse, error)
	Name() string
}

// Config holds the injected collaborators and fixed texts of a session.
type Config struct {
	Generator    Generator
	SystemPrompt string
	Model        string
	MaxTokens    int
	Temperature  float64
	Greeting     string
	FallbackText string
	Suggestions  []string

	// SubscriberBuffer bounds each subscriber's queue.
	SubscriberBuffer int

	Logger *logger.Logger
}

func (c *Config) setDefaults() {
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.FallbackText == "" {
		c.FallbackText = DefaultFallbackText
	}
	if c.Greeting == "" {
		c.Greeting = DefaultGreeting
	}
	if c.Suggestions == nil {
		c.Suggestions = DefaultSuggestions
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 500
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = 256
	}
	if c.Logger == nil {
		c.Logger = logger.NewNop()
	}
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	ID       string                   `json:"id"`
	Messages []transcript.MessageView `json:"messages"`
	Busy     bool                     `json:"busy"`
	Seq      uint64                   `json:"seq"`
}

// Manager owns one chat transcript.
type Manager struct {
	id  string
	cfg Config
	log *logger.Logger

	baseCtx   context.Context
	closeBase context.CancelFunc
	wg        sync.WaitGroup

	mu           sync.Mutex
	transcript   *transcript.Transcript
	state        State
	pendingID    string
	cancelStream context.CancelFunc
	streamStart  time.Time
	chunkIndex   int
	seq          uint64
	subs         map[int]*Subscription
	nextSubID    int
	lastActivity time.Time
	closed       bool
}

// NewManager creates an idle session whose transcript starts with the
// configured greeting.
func NewManager(id string, cfg Config) (*Manager, error) {
	if cfg.Generator == nil {
		return nil, errors.New("session: generator is required")
	}
	cfg.setDefaults()

	baseCtx, closeBase := context.WithCancel(context.Background())

	return &Manager{
		id:           id,
		cfg:          cfg,
		log:          cfg.Logger.With(zap.String("session_id", id)),
		baseCtx:      baseCtx,
		closeBase:    closeBase,
		transcript:   transcript.New(transcript.NewAssistantMessage(cfg.Greeting)),
		subs:         make(map[int]*Subscription),
		lastActivity: time.Now(),
	}, nil
}

// ID returns the session identifier.
func (m *Manager) ID() string { return m.id }

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Busy reports whether a reply is streaming.
func (m *Manager) Busy() bool {
	return m.State() == StateSending
}

// Closed reports whether Close has been called.
func (m *Manager) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// LastActivity returns the time of the last transition.
func (m *Manager) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActivity
}

// Snapshot returns a copy of the transcript and busy flag.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Suggestions returns starter questions while the conversation has not
// started yet, and nil afterwards.
func (m *Manager) Suggestions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transcript.Len() > 1 || m.state != StateIdle {
		return nil
	}
	out := make([]string, len(m.cfg.Suggestions))
	copy(out, m.cfg.Suggestions)
	return out
}

// Submit appends text as a user message and starts streaming the reply.
// It returns ErrEmptyMessage for blank text and ErrBusy while a previous
// reply is still streaming; in both cases nothing changes.
func (m *Manager) Submit(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		metrics.RecordSubmit("invalid")
		return ErrEmptyMessage
	}

	_, span := tracing.Tracer().Start(ctx, "chat.submit",
		trace.WithAttributes(attribute.String("session.id", m.id)))
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.state == StateSending {
		metrics.RecordSubmit("busy")
		span.SetAttributes(attribute.Bool("session.busy", true))
		return ErrBusy
	}

	history := m.historyLocked()

	user := transcript.NewUserMessage(text)
	if err := m.transcript.Append(user); err != nil {
		m.resetLocked(err)
		return err
	}
	placeholder := transcript.NewPlaceholder()
	if err := m.transcript.Append(placeholder); err != nil {
		m.resetLocked(err)
		return err
	}

	req := &llm.CompletionRequest{
		Model:       m.cfg.Model,
		System:      m.cfg.SystemPrompt,
		Messages:    append(history, llm.ChatMessage{Role: string(transcript.RoleUser), Content: text}),
		MaxTokens:   m.cfg.MaxTokens,
		Temperature: m.cfg.Temperature,
	}

	streamCtx, cancel := context.WithCancel(m.baseCtx)
	streamCtx = trace.ContextWithSpanContext(streamCtx, span.SpanContext())

	m.state = StateSending
	m.pendingID = placeholder.ID()
	m.cancelStream = cancel
	m.streamStart = time.Now()
	m.chunkIndex = 0
	m.lastActivity = m.streamStart

	m.publishLocked(KindSubmitted, placeholder.ID(), "", 0)
	metrics.RecordSubmit("accepted")
	m.log.Info("message submitted",
		zap.String("message_id", user.ID()),
		zap.Int("context_messages", len(req.Messages)),
	)

	m.wg.Add(1)
	go m.stream(streamCtx, placeholder.ID(), req)

	return nil
}

// stream drives one generator call and reports its outcome.
func (m *Manager) stream(ctx context.Context, id string, req *llm.CompletionRequest) {
	defer m.wg.Done()

	ctx, span := tracing.Tracer().Start(ctx, "chat.stream",
		trace.WithAttributes(
			attribute.String("session.id", m.id),
			attribute.String("llm.provider", m.cfg.Generator.Name()),
		))
	defer span.End()

	resp, err := m.cfg.Generator.CompleteStream(ctx, req, func(token string, _ int) error {
		return m.OnChunk(id, token)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stream failed")
		_ = m.OnError(id, err)
		return
	}
	span.SetAttributes(attribute.Int("llm.chunks", resp.Chunks))
	_ = m.OnComplete(id, resp)
}

// OnChunk appends fragment to the placeholder identified by id. It returns
// a *transcript.NotFoundError when id is not the in-flight placeholder,
// which makes the generator abandon a stale stream.
func (m *Manager) OnChunk(id, fragment string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.expectPendingLocked(id); err != nil {
		return err
	}
	if err := m.transcript.Extend(id, fragment); err != nil {
		m.resetLocked(err)
		return err
	}

	index := m.chunkIndex
	m.chunkIndex++
	m.lastActivity = time.Now()
	m.publishLocked(KindChunk, id, fragment, index)
	metrics.RecordChunk(m.cfg.Generator.Name())
	return nil
}

// OnComplete freezes the placeholder and returns to Idle.
func (m *Manager) OnComplete(id string, resp *llm.CompletionResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.expectPendingLocked(id); err != nil {
		return err
	}
	if err := m.transcript.Finalize(id); err != nil {
		m.resetLocked(err)
		return err
	}

	elapsed := time.Since(m.streamStart)
	m.toIdleLocked()
	m.publishLocked(KindComplete, id, "", 0)

	var tokensIn, tokensOut int
	if resp != nil {
		tokensIn, tokensOut = resp.TokensIn, resp.TokensOut
	}
	metrics.RecordLLMStream(m.cfg.Generator.Name(), "complete", elapsed.Seconds(), tokensIn, tokensOut)
	m.log.Info("reply completed",
		zap.String("message_id", id),
		zap.Int("chunks", m.chunkIndex),
		zap.Duration("duration", elapsed),
	)
	return nil
}

// OnError discards the placeholder with whatever it accumulated, appends
// the fallback notice and returns to Idle. The stream error is logged and
// never returned.
func (m *Manager) OnError(id string, streamErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.expectPendingLocked(id); err != nil {
		return err
	}
	if err := m.transcript.Discard(id); err != nil {
		m.resetLocked(err)
		return err
	}

	elapsed := time.Since(m.streamStart)
	m.toIdleLocked()

	fallback := transcript.NewAssistantMessage(m.cfg.FallbackText)
	if err := m.transcript.Append(fallback); err != nil {
		m.log.Error("failed to append fallback message", zap.Error(err))
	}
	m.publishLocked(KindError, fallback.ID(), "", 0)

	metrics.RecordLLMStream(m.cfg.Generator.Name(), "error", elapsed.Seconds(), 0, 0)
	m.log.Warn("reply failed, fallback shown",
		zap.String("message_id", id),
		zap.Error(&StreamError{Err: streamErr}),
	)
	return nil
}

// Cancel abandons the in-flight reply: the stream is cancelled, the
// placeholder and its partial text are discarded and the session returns
// to Idle. It reports whether anything was cancelled.
func (m *Manager) Cancel() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateSending {
		return false
	}

	id := m.pendingID
	elapsed := time.Since(m.streamStart)
	if err := m.transcript.Discard(id); err != nil {
		m.resetLocked(err)
		return true
	}
	m.toIdleLocked()
	m.publishLocked(KindCancelled, id, "", 0)

	metrics.RecordLLMStream(m.cfg.Generator.Name(), "cancel", elapsed.Seconds(), 0, 0)
	m.log.Info("reply cancelled", zap.String("message_id", id))
	return true
}

// Close cancels any in-flight stream, disconnects all subscribers and waits
// for the stream goroutine to exit. Further submits return ErrClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	if m.state == StateSending {
		if err := m.transcript.Discard(m.pendingID); err != nil {
			m.log.Debug("discard on close", zap.Error(err))
		}
		m.toIdleLocked()
	}
	for id, sub := range m.subs {
		delete(m.subs, id)
		close(sub.ch)
	}
	m.mu.Unlock()

	m.closeBase()
	m.wg.Wait()
}

func (m *Manager) expectPendingLocked(id string) error {
	if m.state != StateSending || m.pendingID != id {
		m.log.Debug("ignoring event for stale stream", zap.String("message_id", id))
		return &transcript.NotFoundError{ID: id}
	}
	return nil
}

// toIdleLocked leaves Sending. The stream context is released; cancelling
// an already finished stream is harmless.
func (m *Manager) toIdleLocked() {
	if m.cancelStream != nil {
		m.cancelStream()
		m.cancelStream = nil
	}
	m.state = StateIdle
	m.pendingID = ""
	m.lastActivity = time.Now()
}

// resetLocked recovers from a broken transcript invariant by dropping the
// pending tail and returning to Idle.
func (m *Manager) resetLocked(cause error) {
	m.log.Error("transcript invariant violated, resetting session", zap.Error(cause))
	if id, open := m.transcript.Pending(); open {
		_ = m.transcript.Discard(id)
	}
	m.toIdleLocked()
	m.publishLocked(KindReset, "", "", 0)
}

func (m *Manager) historyLocked() []llm.ChatMessage {
	views := m.transcript.Snapshot()
	history := make([]llm.ChatMessage, 0, len(views)+1)
	for _, v := range views {
		history = append(history, llm.ChatMessage{Role: string(v.Role), Content: v.Content})
	}
	return history
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		ID:       m.id,
		Messages: m.transcript.Snapshot(),
		Busy:     m.state == StateSending,
		Seq:      m.seq,
	}
}

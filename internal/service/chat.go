package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kainult/price-platform/internal/model"
	"github.com/kainult/price-platform/internal/session"
	"github.com/kainult/price-platform/pkg/logger"
	"github.com/kainult/price-platform/pkg/metrics"
)

// ErrSessionNotFound is returned for an unknown session or one owned by
// another user.
var ErrSessionNotFound = errors.New("session not found")

const publishTimeout = 5 * time.Second

// ResyncKind marks a bus event published after the forwarder missed
// transitions. Its sequence is the session's current one.
const ResyncKind = "resync"

// EventPublisher receives a record of every session transition.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *model.SessionEvent) (uint64, error)
}

// ChatConfig configures the chat service.
type ChatConfig struct {
	// Session is the template every new session is created from.
	Session session.Config

	// IdleTTL evicts sessions that have not changed for this long. Zero
	// keeps sessions until they are deleted.
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

type chatSession struct {
	manager   *session.Manager
	userID    string
	createdAt time.Time
}

// ChatService keeps the live chat sessions of all users in memory.
type ChatService struct {
	cfg       ChatConfig
	publisher EventPublisher
	logger    *logger.Logger

	sessions map[string]*chatSession
	mu       sync.RWMutex

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewChatService creates a new chat service. publisher may be nil.
func NewChatService(cfg ChatConfig, publisher EventPublisher, log *logger.Logger) *ChatService {
	return &ChatService{
		cfg:       cfg,
		publisher: publisher,
		logger:    log,
		sessions:  make(map[string]*chatSession),
		stop:      make(chan struct{}),
	}
}

// Start runs the idle session sweeper until Close.
func (s *ChatService) Start() {
	if s.cfg.IdleTTL <= 0 || s.cfg.SweepInterval <= 0 {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case now := <-ticker.C:
				if n := s.Sweep(now); n > 0 {
					s.logger.Info("evicted idle sessions", zap.Int("count", n))
				}
			}
		}
	}()
}

// Close stops the sweeper and closes every session.
func (s *ChatService) Close() {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*chatSession)
	s.mu.Unlock()

	for _, cs := range sessions {
		cs.manager.Close()
		metrics.ChatSessionsActive.Dec()
	}
	s.wg.Wait()
}

// Create starts a new session for userID.
func (s *ChatService) Create(ctx context.Context, userID string) (*model.Session, error) {
	id := uuid.Must(uuid.NewV7()).String()

	cfg := s.cfg.Session
	cfg.Logger = s.logger.WithSession(id, userID)

	m, err := session.NewManager(id, cfg)
	if err != nil {
		return nil, err
	}

	cs := &chatSession{
		manager:   m,
		userID:    userID,
		createdAt: time.Now(),
	}

	if s.publisher != nil {
		_, sub := m.Subscribe()
		s.wg.Add(1)
		go s.forward(cs, sub)
	}

	s.mu.Lock()
	s.sessions[id] = cs
	s.mu.Unlock()

	metrics.ChatSessionsActive.Inc()
	cfg.Logger.Info("session created")

	return toSession(cs), nil
}

// Get returns the current state of a session.
func (s *ChatService) Get(ctx context.Context, userID, sessionID string) (*model.Session, error) {
	cs, err := s.lookup(userID, sessionID)
	if err != nil {
		return nil, err
	}
	return toSession(cs), nil
}

// List returns the sessions of userID, oldest first.
func (s *ChatService) List(ctx context.Context, userID string) *model.ListSessionsResponse {
	s.mu.RLock()
	var owned []*chatSession
	for _, cs := range s.sessions {
		if cs.userID == userID {
			owned = append(owned, cs)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(owned, func(a, b *chatSession) int {
		return a.createdAt.Compare(b.createdAt)
	})

	out := make([]model.Session, 0, len(owned))
	for _, cs := range owned {
		out = append(out, *toSession(cs))
	}
	return &model.ListSessionsResponse{Sessions: out, Total: len(out)}
}

// Delete closes a session, cancelling any reply in flight.
func (s *ChatService) Delete(ctx context.Context, userID, sessionID string) error {
	s.mu.Lock()
	cs, ok := s.sessions[sessionID]
	if !ok || cs.userID != userID {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	cs.manager.Close()
	metrics.ChatSessionsActive.Dec()
	s.logger.WithSession(sessionID, userID).Info("session deleted")
	return nil
}

// Submit sends a user message. It returns session.ErrBusy while the
// previous reply is streaming and session.ErrEmptyMessage for blank text.
func (s *ChatService) Submit(ctx context.Context, userID, sessionID, content string) (*model.Session, error) {
	cs, err := s.lookup(userID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := cs.manager.Submit(ctx, content); err != nil {
		if errors.Is(err, session.ErrClosed) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return toSession(cs), nil
}

// Cancel abandons the reply in flight, if any.
func (s *ChatService) Cancel(ctx context.Context, userID, sessionID string) (bool, error) {
	cs, err := s.lookup(userID, sessionID)
	if err != nil {
		return false, err
	}
	return cs.manager.Cancel(), nil
}

// Subscribe attaches a live subscriber to a session.
func (s *ChatService) Subscribe(ctx context.Context, userID, sessionID string) (session.Snapshot, *session.Subscription, error) {
	cs, err := s.lookup(userID, sessionID)
	if err != nil {
		return session.Snapshot{}, nil, err
	}
	snap, sub := cs.manager.Subscribe()
	return snap, sub, nil
}

// Sweep evicts idle sessions whose last transition is older than the TTL
// and returns how many were evicted. Streaming sessions are never evicted.
func (s *ChatService) Sweep(now time.Time) int {
	if s.cfg.IdleTTL <= 0 {
		return 0
	}

	s.mu.Lock()
	var idle []*chatSession
	for id, cs := range s.sessions {
		if cs.manager.Busy() || now.Sub(cs.manager.LastActivity()) < s.cfg.IdleTTL {
			continue
		}
		delete(s.sessions, id)
		idle = append(idle, cs)
	}
	s.mu.Unlock()

	for _, cs := range idle {
		cs.manager.Close()
		metrics.ChatSessionsActive.Dec()
	}
	return len(idle)
}

// Len returns the number of live sessions.
func (s *ChatService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *ChatService) lookup(userID, sessionID string) (*chatSession, error) {
	s.mu.RLock()
	cs, ok := s.sessions[sessionID]
	s.mu.RUnlock()

	if !ok || cs.userID != userID {
		return nil, ErrSessionNotFound
	}
	return cs, nil
}

// forward publishes the session's transitions until the session closes.
// When a slow bus gets the forwarder dropped, it resubscribes and publishes
// a resync event carrying the current sequence; the transitions in between
// are lost. Publishing is best-effort and never blocks the session.
func (s *ChatService) forward(cs *chatSession, sub *session.Subscription) {
	defer s.wg.Done()
	log := s.logger.WithSession(cs.manager.ID(), cs.userID)

	var last uint64
	for {
		for u := range sub.C {
			last = u.Seq
			s.publish(log, toSessionEvent(cs.userID, u))
		}

		if cs.manager.Closed() {
			return
		}
		select {
		case <-s.stop:
			return
		default:
		}

		snap, next := cs.manager.Subscribe()
		sub = next
		if snap.Seq <= last {
			continue
		}

		skipped := snap.Seq - last
		metrics.EventsSkippedTotal.Add(float64(skipped))
		log.Warn("event forwarding fell behind, resubscribed",
			zap.Uint64("last_seq", last),
			zap.Uint64("resync_seq", snap.Seq),
			zap.Uint64("skipped", skipped),
		)
		last = snap.Seq
		s.publish(log, toResyncEvent(cs.userID, snap))
	}
}

func (s *ChatService) publish(log *logger.Logger, event *model.SessionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	_, err := s.publisher.PublishEvent(ctx, event)
	cancel()

	metrics.RecordEventPublished(event.Kind, err)
	if err != nil {
		log.Warn("failed to publish session event", zap.String("kind", event.Kind), zap.Error(err))
	}
}

func toSession(cs *chatSession) *model.Session {
	snap := cs.manager.Snapshot()
	return &model.Session{
		ID:          snap.ID,
		UserID:      cs.userID,
		Messages:    snap.Messages,
		Busy:        snap.Busy,
		Suggestions: cs.manager.Suggestions(),
		CreatedAt:   cs.createdAt,
		Sequence:    snap.Seq,
	}
}

func toSessionEvent(userID string, u session.Update) *model.SessionEvent {
	event := &model.SessionEvent{
		ID:        uuid.Must(uuid.NewV7()).String(),
		SessionID: u.SessionID,
		UserID:    userID,
		Kind:      string(u.Kind),
		Sequence:  u.Seq,
		MessageID: u.MessageID,
		Chunk:     u.Chunk,
		Busy:      u.Busy,
		CreatedAt: u.At,
	}

	switch u.Kind {
	case session.KindSubmitted:
		// The user message sits just before the new placeholder.
		if n := len(u.Messages); n >= 2 {
			event.Content = u.Messages[n-2].Content
		}
	case session.KindComplete, session.KindError:
		for _, m := range u.Messages {
			if m.ID == u.MessageID {
				event.Content = m.Content
				break
			}
		}
	}
	return event
}

func toResyncEvent(userID string, snap session.Snapshot) *model.SessionEvent {
	return &model.SessionEvent{
		ID:        uuid.Must(uuid.NewV7()).String(),
		SessionID: snap.ID,
		UserID:    userID,
		Kind:      ResyncKind,
		Sequence:  snap.Seq,
		Busy:      snap.Busy,
		CreatedAt: time.Now(),
	}
}

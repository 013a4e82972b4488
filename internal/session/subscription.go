package session

import (
	"time"

	"go.uber.org/zap"

	"github.com/kainult/price-platform/internal/transcript"
	"github.com/kainult/price-platform/pkg/metrics"
)

// Kind names the transition an Update reports.
type Kind string

const (
	KindSubmitted Kind = "submitted"
	KindChunk     Kind = "chunk"
	KindComplete  Kind = "complete"
	KindError     Kind = "error"
	KindCancelled Kind = "cancelled"
	KindReset     Kind = "reset"
)

// Update is published to every subscriber after each transition. Seq
// increases by one per update, so a gap means the subscriber was dropped.
type Update struct {
	Seq       uint64                   `json:"seq"`
	SessionID string                   `json:"session_id"`
	Kind      Kind                     `json:"kind"`
	MessageID string                   `json:"message_id,omitempty"`
	Chunk     string                   `json:"chunk,omitempty"`
	Index     int                      `json:"index"`
	Messages  []transcript.MessageView `json:"messages"`
	Busy      bool                     `json:"busy"`
	At        time.Time                `json:"at"`
}

// Subscription receives updates on C until Close is called, the manager
// closes, or the subscriber falls a full buffer behind. In every case C is
// closed.
type Subscription struct {
	C <-chan Update

	ch chan Update
	id int
	m  *Manager
}

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.m.unsubscribe(s.id)
}

// Subscribe registers a new subscriber and returns the state it starts
// from. Every later transition is delivered on the subscription in order.
func (m *Manager) Subscribe() (Snapshot, *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan Update, m.cfg.SubscriberBuffer)
	sub := &Subscription{C: ch, ch: ch, id: m.nextSubID, m: m}
	m.nextSubID++

	if m.closed {
		close(ch)
		return m.snapshotLocked(), sub
	}
	m.subs[sub.id] = sub
	return m.snapshotLocked(), sub
}

func (m *Manager) unsubscribe(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sub, ok := m.subs[id]; ok {
		delete(m.subs, id)
		close(sub.ch)
	}
}

// publishLocked fans an update out without blocking. A subscriber whose
// queue is full is disconnected rather than allowed to stall the session.
func (m *Manager) publishLocked(kind Kind, messageID, chunk string, index int) {
	m.seq++
	u := Update{
		Seq:       m.seq,
		SessionID: m.id,
		Kind:      kind,
		MessageID: messageID,
		Chunk:     chunk,
		Index:     index,
		Messages:  m.transcript.Snapshot(),
		Busy:      m.state == StateSending,
		At:        time.Now(),
	}

	for id, sub := range m.subs {
		select {
		case sub.ch <- u:
		default:
			delete(m.subs, id)
			close(sub.ch)
			metrics.SubscribersDropped.Inc()
			m.log.Warn("dropping slow subscriber", zap.Int("subscriber", id), zap.Uint64("seq", u.Seq))
		}
	}
}

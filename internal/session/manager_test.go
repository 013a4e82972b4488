package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kainult/price-platform/internal/llm"
	"github.com/kainult/price-platform/internal/transcript"
)

type step struct {
	chunk string
	err   error
	done  bool
}

type call struct {
	req   *llm.CompletionRequest
	steps chan step
}

// scriptedGenerator hands every stream to the test, which then feeds it
// one step at a time.
type scriptedGenerator struct {
	calls chan *call
}

func newScriptedGenerator() *scriptedGenerator {
	return &scriptedGenerator{calls: make(chan *call, 8)}
}

func (g *scriptedGenerator) Name() string { return "scripted" }

func (g *scriptedGenerator) CompleteStream(ctx context.Context, req *llm.CompletionRequest, cb llm.StreamCallback) (*llm.CompletionResponse, error) {
	c := &call{req: req, steps: make(chan step)}
	g.calls <- c

	var sb strings.Builder
	n := 0
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case s := <-c.steps:
			switch {
			case s.err != nil:
				return nil, s.err
			case s.done:
				return &llm.CompletionResponse{Content: sb.String(), Chunks: n, TokensIn: 10, TokensOut: n}, nil
			}
			if err := cb(s.chunk, n); err != nil {
				return nil, err
			}
			sb.WriteString(s.chunk)
			n++
		}
	}
}

func (g *scriptedGenerator) next(t *testing.T) *call {
	t.Helper()
	select {
	case c := <-g.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("generator was not called")
		return nil
	}
}

func newTestManager(t *testing.T, mutate ...func(*Config)) (*Manager, *scriptedGenerator) {
	t.Helper()
	gen := newScriptedGenerator()
	cfg := Config{Generator: gen, Model: "gpt-4o-mini"}
	for _, fn := range mutate {
		fn(&cfg)
	}
	m, err := NewManager("s1", cfg)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m, gen
}

func nextUpdate(t *testing.T, sub *Subscription) Update {
	t.Helper()
	select {
	case u, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("no update received")
		return Update{}
	}
}

func tail(msgs []transcript.MessageView) transcript.MessageView {
	return msgs[len(msgs)-1]
}

func TestNewManager_RequiresGenerator(t *testing.T) {
	_, err := NewManager("s1", Config{})
	assert.Error(t, err)
}

func TestNewManager_StartsWithGreeting(t *testing.T) {
	m, _ := newTestManager(t)

	snap := m.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, transcript.RoleAssistant, snap.Messages[0].Role)
	assert.Equal(t, DefaultGreeting, snap.Messages[0].Content)
	assert.False(t, snap.Busy)
	assert.Equal(t, StateIdle, m.State())
}

func TestSubmit_StreamsAndCompletes(t *testing.T) {
	m, gen := newTestManager(t)
	_, sub := m.Subscribe()

	require.NoError(t, m.Submit(context.Background(), "Kur pigiausia?"))

	u := nextUpdate(t, sub)
	assert.Equal(t, KindSubmitted, u.Kind)
	assert.True(t, u.Busy)
	require.Len(t, u.Messages, 3)
	assert.Equal(t, "Kur pigiausia?", u.Messages[1].Content)
	assert.True(t, tail(u.Messages).Streaming)
	assert.Empty(t, tail(u.Messages).Content)
	placeholderID := u.MessageID
	seq := u.Seq

	c := gen.next(t)
	want := []string{"Ra", "Raškite ", "Raškite telefonų"}
	for i, chunk := range []string{"Ra", "škite ", "telefonų"} {
		c.steps <- step{chunk: chunk}
		u = nextUpdate(t, sub)
		assert.Equal(t, KindChunk, u.Kind)
		assert.Equal(t, seq+uint64(i)+1, u.Seq)
		assert.Equal(t, i, u.Index)
		assert.Equal(t, placeholderID, u.MessageID)
		assert.Equal(t, want[i], tail(u.Messages).Content)
		assert.True(t, u.Busy)
	}

	c.steps <- step{done: true}
	u = nextUpdate(t, sub)
	assert.Equal(t, KindComplete, u.Kind)
	assert.False(t, u.Busy)

	snap := m.Snapshot()
	require.Len(t, snap.Messages, 3)
	last := tail(snap.Messages)
	assert.Equal(t, "Raškite telefonų", last.Content)
	assert.False(t, last.Streaming)
	assert.Equal(t, transcript.RoleAssistant, last.Role)
	assert.Equal(t, StateIdle, m.State())
}

func TestSubmit_StreamFailureShowsFallback(t *testing.T) {
	m, gen := newTestManager(t)
	_, sub := m.Subscribe()

	require.NoError(t, m.Submit(context.Background(), "Labas"))
	nextUpdate(t, sub)

	c := gen.next(t)
	c.steps <- step{chunk: "Dal"}
	nextUpdate(t, sub)
	c.steps <- step{chunk: "inis"}
	nextUpdate(t, sub)
	c.steps <- step{err: errors.New("upstream reset")}

	u := nextUpdate(t, sub)
	assert.Equal(t, KindError, u.Kind)
	assert.False(t, u.Busy)

	snap := m.Snapshot()
	require.Len(t, snap.Messages, 3)
	assert.Equal(t, "Labas", snap.Messages[1].Content)
	assert.Equal(t, DefaultFallbackText, tail(snap.Messages).Content)
	for _, msg := range snap.Messages {
		assert.NotContains(t, msg.Content, "Dalinis")
		assert.False(t, msg.Streaming)
	}
	assert.Equal(t, StateIdle, m.State())

	// Input is accepted again right after the failure.
	require.NoError(t, m.Submit(context.Background(), "Bandau dar kartą"))
	u = nextUpdate(t, sub)
	assert.Equal(t, KindSubmitted, u.Kind)
	require.Len(t, u.Messages, 5)
	assert.Equal(t, DefaultFallbackText, u.Messages[2].Content)
	assert.Equal(t, "Bandau dar kartą", u.Messages[3].Content)
	gen.next(t)
}

func TestSubmit_RejectsWhileBusy(t *testing.T) {
	m, gen := newTestManager(t)

	require.NoError(t, m.Submit(context.Background(), "pirmas"))
	gen.next(t)

	err := m.Submit(context.Background(), "antras")
	assert.ErrorIs(t, err, ErrBusy)

	snap := m.Snapshot()
	assert.Len(t, snap.Messages, 3)
	assert.True(t, snap.Busy)
	assert.Empty(t, gen.calls, "second submit must not start a stream")
}

func TestSubmit_RejectsEmptyText(t *testing.T) {
	m, _ := newTestManager(t)

	for _, text := range []string{"", "   ", "\n\t"} {
		assert.ErrorIs(t, m.Submit(context.Background(), text), ErrEmptyMessage)
	}
	assert.Len(t, m.Snapshot().Messages, 1)
	assert.False(t, m.Busy())
}

func TestSubmit_SendsPersonaHistoryAndLimits(t *testing.T) {
	m, gen := newTestManager(t, func(c *Config) { c.MaxTokens = 300 })
	_, sub := m.Subscribe()

	require.NoError(t, m.Submit(context.Background(), "pirmas"))
	nextUpdate(t, sub)
	c := gen.next(t)
	c.steps <- step{chunk: "atsakymas"}
	nextUpdate(t, sub)
	c.steps <- step{done: true}
	nextUpdate(t, sub)

	require.NoError(t, m.Submit(context.Background(), "antras"))
	c = gen.next(t)

	req := c.req
	assert.Equal(t, DefaultSystemPrompt, req.System)
	assert.Equal(t, "gpt-4o-mini", req.Model)
	assert.Equal(t, 300, req.MaxTokens)

	var got []string
	for _, msg := range req.Messages {
		got = append(got, msg.Role+":"+msg.Content)
	}
	assert.Equal(t, []string{
		"assistant:" + DefaultGreeting,
		"user:pirmas",
		"assistant:atsakymas",
		"user:antras",
	}, got)
}

func TestCancel_DiscardsPartialReply(t *testing.T) {
	m, gen := newTestManager(t)
	_, sub := m.Subscribe()

	assert.False(t, m.Cancel(), "nothing to cancel while idle")

	require.NoError(t, m.Submit(context.Background(), "Labas"))
	nextUpdate(t, sub)
	c := gen.next(t)
	c.steps <- step{chunk: "Ra"}
	nextUpdate(t, sub)

	require.True(t, m.Cancel())
	u := nextUpdate(t, sub)
	assert.Equal(t, KindCancelled, u.Kind)
	assert.False(t, u.Busy)

	snap := m.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "Labas", tail(snap.Messages).Content)
	assert.False(t, m.Cancel())

	// The session accepts a new message straight away.
	require.NoError(t, m.Submit(context.Background(), "Dar kartą"))
	assert.NotNil(t, gen.next(t))
}

func TestStaleEventsAreIgnored(t *testing.T) {
	m, gen := newTestManager(t)
	_, sub := m.Subscribe()

	require.NoError(t, m.Submit(context.Background(), "Labas"))
	u := nextUpdate(t, sub)
	gen.next(t)
	staleID := u.MessageID
	require.True(t, m.Cancel())

	var nf *transcript.NotFoundError
	assert.ErrorAs(t, m.OnChunk(staleID, "x"), &nf)
	assert.ErrorAs(t, m.OnComplete(staleID, nil), &nf)
	assert.ErrorAs(t, m.OnError(staleID, errors.New("late")), &nf)
	assert.ErrorAs(t, m.OnChunk("unknown", "x"), &nf)

	snap := m.Snapshot()
	require.Len(t, snap.Messages, 2)
	for _, msg := range snap.Messages {
		assert.NotEqual(t, DefaultFallbackText, msg.Content)
	}
	assert.False(t, snap.Busy)
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	m, gen := newTestManager(t, func(c *Config) { c.SubscriberBuffer = 1 })
	_, slow := m.Subscribe()

	require.NoError(t, m.Submit(context.Background(), "Labas"))
	c := gen.next(t)
	c.steps <- step{chunk: "Ra"}

	require.Eventually(t, func() bool {
		return tail(m.Snapshot().Messages).Content == "Ra"
	}, 2*time.Second, 5*time.Millisecond)

	u, ok := <-slow.C
	require.True(t, ok)
	assert.Equal(t, KindSubmitted, u.Kind)
	_, ok = <-slow.C
	assert.False(t, ok, "slow subscriber should have been disconnected")

	// The session keeps going without it.
	c.steps <- step{done: true}
	require.Eventually(t, func() bool { return !m.Busy() }, 2*time.Second, 5*time.Millisecond)
}

func TestSubscribe_SnapshotThenUpdates(t *testing.T) {
	m, _ := newTestManager(t)

	snap, sub := m.Subscribe()
	assert.Len(t, snap.Messages, 1)
	assert.Equal(t, uint64(0), snap.Seq)

	require.NoError(t, m.Submit(context.Background(), "Labas"))
	u := nextUpdate(t, sub)
	assert.Equal(t, snap.Seq+1, u.Seq)

	sub.Close()
	sub.Close()
	_, ok := <-sub.C
	assert.False(t, ok)
}

func TestClose_StopsStreamAndSubscribers(t *testing.T) {
	m, gen := newTestManager(t)
	_, sub := m.Subscribe()

	require.NoError(t, m.Submit(context.Background(), "Labas"))
	nextUpdate(t, sub)
	gen.next(t)
	assert.False(t, m.Closed())

	m.Close()
	assert.True(t, m.Closed())

	_, ok := <-sub.C
	assert.False(t, ok)
	assert.ErrorIs(t, m.Submit(context.Background(), "vėl"), ErrClosed)
	assert.False(t, m.Busy())
}

func TestSuggestions_OnlyBeforeFirstMessage(t *testing.T) {
	m, gen := newTestManager(t)

	assert.Equal(t, DefaultSuggestions, m.Suggestions())

	require.NoError(t, m.Submit(context.Background(), "Labas"))
	gen.next(t)
	assert.Nil(t, m.Suggestions())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "sending", StateSending.String())
}

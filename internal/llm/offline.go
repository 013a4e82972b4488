package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// OfflineClient streams a canned consultant reply without calling any
// provider. It backs local development and demos when no API key is set.
type OfflineClient struct {
	chunkRunes int
	delay      time.Duration
}

// Ensure OfflineClient implements Client.
var _ Client = (*OfflineClient)(nil)

// NewOfflineClient creates an offline client that emits 8-rune chunks
// 20ms apart.
func NewOfflineClient() *OfflineClient {
	return &OfflineClient{chunkRunes: 8, delay: 20 * time.Millisecond}
}

// WithPacing overrides chunk size and inter-chunk delay.
func (c *OfflineClient) WithPacing(chunkRunes int, delay time.Duration) *OfflineClient {
	if chunkRunes > 0 {
		c.chunkRunes = chunkRunes
	}
	c.delay = delay
	return c
}

// Name returns the provider name.
func (c *OfflineClient) Name() string {
	return string(ProviderOffline)
}

// Models returns available models.
func (c *OfflineClient) Models() []string {
	return []string{"offline"}
}

// CompleteStream streams the canned reply chunk by chunk.
func (c *OfflineClient) CompleteStream(ctx context.Context, req *CompletionRequest, callback StreamCallback) (*CompletionResponse, error) {
	start := time.Now()
	reply := offlineReply(req)
	chunks := splitRunes(reply, c.chunkRunes)

	for i, chunk := range chunks {
		if c.delay > 0 {
			timer := time.NewTimer(c.delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := callback(chunk, i); err != nil {
			return nil, err
		}
	}

	return &CompletionResponse{
		Content:    reply,
		Model:      "offline",
		Chunks:     len(chunks),
		TokensOut:  len(reply) / 4,
		StopReason: "stop",
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

func offlineReply(req *CompletionRequest) string {
	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			last = req.Messages[i].Content
			break
		}
	}
	if last == "" {
		return "Sveiki! Kuo galiu padėti renkantis pirkinius?"
	}
	return fmt.Sprintf("Gavau jūsų klausimą: %q. Palyginkite kainas su pristatymu ir rinkitės parduotuvę, kurioje prekė yra sandėlyje.", truncateRunes(last, 80))
}

// splitRunes cuts s into pieces of at most n runes without splitting a
// multi-byte character.
func splitRunes(s string, n int) []string {
	if s == "" {
		return nil
	}
	var chunks []string
	var b strings.Builder
	count := 0
	for _, r := range s {
		b.WriteRune(r)
		count++
		if count == n {
			chunks = append(chunks, b.String())
			b.Reset()
			count = 0
		}
	}
	if b.Len() > 0 {
		chunks = append(chunks, b.String())
	}
	return chunks
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}

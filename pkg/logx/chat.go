package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Sender posts a formatted log line to a chat. The Telegram adapter implements it.
type Sender interface {
	SendLog(ctx context.Context, chatID int64, threadID int, text string) error
}

const (
	chatQueueSize = 256
	chatMaxRunes  = 3500
	chatMaxValue  = 600
	chatMaxStack  = 900
)

// leadKeys are printed first, in this order, below the headline.
var leadKeys = []string{KeyReminder, KeyScope, KeyAuthor, KeyRequest, zerolog.ErrorFieldName}

var levelBadge = map[string]string{
	"debug": "🔍 DEBUG",
	"info":  "ℹ️ INFO",
	"warn":  "⚠️ WARN",
	"error": "🛑 ERROR",
}

type chatLine struct {
	chatID   int64
	threadID int
	text     string
}

// chatSink is a zerolog writer that forwards lines at or above a minimum
// level to the log chat. It never blocks the caller: lines over the rate
// limit or beyond the queue are dropped.
type chatSink struct {
	mu       sync.Mutex
	sender   Sender
	chatID   int64
	threadID int
	minLevel zerolog.Level
	limiter  *rate.Limiter

	queue   chan chatLine
	start   sync.Once
	cancel  context.CancelFunc
	done    chan struct{}
	dropped atomic.Uint64
}

func newChatSink(sender Sender) *chatSink {
	return &chatSink{
		sender:   sender,
		minLevel: zerolog.WarnLevel,
		limiter:  rate.NewLimiter(1, 1),
		queue:    make(chan chatLine, chatQueueSize),
	}
}

func (c *chatSink) setSender(s Sender) {
	c.mu.Lock()
	c.sender = s
	c.mu.Unlock()
}

func (c *chatSink) setTarget(chatID int64, threadID int) {
	c.mu.Lock()
	c.chatID = chatID
	if chatID == 0 || threadID != 0 {
		c.threadID = threadID
	}
	c.mu.Unlock()
}

func (c *chatSink) hasTarget() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chatID != 0
}

func (c *chatSink) configure(cfg ChatConfig) {
	rps := max(1, cfg.RatePerSec)
	c.mu.Lock()
	c.minLevel = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	c.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	if cfg.ThreadID != 0 {
		c.threadID = cfg.ThreadID
	}
	c.mu.Unlock()
	if cfg.Enabled {
		c.start.Do(c.run)
	}
}

func (c *chatSink) run() {
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case ln := <-c.queue:
				c.mu.Lock()
				sender := c.sender
				c.mu.Unlock()
				if sender == nil {
					continue
				}
				sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
				_ = sender.SendLog(sctx, ln.chatID, ln.threadID, ln.text)
				cancel()
			}
		}
	}()
}

func (c *chatSink) stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (c *chatSink) Write(p []byte) (int, error) { return c.WriteLevel(zerolog.InfoLevel, p) }

func (c *chatSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	c.mu.Lock()
	chatID, threadID := c.chatID, c.threadID
	ok := chatID != 0 && c.sender != nil && level >= c.minLevel && c.limiter.Allow()
	c.mu.Unlock()
	if !ok {
		return len(p), nil
	}
	text := formatChatLine(p)
	if text == "" {
		return len(p), nil
	}
	select {
	case c.queue <- chatLine{chatID: chatID, threadID: threadID, text: text}:
	default:
		c.dropped.Add(1)
	}
	return len(p), nil
}

// formatChatLine turns one zerolog JSON line into a short chat message:
// level badge, component and message on top, then reminder keys, then the
// rest sorted by key. Lines that are not JSON are passed through trimmed.
func formatChatLine(p []byte) string {
	p = bytes.TrimSpace(p)
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return clip(string(p), chatMaxRunes)
	}

	lvl, _ := m[zerolog.LevelFieldName].(string)
	msg, _ := m[zerolog.MessageFieldName].(string)
	comp, _ := m[KeyComponent].(string)
	for _, k := range []string{zerolog.LevelFieldName, zerolog.MessageFieldName, zerolog.TimestampFieldName, zerolog.CallerFieldName, KeyComponent} {
		delete(m, k)
	}

	var b strings.Builder
	if badge, ok := levelBadge[lvl]; ok {
		b.WriteString(badge)
		b.WriteByte(' ')
	}
	if comp != "" {
		b.WriteString(comp)
		b.WriteString(": ")
	}
	b.WriteString(msg)

	stack, _ := m["stack"].(string)
	delete(m, "stack")

	keys := make([]string, 0, len(m))
	for _, k := range leadKeys {
		if _, ok := m[k]; ok {
			keys = append(keys, k)
		}
	}
	rest := make([]string, 0, len(m))
	for k := range m {
		if !slices.Contains(leadKeys, k) {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)
	for _, k := range append(keys, rest...) {
		fmt.Fprintf(&b, "\n%s: %s", k, clip(fmt.Sprint(m[k]), chatMaxValue))
	}
	if stack != "" {
		b.WriteString("\nstack:\n")
		b.WriteString(clip(stack, chatMaxStack))
	}
	return clip(b.String(), chatMaxRunes)
}

// clip shortens s to at most n runes, marking the cut with "…".
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

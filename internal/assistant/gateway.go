package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"meshmon/internal/events"
	"meshmon/internal/mesh"
	"meshmon/internal/ratelimit"
)

// GenerateTimeout is the budget for one model generation. Past it the
// requester gets the fallback reply and the late result is discarded.
const GenerateTimeout = 30 * time.Second

// Canned replies. Everything sent to the mesh fits one message.
const (
	busyNotice     = "I'm working on another request right now, please try again in a moment."
	rateNotice     = "You've reached the hourly message limit, please try again later."
	timeoutNotice  = "sorry, that took too long"
	failureNotice  = "sorry, I couldn't come up with an answer"
	systemPrompt   = "You are a helpful assistant on a mesh radio network. Keep replies short and useful; they travel over a very low-bandwidth link."
	promptTemplate = "<|system|>\n%s</s>\n<|user|>\n%s</s>\n<|assistant|>\n"
)

// SendFunc transmits one reply chunk and records it in the
// conversation store.
type SendFunc func(text string, dest mesh.NodeID) error

// Gateway owns the chatbot: the enabled flag, the single-generation
// busy flag, rate limiting for non-selected nodes, and reply chunking.
type Gateway struct {
	mu      sync.Mutex
	enabled bool
	busy    bool

	backend Backend
	limiter *ratelimit.Limiter
	send    SendFunc
	feed    *events.Feed
	persist func(enabled bool)
	log     *slog.Logger

	timeout time.Duration
	now     func() time.Time
}

// NewGateway creates a disabled gateway. persist is called after every
// enable/disable so the flag survives restarts; it may be nil.
func NewGateway(backend Backend, limiter *ratelimit.Limiter, send SendFunc, feed *events.Feed, persist func(bool), logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if persist == nil {
		persist = func(bool) {}
	}
	return &Gateway{
		backend: backend,
		limiter: limiter,
		send:    send,
		feed:    feed,
		persist: persist,
		log:     logger,
		timeout: GenerateTimeout,
		now:     time.Now,
	}
}

// Enable loads the model and turns the gateway on. The model load
// happens before the state flips so a bad model path leaves the
// gateway disabled.
func (g *Gateway) Enable(modelPath string) error {
	if err := g.backend.Load(modelPath); err != nil {
		g.log.Warn("chatbot enable failed", "model", modelPath, "err", err)
		return fmt.Errorf("loading model: %w", err)
	}

	g.mu.Lock()
	g.enabled = true
	g.mu.Unlock()

	g.persist(true)
	g.feed.Emitf("chatbot enabled")
	return nil
}

// Disable unloads the model and turns the gateway off. An in-flight
// generation finishes on its own; its reply is still delivered.
func (g *Gateway) Disable() {
	g.mu.Lock()
	was := g.enabled
	g.enabled = false
	g.mu.Unlock()

	g.backend.Unload()
	if was {
		g.persist(false)
		g.feed.Emitf("chatbot disabled")
	}
}

// Shutdown unloads the model without touching the persisted enabled
// flag, so the chatbot comes back on the next start.
func (g *Gateway) Shutdown() {
	g.mu.Lock()
	g.enabled = false
	g.mu.Unlock()
	g.backend.Unload()
}

// Enabled reports whether the gateway accepts messages.
func (g *Gateway) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled
}

// Busy reports whether a generation is in flight.
func (g *Gateway) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.busy
}

// HandleMessage routes one free-form message to the model. It returns
// quickly; generation runs on its own goroutine. The returned error
// classifies the outcome for the caller's log — any user-facing notice
// has already been sent.
//
// The busy check runs before the limiter so a rejected request never
// consumes one of the sender's hourly slots. The limiter is consulted
// under the gateway lock, so only the one request that wins the busy
// flag spends a slot.
func (g *Gateway) HandleMessage(from mesh.NodeID, body string) error {
	g.mu.Lock()
	if !g.enabled {
		g.mu.Unlock()
		return ErrDisabled
	}
	if g.busy {
		g.mu.Unlock()
		g.feed.Emitf("chatbot busy, rejected %s", from)
		if err := g.send(busyNotice, from); err != nil {
			g.log.Warn("busy notice failed", "dest", from, "err", err)
		}
		return ErrBusy
	}
	if !g.limiter.Allow(from) {
		g.mu.Unlock()
		g.feed.Emitf("chatbot rate limited %s", from)
		if err := g.send(rateNotice, from); err != nil {
			g.log.Warn("rate limit notice failed", "dest", from, "err", err)
		}
		return ErrRateLimited
	}
	g.busy = true
	g.mu.Unlock()

	go g.generate(from, body)
	return nil
}

// generate runs one model call and delivers the reply. The result
// channel is buffered so a generation that beats the deadline by a
// hair can still complete its send without blocking forever.
func (g *Gateway) generate(from mesh.NodeID, body string) {
	defer func() {
		g.mu.Lock()
		g.busy = false
		g.mu.Unlock()
	}()

	start := g.now()
	prompt := fmt.Sprintf(promptTemplate, systemPrompt, body)

	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		text, err := g.backend.Generate(ctx, prompt)
		ch <- result{text, err}
	}()

	var reply string
	select {
	case <-ctx.Done():
		g.log.Warn("generation timed out", "from", from, "after", g.now().Sub(start))
		g.feed.Emitf("chatbot reply to %s timed out", from)
		reply = timeoutNotice
	case res := <-ch:
		if res.err != nil {
			g.log.Error("generation failed", "from", from, "err", res.err)
			g.feed.Emitf("chatbot reply to %s failed", from)
			reply = failureNotice
		} else {
			reply = res.text
			g.feed.Emitf("chatbot replied to %s (%.1fs)", from, g.now().Sub(start).Seconds())
		}
	}

	if reply == "" {
		reply = failureNotice
	}

	for _, chunk := range Chunk(reply, mesh.MaxMessageLen) {
		if err := g.send(chunk, from); err != nil {
			g.log.Warn("chatbot send failed", "dest", from, "err", err)
			return
		}
	}
}

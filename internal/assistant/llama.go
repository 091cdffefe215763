package assistant

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// LlamaBackend shells out to a llama.cpp CLI binary for each
// generation. The model stays on disk; "loading" validates the path so
// a bad configuration is reported at enable time, not first message.
type LlamaBackend struct {
	mu    sync.Mutex
	bin   string
	model string

	// Generation knobs, tuned for short radio replies.
	MaxTokens   int
	Temperature float64
}

// NewLlamaBackend uses bin (llama-cli compatible) for inference.
func NewLlamaBackend(bin string) *LlamaBackend {
	if bin == "" {
		bin = "llama-cli"
	}
	return &LlamaBackend{
		bin:         bin,
		MaxTokens:   100,
		Temperature: 0.7,
	}
}

// Load checks the model file exists and remembers it.
func (b *LlamaBackend) Load(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("model file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("model path %s is a directory", path)
	}

	b.mu.Lock()
	b.model = path
	b.mu.Unlock()
	return nil
}

// Unload forgets the model path.
func (b *LlamaBackend) Unload() {
	b.mu.Lock()
	b.model = ""
	b.mu.Unlock()
}

// Generate runs one inference. The process is killed when ctx expires.
func (b *LlamaBackend) Generate(ctx context.Context, prompt string) (string, error) {
	b.mu.Lock()
	model := b.model
	b.mu.Unlock()
	if model == "" {
		return "", fmt.Errorf("no model loaded")
	}

	args := []string{
		"-m", model,
		"-p", prompt,
		"-n", fmt.Sprint(b.MaxTokens),
		"--temp", fmt.Sprintf("%.2f", b.Temperature),
		"--no-display-prompt",
		"--simple-io",
	}

	cmd := exec.CommandContext(ctx, b.bin, args...)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("llama run: %w (%s)", err, strings.TrimSpace(errBuf.String()))
	}

	return strings.TrimSpace(out.String()), nil
}

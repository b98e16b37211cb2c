package notify

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockedReader never delivers data, like a silent stdin.
type blockedReader struct{}

func (blockedReader) Read(p []byte) (int, error) {
	select {}
}

// Listen must return on context cancellation even when stdin is silent;
// shutdown waits on the listener goroutine.
func TestConsoleListenReturnsOnCancel(t *testing.T) {
	ch := &ConsoleChannel{in: blockedReader{}, out: &bytes.Buffer{}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ch.Listen(ctx, make(chan string))
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return after context cancellation")
	}
}

func TestConsoleListenForwardsLines(t *testing.T) {
	ch := &ConsoleChannel{in: strings.NewReader("status\n\nstop\n"), out: &bytes.Buffer{}}

	out := make(chan string, 4)
	done := make(chan struct{})
	go func() {
		ch.Listen(context.Background(), out)
		close(done)
	}()

	assert.Equal(t, "status", receive(t, out))
	assert.Equal(t, "stop", receive(t, out))

	// EOF on the input ends the listener.
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return after input EOF")
	}
}

func TestConsoleSend(t *testing.T) {
	var buf bytes.Buffer
	ch := &ConsoleChannel{in: strings.NewReader(""), out: &buf}

	require.NoError(t, ch.Send("Bot started."))
	assert.Equal(t, ">> Bot started.\n", buf.String())
}

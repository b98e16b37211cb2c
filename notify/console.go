// notify/console.go
package notify

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"fx_sentinel_go/logs"
)

var _ Channel = (*ConsoleChannel)(nil)

// ConsoleChannel is a stdin/stdout channel used in simulation mode when no
// Telegram credentials are configured.
type ConsoleChannel struct {
	in  io.Reader
	out io.Writer
}

// NewConsoleChannel builds a channel over stdin/stdout.
func NewConsoleChannel() *ConsoleChannel {
	return &ConsoleChannel{in: os.Stdin, out: os.Stdout}
}

func (c *ConsoleChannel) Send(text string) error {
	_, err := fmt.Fprintf(c.out, ">> %s\n", text)
	return err
}

func (c *ConsoleChannel) Listen(ctx context.Context, out chan<- string) {
	logs.Info("[Console] Reading operator commands from stdin.")

	// The scanner read is not interruptible, so it runs in its own
	// goroutine and Listen selects against ctx. On cancel the reader
	// stays parked on stdin until the process exits; it holds nothing
	// worth waiting for.
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			select {
			case out <- line:
			case <-ctx.Done():
				return
			}
		}
	}
}

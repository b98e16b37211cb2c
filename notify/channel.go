// notify/channel.go
package notify

import "context"

// Channel is the Notification Channel contract: it delivers operator
// command text and accepts outbound human-readable messages.
type Channel interface {
	// Send delivers one outbound message. Failures are returned for
	// logging but are never fatal to the caller.
	Send(text string) error

	// Listen blocks, forwarding each inbound operator message to out
	// until ctx is cancelled. It never touches shared state; parsing and
	// handling happen downstream of the queue.
	Listen(ctx context.Context, out chan<- string)
}

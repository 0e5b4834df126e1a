package broadcast

import "context"

// Bus carries sync messages between processes of one client context.
// Subscribers receive every published message, including their own; the
// Syncer filters self-sent messages by sender id.
type Bus interface {
	Publish(ctx context.Context, msg Message) error
	Subscribe(handler func(Message)) (cancel func(), err error)
	Close() error
}

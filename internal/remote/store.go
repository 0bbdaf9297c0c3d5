package remote

import "context"

// Store is the remote document store capability used by the presence
// coordinator and the operator commands.
//
// Reads return ErrNotFound (possibly wrapped) when the document does not
// exist. Any other error means the store could not be reached or the
// document could not be decoded.
type Store interface {
	ReadPresence(ctx context.Context) (PresenceRecord, error)
	WritePresence(ctx context.Context, rec PresenceRecord) error
	ReadHealth(ctx context.Context) (ServerHealth, error)
	WriteHealth(ctx context.Context, h ServerHealth) error
	Ping(ctx context.Context) error
	Close() error
}

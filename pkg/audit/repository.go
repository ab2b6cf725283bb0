package audit

import (
	"context"
)

// Repository is the append-only audit store
type Repository interface {
	Append(ctx context.Context, entry Entry) error
	// Query returns entries newest first with the username joined in.
	Query(ctx context.Context, filter Filter) ([]Entry, error)
}

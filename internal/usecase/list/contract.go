package list

import (
	"context"

	domcol "github.com/avdivo/dev-organizer/internal/domain/collection"
)

// Repository defines the storage contract for users and their lists.
type Repository interface {
	EnsureUser(ctx context.Context, externalID, name string) (domcol.User, error)
	Lists(ctx context.Context, externalID string) ([]domcol.List, error)
	CreateList(ctx context.Context, externalID string, l domcol.List) error
}

// Package recipient computes who is told about a work item's status change.
package recipient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/notifyhub/workitems/internal/domain"
)

// UserLookup is the subset of the user store the resolver needs.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// Resolver maps a work item to the contact addresses of the people
// currently responsible for it. Results are never cached: ownership can
// change between enqueue and delivery.
type Resolver struct {
	users UserLookup
}

func NewResolver(users UserLookup) *Resolver {
	return &Resolver{users: users}
}

// Resolve returns the owner's address followed by the reporter's, without
// duplicates or empty entries. A user that no longer exists counts as
// absent; any other lookup failure is returned to the caller.
func (r *Resolver) Resolve(ctx context.Context, item *domain.WorkItem) ([]string, error) {
	ids := make([]string, 0, 2)
	if item.OwnerID != nil {
		ids = append(ids, *item.OwnerID)
	}
	ids = append(ids, item.ReporterID)

	addrs := make([]string, 0, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			continue
		}
		addr, err := r.address(ctx, id)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	return Dedupe(addrs...), nil
}

func (r *Resolver) address(ctx context.Context, userID string) (string, error) {
	u, err := r.users.GetByID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup user %s: %w", userID, err)
	}
	return u.Email, nil
}

// Dedupe trims each address, drops empty ones and keeps the first
// occurrence of every remaining address.
func Dedupe(addrs ...string) []string {
	out := make([]string, 0, len(addrs))
	seen := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

// Package repository declares persistence contracts for the wallet core.
package repository

import (
	"context"
	"time"

	"github.com/and161185/greenwallet/internal/model"
)

// EventStore provides access to stored signed event groups.
type EventStore interface {
	// StoreEventGroup persists one signed payload blob. Storing a final group
	// replaces any prior final group for the same (type, provider) pair.
	StoreEventGroup(ctx context.Context, typ model.EventType, providerIdentifier string, payload []byte, expiryDate *time.Time, isDraft bool) (*model.EventGroup, error)

	// RemoveEventGroups deletes groups matching the optional filters and
	// returns the number removed. Both filters nil removes everything.
	RemoveEventGroups(ctx context.Context, typ *model.EventType, providerIdentifier *string) (int64, error)

	// RemoveDraftEventGroups purges all draft groups of an abandoned attempt.
	RemoveDraftEventGroups(ctx context.Context) error

	// PromoteDraftEventGroups marks all draft groups final after a successful attempt.
	PromoteDraftEventGroups(ctx context.Context) error

	// ListEventGroups returns all stored groups.
	ListEventGroups(ctx context.Context) ([]model.EventGroup, error)

	// FetchSignedEvents extracts the inner signed-payload field from every
	// stored blob. Groups with unparseable payloads are skipped.
	FetchSignedEvents(ctx context.Context) ([]string, error)

	// ExpireEventGroups removes groups whose expiry date lies before forDate.
	// Groups without an expiry date are never swept.
	ExpireEventGroups(ctx context.Context, forDate time.Time) (int64, error)

	// UpdateEventGroupExpiry refreshes the server-issued expiry hint.
	// A missing identifier is a no-op, not an error.
	UpdateEventGroupExpiry(ctx context.Context, identifier string, expiryDate time.Time) error

	// RemoveEventGroup deletes a single group by its identifier.
	RemoveEventGroup(ctx context.Context, identifier string) error
}

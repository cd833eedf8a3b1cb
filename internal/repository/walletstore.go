package repository

import (
	"context"
	"time"

	"github.com/and161185/greenwallet/internal/crypto"
	"github.com/and161185/greenwallet/internal/model"
	"github.com/and161185/greenwallet/internal/transport"
)

// WalletStore provides access to issued green cards and audit records.
type WalletStore interface {
	// EnsureWallet lazily creates the singleton wallet and returns it.
	EnsureWallet(ctx context.Context) (*model.Wallet, error)

	// StoreDomesticGreenCard persists one domestic green card with its origins.
	// One credential is created per attribute set in the DTO; when every
	// attribute set fails the card is kept present-but-empty and ok is false.
	StoreDomesticGreenCard(ctx context.Context, dto *transport.DomesticGreenCard, provider crypto.Provider) (ok bool, err error)

	// StoreEuGreenCard persists one EU green card. EU credentials are valid
	// from epoch since they originate from an already verified certificate.
	StoreEuGreenCard(ctx context.Context, dto *transport.EuGreenCard, provider crypto.Provider) (ok bool, err error)

	// RemoveAllGreenCards deletes every green card of any type (replace-all).
	RemoveAllGreenCards(ctx context.Context) (int64, error)

	// RemoveExpiredGreenCards deletes cards with no origin still valid at
	// forDate and reports one tuple per deleted card for user messaging.
	RemoveExpiredGreenCards(ctx context.Context, forDate time.Time) ([]model.ExpiredGreenCard, error)

	// ListGreenCards returns all stored green cards.
	ListGreenCards(ctx context.Context) ([]model.GreenCard, error)

	// ListOrigins returns the origins of one green card.
	ListOrigins(ctx context.Context, greenCardID string) ([]model.Origin, error)

	// ListCredentials returns the credentials of one green card.
	ListCredentials(ctx context.Context, greenCardID string) ([]model.Credential, error)

	// GreenCardsWithUnexpiredOrigins returns cards that still have at least one
	// origin valid past now, optionally restricted to one origin type.
	GreenCardsWithUnexpiredOrigins(ctx context.Context, now time.Time, originType *model.OriginType) ([]model.GreenCard, error)

	// StoreRemovedEvent writes one audit record for a removed event.
	StoreRemovedEvent(ctx context.Context, typ model.EventType, eventDate time.Time, reason model.RemovalReason, payload []byte) (*model.RemovedEvent, error)

	// ListRemovedEvents returns all audit records.
	ListRemovedEvents(ctx context.Context) ([]model.RemovedEvent, error)

	// RemoveRemovedEvents purges audit records with the given reason.
	RemoveRemovedEvents(ctx context.Context, reason model.RemovalReason) (int64, error)
}

// SecretStore holds the holder's domestic secret key.
type SecretStore interface {
	// Get returns the stored secret key or errs.ErrNotFound.
	Get(ctx context.Context) ([]byte, error)
	// Set stores or replaces the secret key.
	Set(ctx context.Context, key []byte) error
	// Clear removes the secret key; clearing an absent key is a no-op.
	Clear(ctx context.Context) error
}

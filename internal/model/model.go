// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// EventType classifies a stored event group.
type EventType string

// Event group types as they appear on the wire and in the store.
const (
	EventTypeVaccination           EventType = "vaccination"
	EventTypeRecovery              EventType = "recovery"
	EventTypeTest                  EventType = "test"
	EventTypeVaccinationAssessment EventType = "vaccinationassessment"
	EventTypePaperflow             EventType = "paperflow"
)

// AsFlows returns the telemetry flow list sent with a credentials request.
func (t EventType) AsFlows() []string {
	if t == "" {
		return []string{}
	}
	return []string{string(t)}
}

// GreenCardType distinguishes domestic and EU green cards.
type GreenCardType string

const (
	GreenCardTypeDomestic GreenCardType = "domestic"
	GreenCardTypeEU       GreenCardType = "eu"
)

// OriginType is one provable fact attached to a green card.
type OriginType string

const (
	OriginTypeVaccination           OriginType = "vaccination"
	OriginTypeRecovery              OriginType = "recovery"
	OriginTypeTest                  OriginType = "test"
	OriginTypeVaccinationAssessment OriginType = "vaccinationassessment"
)

// RemovalReason explains why a removed-event audit record was written.
type RemovalReason string

const (
	RemovalReasonBlockedEvent       RemovalReason = "blockedEvent"
	RemovalReasonMismatchedIdentity RemovalReason = "mismatchedIdentity"
)

// WalletLabel is the label of the singleton wallet; there is exactly one per device.
const WalletLabel = "main"

// Wallet owns all event groups and green cards. Created lazily on first access.
type Wallet struct {
	ID        uuid.UUID
	Label     string
	CreatedAt time.Time
}

// EventGroup is one signed provider payload held until it is turned into green cards.
// Draft groups belong to an in-progress issuance attempt and are purged when the
// attempt is abandoned. Among final groups the (type, provider) pair is unique.
type EventGroup struct {
	ID                 uuid.UUID
	WalletID           uuid.UUID
	Type               EventType
	ProviderIdentifier string
	Payload            []byte     // opaque signed blob as received
	ExpiryDate         *time.Time // server-issued expiry hint, nil = never sweeps
	IsDraft            bool
	CreatedAt          time.Time
}

// UniqueIdentifier is the stable identifier the server uses in blobExpireDates.
func (g *EventGroup) UniqueIdentifier() string { return g.ID.String() }

// GreenCard is a stored bundle of credentials plus display origins.
type GreenCard struct {
	ID       uuid.UUID
	WalletID uuid.UUID
	Type     GreenCardType
}

// Origin is one provable fact with its own validity window.
type Origin struct {
	ID             uuid.UUID
	GreenCardID    uuid.UUID
	Type           OriginType
	EventDate      time.Time
	ValidFrom      time.Time
	ExpirationTime time.Time
	DoseNumber     *int
	Hints          []string
}

// Credential is an opaque signed blob produced by the crypto provider.
// Immutable once created; superseded credentials are deleted, never mutated.
type Credential struct {
	ID             uuid.UUID
	GreenCardID    uuid.UUID
	Data           []byte
	ValidFrom      time.Time
	ExpirationTime time.Time
	Version        int
}

// RemovedEvent is the audit record of an event group or credential removed due
// to server-driven blocking or an identity mismatch. Created, never mutated;
// retained until the caller purges it explicitly.
type RemovedEvent struct {
	ID        uuid.UUID
	WalletID  uuid.UUID
	Type      EventType
	EventDate time.Time
	Reason    RemovalReason
	Payload   []byte // enough to reconstruct what was removed
	CreatedAt time.Time
}

// ExpiredGreenCard reports one green card deleted by an expiry sweep,
// carried back to the caller for user messaging.
type ExpiredGreenCard struct {
	GreenCardType GreenCardType
	OriginType    OriginType
}

package model

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// ProtocolVersionV3 is the only event protocol whose identities are comparable.
const ProtocolVersionV3 = "3.0"

// PaperproofIdentifier is the synthetic provider used for coupled paper proofs.
const PaperproofIdentifier = "DCC"

// SignedEventPayload is the stored event-group blob for provider-fetched events:
// a base64 payload plus its detached signature.
type SignedEventPayload struct {
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

// Identity holds the holder fields used for cross-source consistency checks.
type Identity struct {
	FirstName       string `json:"firstName"`
	InfixName       string `json:"infix,omitempty"`
	LastName        string `json:"lastName"`
	BirthDateString string `json:"birthDate"`
}

// BirthDate parses the ISO-8601 birth date, if present and well formed.
func (i Identity) BirthDate() (time.Time, bool) {
	if i.BirthDateString == "" {
		return time.Time{}, false
	}
	d, err := time.Parse("2006-01-02", i.BirthDateString)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// DCCEvent embeds a scanned paper proof and its coupling code so it can flow
// through the ordinary issuance pipeline.
type DCCEvent struct {
	Credential   string `json:"credential"`
	CouplingCode string `json:"couplingCode,omitempty"`
}

// Event is a single provider event inside a result wrapper.
type Event struct {
	Type     string    `json:"type"`
	Unique   string    `json:"unique,omitempty"`
	DCCEvent *DCCEvent `json:"dccEvent,omitempty"`
}

// EventResultWrapper is the decoded inner payload of a signed event group:
// the provider's events plus the identity they were issued for.
type EventResultWrapper struct {
	ProviderIdentifier string    `json:"providerIdentifier"`
	ProtocolVersion    string    `json:"protocolVersion"`
	Identity           *Identity `json:"holder,omitempty"`
	Status             string    `json:"status,omitempty"`
	Events             []Event   `json:"events,omitempty"`
}

// DecodeEventGroupWrapper extracts the result wrapper from a stored signed blob.
// Returns false when the blob or its inner payload does not parse.
func DecodeEventGroupWrapper(blob []byte) (*EventResultWrapper, bool) {
	var signed SignedEventPayload
	if err := json.Unmarshal(blob, &signed); err != nil || signed.Payload == "" {
		return nil, false
	}
	payload, err := base64.StdEncoding.DecodeString(signed.Payload)
	if err != nil {
		return nil, false
	}
	var wrapper EventResultWrapper
	if err := json.Unmarshal(payload, &wrapper); err != nil {
		return nil, false
	}
	return &wrapper, true
}

// DecodeEventGroupDCC extracts the embedded paper proof from a paperflow blob.
// Coupled proofs stored through the wrapper encoding and legacy raw blobs both decode.
func DecodeEventGroupDCC(blob []byte) (*DCCEvent, bool) {
	if wrapper, ok := DecodeEventGroupWrapper(blob); ok {
		for _, event := range wrapper.Events {
			if event.DCCEvent != nil && event.DCCEvent.Credential != "" {
				return event.DCCEvent, true
			}
		}
		return nil, false
	}
	var dcc DCCEvent
	if err := json.Unmarshal(blob, &dcc); err != nil || dcc.Credential == "" {
		return nil, false
	}
	return &dcc, true
}

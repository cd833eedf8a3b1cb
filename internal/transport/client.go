// Package transport defines the issuer API contract and its wire DTOs.
package transport

import (
	"context"
	"fmt"
	"time"
)

// ServerError is a typed network or server failure from the issuer API.
type ServerError struct {
	// StatusCode is the HTTP status, 0 for pure network failures.
	StatusCode int
	// Code is the server-provided error code, 0 when absent.
	Code int
	// Cause is a short description for diagnostics.
	Cause string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (status %d, code %d): %s", e.StatusCode, e.Code, e.Cause)
}

// PrepareIssueEnvelope is the response of POST prepare_issue.
type PrepareIssueEnvelope struct {
	// PrepareIssueMessage is base64; it must decode to a non-empty nonce.
	PrepareIssueMessage string `json:"prepareIssueMessage"`
	SToken              string `json:"stoken"`
}

// CredentialsRequest is the body of POST credentials.
type CredentialsRequest struct {
	Events                 []string `json:"events"`
	IssueCommitmentMessage string   `json:"issueCommitmentMessage"`
	Flows                  []string `json:"flows"`
	SToken                 string   `json:"stoken"`
}

// RemoteOrigin is one origin inside a green card response.
type RemoteOrigin struct {
	Type           string    `json:"type"`
	EventTime      time.Time `json:"eventTime"`
	ExpirationTime time.Time `json:"expirationTime"`
	ValidFrom      time.Time `json:"validFrom"`
	DoseNumber     *int      `json:"doseNumber,omitempty"`
	Hints          []string  `json:"hints,omitempty"`
}

// DomesticGreenCard carries origins plus one attribute set per credential to create.
type DomesticGreenCard struct {
	Origins                  []RemoteOrigin `json:"origins"`
	CreateCredentialMessages []string       `json:"createCredentialMessages"` // base64 attribute sets
}

// EuGreenCard carries origins plus a single already-signed credential.
type EuGreenCard struct {
	Origins    []RemoteOrigin `json:"origins"`
	Credential string         `json:"credential"`
}

// BlobExpiry is a server-driven expiry or blocking hint for one stored event group.
type BlobExpiry struct {
	Identifier     string    `json:"identifier"`
	ExpirationDate time.Time `json:"expirationDate"`
	Reason         string    `json:"reason,omitempty"` // non-empty means blocked
}

// GreenCardResponse is the response of POST credentials.
type GreenCardResponse struct {
	DomesticGreenCard *DomesticGreenCard `json:"domesticGreencard,omitempty"`
	EuGreenCards      []EuGreenCard      `json:"euGreencards,omitempty"`
	BlobExpireDates   []BlobExpiry       `json:"blobExpireDates,omitempty"`
	Hints             []string           `json:"hints,omitempty"`
}

// CouplingStatus is the server's verdict on a paper proof coupling.
type CouplingStatus string

const (
	CouplingStatusAccepted CouplingStatus = "accepted"
	CouplingStatusRejected CouplingStatus = "rejected"
	CouplingStatusBlocked  CouplingStatus = "blocked"
	CouplingStatusPending  CouplingStatus = "pending"
)

// CouplingResponse is the response of the coupling status check.
type CouplingResponse struct {
	Status CouplingStatus `json:"status"`
}

// Client is the network boundary consumed by the issuance and coupling services.
// Implementations must return *ServerError for network and server failures.
type Client interface {
	// PrepareIssue starts an issuance session on the server.
	PrepareIssue(ctx context.Context) (*PrepareIssueEnvelope, error)

	// FetchCredentials exchanges signed events and a commitment for green cards.
	FetchCredentials(ctx context.Context, req *CredentialsRequest) (*GreenCardResponse, error)

	// CheckCouplingStatus verifies a scanned paper proof against its coupling code.
	CheckCouplingStatus(ctx context.Context, dcc, couplingCode string) (*CouplingResponse, error)
}

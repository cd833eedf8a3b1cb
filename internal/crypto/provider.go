// Package crypto declares the contract of the anonymous-credential provider.
// The blind-signature primitives themselves are an external library; the core
// only ever calls through this fixed interface.
package crypto

import (
	"time"

	"github.com/and161185/greenwallet/internal/model"
)

// Provider generates holder keys and commitments and turns issuer responses
// into usable credentials. Calls are synchronous and CPU bound.
type Provider interface {
	// GenerateSecretKey creates a fresh domestic holder secret key.
	GenerateSecretKey() ([]byte, error)

	// GenerateCommitmentMessage produces a blinded commitment keyed by the
	// decoded prepare-issue message and the holder secret key.
	GenerateCommitmentMessage(prepareIssueMessage, secretKey []byte) (string, error)

	// CreateCredential turns one issuer response attribute set into a credential.
	CreateCredential(attributeSet []byte) ([]byte, error)

	// ReadEuCredentials decodes the attributes of an already issued EU credential.
	ReadEuCredentials(credential []byte) (*EuCredentialAttributes, error)
}

// DCCEntry is one dated entry inside a digital covid certificate.
type DCCEntry struct {
	Date string `json:"dt,omitempty"`
}

// DCC is the payload section of an EU credential.
type DCC struct {
	Vaccinations []DCCEntry `json:"v,omitempty"`
	Recoveries   []DCCEntry `json:"r,omitempty"`
	Tests        []DCCEntry `json:"t,omitempty"`
}

// EuCredentialAttributes are the decoded attributes of an EU credential.
type EuCredentialAttributes struct {
	CredentialVersion int            `json:"credentialVersion"`
	Issuer            string         `json:"issuer"`
	IssuedAt          int64          `json:"issuedAt"`
	ExpirationTime    int64          `json:"expirationTime"`
	Identity          model.Identity `json:"identity"`
	Certificate       DCC            `json:"dcc"`
}

// EventType derives the event type from whichever certificate section is filled.
func (a *EuCredentialAttributes) EventType() (model.EventType, bool) {
	switch {
	case len(a.Certificate.Vaccinations) > 0:
		return model.EventTypeVaccination, true
	case len(a.Certificate.Recoveries) > 0:
		return model.EventTypeRecovery, true
	case len(a.Certificate.Tests) > 0:
		return model.EventTypeTest, true
	}
	return "", false
}

// EventDate returns the date of the certificate's event, if present.
func (a *EuCredentialAttributes) EventDate() (time.Time, bool) {
	var raw string
	switch {
	case len(a.Certificate.Vaccinations) > 0:
		raw = a.Certificate.Vaccinations[0].Date
	case len(a.Certificate.Recoveries) > 0:
		raw = a.Certificate.Recoveries[0].Date
	case len(a.Certificate.Tests) > 0:
		raw = a.Certificate.Tests[0].Date
	}
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if d, err := time.Parse(layout, raw); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

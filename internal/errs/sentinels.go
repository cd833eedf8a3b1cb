// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoWallet indicates the singleton wallet has not been created yet.
	ErrNoWallet = errors.New("no wallet")
)

// Issuance phase sentinels. Each one is terminal to the current attempt;
// retry policy belongs to the caller.
var (
	// ErrSecretKey indicates the crypto provider could not generate a holder secret key.
	ErrSecretKey = errors.New("failed to generate domestic secret key")

	// ErrParsePrepareIssue indicates the prepare-issue message did not decode to a usable nonce.
	ErrParsePrepareIssue = errors.New("failed to parse prepare issue message")

	// ErrNoSignedEvents indicates there were no stored signed events to sign.
	ErrNoSignedEvents = errors.New("no signed events")

	// ErrCommitment indicates the crypto provider produced an empty commitment message.
	ErrCommitment = errors.New("failed to generate commitment message")

	// ErrDidNotEvaluate indicates the caller-supplied evaluator rejected the response.
	ErrDidNotEvaluate = errors.New("response did not evaluate")

	// ErrSaveGreenCards indicates one or more green cards failed to persist.
	ErrSaveGreenCards = errors.New("failed to save green cards")

	// ErrIssuanceInFlight indicates another issuance attempt is already running.
	ErrIssuanceInFlight = errors.New("issuance already in flight")
)

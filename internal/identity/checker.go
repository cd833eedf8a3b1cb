package identity

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/and161185/greenwallet/internal/crypto"
	"github.com/and161185/greenwallet/internal/model"
)

// Checker detects a provider returning events for a different person by
// comparing identity fields of stored event groups against freshly fetched
// remote events. The check looks for evidence of mismatch, not proof of
// match: ambiguity always resolves towards "match".
type Checker struct {
	crypto crypto.Provider
	log    *zap.Logger
}

// NewChecker constructs an identity checker.
func NewChecker(provider crypto.Provider, log *zap.Logger) *Checker {
	return &Checker{crypto: provider, log: log}
}

// tuple is the comparable identity extract. Nil fields never block a match.
type tuple struct {
	firstInitial *string
	lastInitial  *string
	birthDay     *string
	birthMonth   *string
}

// Compare reports whether the remote events could belong to the same person
// as the stored event groups. Empty comparison sets match vacuously.
func (c *Checker) Compare(eventGroups []model.EventGroup, remoteEvents []model.EventResultWrapper) bool {
	existing := c.tuplesFromEventGroups(eventGroups)
	remote := tuplesFromWrappers(remoteEvents)

	for _, e := range existing {
		for _, r := range remote {
			if !tuplesMatch(e, r) {
				c.log.Debug("identity mismatch between stored and remote events")
				return false
			}
		}
	}
	return true
}

// tuplesFromEventGroups extracts comparable identities from stored blobs.
// Pre-v3 encodings and unparseable blobs are skipped, not treated as mismatches.
func (c *Checker) tuplesFromEventGroups(eventGroups []model.EventGroup) []tuple {
	var out []tuple
	for _, group := range eventGroups {
		if wrapper, ok := model.DecodeEventGroupWrapper(group.Payload); ok {
			if t, ok := tupleFromWrapper(wrapper); ok {
				out = append(out, t)
			}
			continue
		}
		if dcc, ok := model.DecodeEventGroupDCC(group.Payload); ok {
			attributes, err := c.crypto.ReadEuCredentials([]byte(dcc.Credential))
			if err != nil {
				continue
			}
			out = append(out, tupleOf(attributes.Identity))
		}
	}
	return out
}

func tuplesFromWrappers(wrappers []model.EventResultWrapper) []tuple {
	var out []tuple
	for i := range wrappers {
		if t, ok := tupleFromWrapper(&wrappers[i]); ok {
			out = append(out, t)
		}
	}
	return out
}

func tupleFromWrapper(wrapper *model.EventResultWrapper) (tuple, bool) {
	if wrapper.ProtocolVersion != model.ProtocolVersionV3 || wrapper.Identity == nil {
		return tuple{}, false
	}
	return tupleOf(*wrapper.Identity), true
}

func tupleOf(id model.Identity) tuple {
	var t tuple
	if initial, ok := ToInitial(id.FirstName); ok {
		t.firstInitial = &initial
	}
	if initial, ok := ToInitial(id.LastName); ok {
		t.lastInitial = &initial
	}
	if birthDate, ok := id.BirthDate(); ok {
		day := strconv.Itoa(birthDate.Day())
		month := strconv.Itoa(int(birthDate.Month()))
		t.birthDay = &day
		t.birthMonth = &month
	}
	return t
}

// tuplesMatch requires birth day and month to agree and at least one of the
// initials to agree; fields missing on either side compare as equal.
func tuplesMatch(a, b tuple) bool {
	return fieldsEqual(a.birthDay, b.birthDay) &&
		fieldsEqual(a.birthMonth, b.birthMonth) &&
		(fieldsEqual(a.firstInitial, b.firstInitial) || fieldsEqual(a.lastInitial, b.lastInitial))
}

func fieldsEqual(l, r *string) bool {
	if l == nil || r == nil {
		return true
	}
	return *l == *r
}

package account

import (
	"errors"

	"github.com/orderflow/orderflow/internal/domain/contact"
)

// Type represents an account type.
type Type string

const (
	TypeIndividual   Type = "individual"
	TypeOrganization Type = "organization"
)

// ValidateType rejects unknown account types.
func ValidateType(t Type) error {
	switch t {
	case TypeIndividual, TypeOrganization:
		return nil
	default:
		return errors.New("invalid account type")
	}
}

// Account is a backend account record as returned by the status check.
type Account struct {
	ID               string `json:"id"`
	FirstName        string `json:"firstName"`
	LastName         string `json:"lastName"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	OrganizationName string `json:"organizationName"`
	AccountType      string `json:"accountType"`
	// Fuzzy marks a record the backend itself flagged as a possible
	// duplicate; such records are never auto-adopted.
	Fuzzy bool `json:"fuzzy,omitempty"`
}

// Profile returns the record's fields as contact info for merging, including
// its verification identifiers.
func (a Account) Profile() contact.Info {
	return contact.Info{
		FirstName:        a.FirstName,
		LastName:         a.LastName,
		Email:            a.Email,
		Phone:            a.Phone,
		OrganizationName: a.OrganizationName,
		AccountType:      a.AccountType,
	}
}

// Classification of a resolution pass.
type Classification string

const (
	NoMatch      Classification = "NO_MATCH"
	ExactMatch   Classification = "EXACT_MATCH"
	PartialMatch Classification = "PARTIAL_MATCH"
)

// Resolution is the outcome of classifying candidate records against
// submitted contact info.
type Resolution struct {
	Classification Classification
	// Match is set only for ExactMatch.
	Match *Account
	// Candidates is set only for PartialMatch.
	Candidates []Account
}

// Classify maps candidate records to exactly one classification.
//
// A record matching both normalized email and normalized phone is a full
// match; exactly one full match with no backend fuzzy flag is ExactMatch.
// Any record matching exactly one identifier, any fuzzy-flagged record, or
// more than one full match yields PartialMatch with all such records as
// candidates. No overlapping records at all is NoMatch.
func Classify(submitted contact.Info, records []Account) Resolution {
	email := contact.NormalizeEmail(submitted.Email)
	phone := contact.NormalizePhone(submitted.Phone)

	var full []Account
	var partial []Account
	for _, r := range records {
		emailHit := email != "" && contact.NormalizeEmail(r.Email) == email
		phoneHit := phone != "" && contact.NormalizePhone(r.Phone) == phone
		switch {
		case r.Fuzzy && (emailHit || phoneHit):
			partial = append(partial, r)
		case emailHit && phoneHit:
			full = append(full, r)
		case emailHit || phoneHit:
			partial = append(partial, r)
		}
	}

	if len(full) == 1 && len(partial) == 0 {
		m := full[0]
		return Resolution{Classification: ExactMatch, Match: &m}
	}
	if len(full)+len(partial) > 0 {
		candidates := make([]Account, 0, len(full)+len(partial))
		candidates = append(candidates, full...)
		candidates = append(candidates, partial...)
		return Resolution{Classification: PartialMatch, Candidates: candidates}
	}
	return Resolution{Classification: NoMatch}
}

// FindCandidate returns the candidate with the given id, if present.
func FindCandidate(candidates []Account, id string) (Account, bool) {
	for _, c := range candidates {
		if c.ID == id {
			return c, true
		}
	}
	return Account{}, false
}

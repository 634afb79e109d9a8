package contact

import (
	"errors"
	"regexp"
	"strings"
)

// Info is the contact block collected during checkout. Cleared fields are
// empty strings, never absent.
type Info struct {
	FirstName        string `json:"firstName"`
	LastName         string `json:"lastName"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	OrganizationName string `json:"organizationName"`
	AccountType      string `json:"accountType"`
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone strips everything but digits and drops a leading NANP
// country code from 11-digit numbers.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	return digits
}

// Normalized returns a copy with identifying fields in canonical form.
func (i Info) Normalized() Info {
	i.Email = NormalizeEmail(i.Email)
	i.Phone = NormalizePhone(i.Phone)
	i.FirstName = strings.TrimSpace(i.FirstName)
	i.LastName = strings.TrimSpace(i.LastName)
	i.OrganizationName = strings.TrimSpace(i.OrganizationName)
	return i
}

// ValidateForSubmit checks the fields needed before account resolution.
func (i Info) ValidateForSubmit() error {
	if strings.TrimSpace(i.FirstName) == "" {
		return errors.New("first name is required")
	}
	if strings.TrimSpace(i.LastName) == "" {
		return errors.New("last name is required")
	}
	if !emailPattern.MatchString(NormalizeEmail(i.Email)) {
		return errors.New("a valid email is required")
	}
	if len(NormalizePhone(i.Phone)) != 10 {
		return errors.New("a valid 10-digit phone number is required")
	}
	return nil
}

// ValidateForLogin checks the fields needed to identify an existing account:
// at least one usable identifier.
func (i Info) ValidateForLogin() error {
	emailOK := emailPattern.MatchString(NormalizeEmail(i.Email))
	phoneOK := len(NormalizePhone(i.Phone)) == 10
	if !emailOK && !phoneOK {
		return errors.New("a valid email or phone number is required")
	}
	return nil
}

// SetField assigns one field by name. Unknown fields are an error so event
// payloads cannot silently invent fields.
func (i *Info) SetField(field, value string) error {
	switch field {
	case "firstName":
		i.FirstName = value
	case "lastName":
		i.LastName = value
	case "email":
		i.Email = value
	case "phone":
		i.Phone = value
	case "organizationName":
		i.OrganizationName = value
	case "accountType":
		i.AccountType = value
	default:
		return errors.New("unknown contact field: " + field)
	}
	return nil
}

// MergeServer overlays server-held profile fields. Once an account exists the
// backend is authoritative for names, organization and account type. A locally
// typed email/phone wins since it is what the user resolved by, but the
// account's identifiers fill any the user never typed, so both verification
// channels stay reachable after adoption.
func (i *Info) MergeServer(server Info) {
	if i.Email == "" {
		i.Email = NormalizeEmail(server.Email)
	}
	if i.Phone == "" {
		i.Phone = NormalizePhone(server.Phone)
	}
	if server.FirstName != "" {
		i.FirstName = server.FirstName
	}
	if server.LastName != "" {
		i.LastName = server.LastName
	}
	if server.OrganizationName != "" {
		i.OrganizationName = server.OrganizationName
	}
	if server.AccountType != "" {
		i.AccountType = server.AccountType
	}
}

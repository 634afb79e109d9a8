package engine

import (
	"errors"
	"strings"

	"github.com/Knetic/govaluate"

	"github.com/orderflow/orderflow/internal/domain/session"
	"github.com/orderflow/orderflow/internal/gateway"
)

// EvaluateGuard evaluates a guard expression against transition parameters.
// Empty guard returns true. Supports "true"/"false" literals.
func EvaluateGuard(guard string, params map[string]interface{}) (bool, error) {
	g := strings.TrimSpace(guard)
	if g == "" {
		return true, nil
	}
	switch strings.ToLower(g) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}

	expr, err := govaluate.NewEvaluableExpression(g)
	if err != nil {
		return false, err
	}
	result, err := expr.Evaluate(params)
	if err != nil {
		return false, err
	}
	switch v := result.(type) {
	case bool:
		return v, nil
	default:
		return false, errors.New("guard did not evaluate to boolean")
	}
}

// guardParams builds the parameter set guards see: a flat view of the
// session context plus policy knobs and the triggering event's payload.
func guardParams(c *session.Context, policy Policy, ev Event) map[string]interface{} {
	orgDataMissing := c.Contact.AccountType == "" ||
		(c.Contact.AccountType == "organization" && c.Contact.OrganizationName == "" && c.OrganizationID == "")

	params := map[string]interface{}{
		"flow":            c.Flow,
		"cartCount":       c.Cart.Count(),
		"cartSubtotal":    c.Cart.SubtotalCents(),
		"email":           c.Contact.Email,
		"phone":           c.Contact.Phone,
		"accountId":       c.AccountID,
		"isAuthenticated": c.IsAuthenticated,
		"isVerified":      c.IsVerified,
		"accountType":     c.Contact.AccountType,
		"organizationId":  c.OrganizationID,
		"orgDataMissing":  orgDataMissing,
		"candidateCount":  len(c.PotentialAccounts),
		"selectedAccount": c.SelectedAccountID,
		"selectedNew":     c.SelectedNewPerson,
		"resolution":      string(c.LastResolution),
		"otpAttempts":     c.OTPAttempts,
		"otpMaxAttempts":  policy.OTPMaxAttempts,
		"fulfillmentType": string(c.Fulfillment.Type),
		"locationId":      c.Fulfillment.LocationID,
		"hasAddress":      !c.Fulfillment.Address.IsEmpty(),
		"selectedDate":    c.Fulfillment.SelectedDate,
		"selectedTime":    c.Fulfillment.SelectedTime,
		"resumeLeaf":      c.ResumeState,
		"trustNew":        policy.TrustNewAccounts,

		"eventAccountId": ev.AccountID,
		"eventNewPerson": ev.NewPerson,
		"eventChannel":   ev.Channel,
	}
	if ev.Err != nil {
		params["errInvalidCode"] = gateway.IsInvalidCode(ev.Err)
		params["errDataIntegrity"] = gateway.IsDataIntegrity(ev.Err)
	} else {
		params["errInvalidCode"] = false
		params["errDataIntegrity"] = false
	}
	return params
}

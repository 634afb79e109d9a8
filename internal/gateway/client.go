package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/orderflow/orderflow/internal/domain/account"
	"github.com/orderflow/orderflow/internal/domain/contact"
	"github.com/orderflow/orderflow/internal/domain/session"
)

// Client implements Gateway over JSON/HTTP. Endpoint URLs are derived from
// the injected base URL; the transport itself is injected configuration.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

// NewClient creates a gateway client. A nil httpClient uses the default.
func NewClient(baseURL string, httpClient *http.Client, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger.With().Str("service", "gateway").Logger(),
	}
}

// FetchCatalog loads the menu and locations.
func (c *Client) FetchCatalog(ctx context.Context) (*Catalog, error) {
	var out Catalog
	if err := c.do(ctx, http.MethodGet, "/v1/catalog", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type accountStatusRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type accountStatusResponse struct {
	Accounts []account.Account `json:"accounts"`
}

// CheckAccountStatus returns overlapping backend records for the submitted
// identifiers.
func (c *Client) CheckAccountStatus(ctx context.Context, info contact.Info) ([]account.Account, error) {
	norm := info.Normalized()
	req := accountStatusRequest{Email: norm.Email, Phone: norm.Phone}
	var out accountStatusResponse
	if err := c.do(ctx, http.MethodPost, "/v1/accounts/status", req, &out); err != nil {
		return nil, err
	}
	return out.Accounts, nil
}

type sendOTPRequest struct {
	Channel    string `json:"channel"`
	Identifier string `json:"identifier"`
}

type sendOTPResponse struct {
	SID string `json:"sid"`
}

// SendOTP opens a verification session.
func (c *Client) SendOTP(ctx context.Context, channel session.OTPChannel, identifier string) (session.VerificationSID, error) {
	if err := session.ValidateChannel(channel); err != nil {
		return "", newFailure(KindRejected, "sendOtp", err.Error())
	}
	req := sendOTPRequest{Channel: string(channel), Identifier: identifier}
	var out sendOTPResponse
	if err := c.do(ctx, http.MethodPost, "/v1/otp/send", req, &out); err != nil {
		return "", err
	}
	if out.SID == "" {
		return "", newFailure(KindDataIntegrity, "sendOtp", "backend returned no verification sid")
	}
	return session.VerificationSID(out.SID), nil
}

type verifyOTPRequest struct {
	SID  string `json:"sid"`
	Code string `json:"code"`
}

// VerifyOTP proves channel possession. A 4xx response maps to an
// invalid-code failure; everything else is transport.
func (c *Client) VerifyOTP(ctx context.Context, sid session.VerificationSID, code string) (*Claim, error) {
	req := verifyOTPRequest{SID: string(sid), Code: code}
	var out Claim
	if err := c.do(ctx, http.MethodPost, "/v1/otp/verify", req, &out); err != nil {
		var f *Failure
		if errors.As(err, &f) && f.Kind == KindRejected {
			return nil, newFailure(KindInvalidCode, "verifyOtp", f.Message)
		}
		return nil, err
	}
	return &out, nil
}

// CreateAccount registers a fresh account.
func (c *Client) CreateAccount(ctx context.Context, info contact.Info) (*account.Account, error) {
	var out account.Account
	if err := c.do(ctx, http.MethodPost, "/v1/accounts", info.Normalized(), &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, newFailure(KindDataIntegrity, "createAccount", "account created without an id")
	}
	return &out, nil
}

// CreateOrganization registers an organization for the contact.
func (c *Client) CreateOrganization(ctx context.Context, info contact.Info) (*OrgAccount, error) {
	var out OrgAccount
	if err := c.do(ctx, http.MethodPost, "/v1/organizations", info.Normalized(), &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, newFailure(KindDataIntegrity, "createOrganization", "organization created without an id")
	}
	return &out, nil
}

type updateAccountTypeRequest struct {
	OrgID       string `json:"orgId"`
	AccountType string `json:"accountType"`
}

// UpdateAccountType attaches an organization and account type to an account.
func (c *Client) UpdateAccountType(ctx context.Context, accountID, orgID string, accountType account.Type) error {
	req := updateAccountTypeRequest{OrgID: orgID, AccountType: string(accountType)}
	path := fmt.Sprintf("/v1/accounts/%s/type", accountID)
	return c.do(ctx, http.MethodPut, path, req, nil)
}

// SaveCartSnapshot writes the server-side cart record.
func (c *Client) SaveCartSnapshot(ctx context.Context, payload CartPayload) error {
	return c.do(ctx, http.MethodPost, "/v1/carts", payload, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	op := method + " " + path
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return newFailure(KindTransport, op, err.Error())
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return newFailure(KindTransport, op, err.Error())
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("op", op).Msg("transport failure")
		return newFailure(KindTransport, op, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return newFailure(KindTransport, op, fmt.Sprintf("backend returned %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		msg := readErrorMessage(resp.Body)
		if msg == "" {
			msg = fmt.Sprintf("backend rejected request (%d)", resp.StatusCode)
		}
		return newFailure(KindRejected, op, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return newFailure(KindDataIntegrity, op, "malformed response: "+err.Error())
	}
	return nil
}

func readErrorMessage(r io.Reader) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}


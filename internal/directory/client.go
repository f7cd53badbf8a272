package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"cdcam/internal/platform/metrics"
	"cdcam/pkg/requestcontext"
)

// Directory API methods.
const (
	methodSearch           = "accounts.search"
	methodGetJWTPublicKey  = "accounts.getJWTPublicKey"
	methodInitRegistration = "accounts.initRegistration"
	methodSetAccountInfo   = "accounts.setAccountInfo"
)

// The directory query language is SQL-like.
const (
	searchQuery    = `SELECT * FROM accounts WHERE profile.username CONTAINS "%s" OR profile.email CONTAINS "%s"`
	searchUIDQuery = `SELECT * FROM accounts WHERE UID = "%s"`
)

// HTTPDoer abstracts the HTTP client for testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Credentials authenticates requests to the directory API.
type Credentials struct {
	APIKey  string
	UserKey string
	Secret  string
}

// Client talks to one or more tenants of the upstream identity directory.
type Client struct {
	http    HTTPDoer
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *metrics.Metrics
	creds   Credentials
}

// NewClient builds a directory client. The HTTPDoer owns timeouts.
func NewClient(httpClient HTTPDoer, logger *slog.Logger, tracer trace.Tracer, m *metrics.Metrics, creds Credentials) *Client {
	return &Client{
		http:    httpClient,
		logger:  logger,
		tracer:  tracer,
		metrics: m,
		creds:   creds,
	}
}

// apiResponse is the envelope every directory API call returns. A non-zero
// errorCode means the call failed, even with HTTP 200.
type apiResponse struct {
	ErrorCode    int             `json:"errorCode"`
	ErrorMessage string          `json:"errorMessage"`
	ErrorDetails string          `json:"errorDetails"`
	Results      []Account `json:"results"`
	RegToken     string    `json:"regToken"`
	UID          string    `json:"UID"`
	KeyID        string    `json:"kid"`
	Modulus      string    `json:"n"`
	Exponent     string    `json:"e"`
}

// SearchByEmail returns all accounts in the given tenant matching the email,
// by either profile email or username. A miss is an empty slice, not an error.
func (c *Client) SearchByEmail(ctx context.Context, tenant Tenant, email string) ([]Account, error) {
	ctx, span := c.tracer.Start(ctx, "directory.SearchByEmail",
		trace.WithAttributes(attribute.String("directory.tenant", tenant.Name)))
	defer span.End()

	params := url.Values{}
	params.Set("query", fmt.Sprintf(searchQuery, email, email))

	resp, err := c.call(ctx, tenant, methodSearch, params)
	if err != nil {
		c.metrics.DirectorySearchTotal.WithLabelValues(tenant.Name, "error").Inc()
		return nil, err
	}

	result := "miss"
	if len(resp.Results) > 0 {
		result = "hit"
	}
	c.metrics.DirectorySearchTotal.WithLabelValues(tenant.Name, result).Inc()

	accounts := resp.Results
	for i := range accounts {
		accounts[i].Tenant = tenant.Name
	}
	return accounts, nil
}

// SearchByUID fetches the account with the given UID, if any.
func (c *Client) SearchByUID(ctx context.Context, tenant Tenant, uid string) (Account, bool, error) {
	ctx, span := c.tracer.Start(ctx, "directory.SearchByUID",
		trace.WithAttributes(attribute.String("directory.tenant", tenant.Name)))
	defer span.End()

	params := url.Values{}
	params.Set("query", fmt.Sprintf(searchUIDQuery, uid))

	resp, err := c.call(ctx, tenant, methodSearch, params)
	if err != nil {
		return Account{}, false, err
	}
	if len(resp.Results) == 0 {
		return Account{}, false, nil
	}
	account := resp.Results[0]
	account.Tenant = tenant.Name
	return account, true, nil
}

// GetJWTPublicKey fetches the tenant's current RSA verification key.
func (c *Client) GetJWTPublicKey(ctx context.Context, tenant Tenant) (PublicKey, error) {
	ctx, span := c.tracer.Start(ctx, "directory.GetJWTPublicKey",
		trace.WithAttributes(attribute.String("directory.tenant", tenant.Name)))
	defer span.End()

	params := url.Values{}
	params.Set("V2", "true")

	resp, err := c.call(ctx, tenant, methodGetJWTPublicKey, params)
	if err != nil {
		return PublicKey{}, err
	}

	key := PublicKey{KeyID: resp.KeyID, Modulus: resp.Modulus, Exponent: resp.Exponent}
	if key.Modulus == "" || key.Exponent == "" {
		return PublicKey{}, upstreamError(fmt.Errorf("getJWTPublicKey returned incomplete key material"))
	}
	return key, nil
}

// RegisterLite creates a lite account in the given tenant. Lite registration
// is a two-step flow: obtain a registration token, then write the profile.
func (c *Client) RegisterLite(ctx context.Context, tenant Tenant, account LiteAccount) (string, error) {
	ctx, span := c.tracer.Start(ctx, "directory.RegisterLite",
		trace.WithAttributes(attribute.String("directory.tenant", tenant.Name)))
	defer span.End()

	initParams := url.Values{}
	initParams.Set("isLite", "true")

	initResp, err := c.call(ctx, tenant, methodInitRegistration, initParams)
	if err != nil {
		return "", err
	}
	if initResp.RegToken == "" {
		return "", upstreamError(fmt.Errorf("initRegistration returned no regToken"))
	}

	profile := Profile{
		Email:     account.Email,
		FirstName: account.FirstName,
		LastName:  account.LastName,
	}
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return "", fmt.Errorf("marshal profile: %w", err)
	}

	setParams := url.Values{}
	setParams.Set("regToken", initResp.RegToken)
	setParams.Set("profile", string(profileJSON))
	if data := liteData(account); data != "" {
		setParams.Set("data", data)
	}

	setResp, err := c.call(ctx, tenant, methodSetAccountInfo, setParams)
	if err != nil {
		return "", err
	}
	return setResp.UID, nil
}

// SetAccountInfo writes arbitrary account fields on an existing account.
func (c *Client) SetAccountInfo(ctx context.Context, tenant Tenant, uid string, params url.Values) error {
	ctx, span := c.tracer.Start(ctx, "directory.SetAccountInfo",
		trace.WithAttributes(attribute.String("directory.tenant", tenant.Name)))
	defer span.End()

	merged := url.Values{}
	for k, vs := range params {
		merged[k] = vs
	}
	merged.Set("UID", uid)

	_, err := c.call(ctx, tenant, methodSetAccountInfo, merged)
	return err
}

// liteData serializes the invitation context stored alongside a lite account.
func liteData(account LiteAccount) string {
	data := map[string]any{}
	if account.InviterEmail != "" {
		data["inviterEmail"] = account.InviterEmail
	}
	if account.ClientID != "" {
		data["clientId"] = account.ClientID
	}
	if account.Location != "" {
		data["location"] = account.Location
	}
	if len(data) == 0 {
		return ""
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	return string(raw)
}

func (c *Client) call(ctx context.Context, tenant Tenant, method string, params url.Values) (*apiResponse, error) {
	form := url.Values{}
	for k, vs := range params {
		form[k] = vs
	}
	form.Set("apiKey", c.creds.APIKey)
	form.Set("userKey", c.creds.UserKey)
	form.Set("secret", c.creds.Secret)

	endpoint := fmt.Sprintf("https://accounts.%s/%s", tenant.APIDomain, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "directory call failed",
			"method", method,
			"tenant", tenant.Name,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, upstreamError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, upstreamError(fmt.Errorf("read %s response: %w", method, err))
	}

	var api apiResponse
	if err := json.Unmarshal(body, &api); err != nil {
		return nil, upstreamError(fmt.Errorf("decode %s response: %w", method, err))
	}

	if api.ErrorCode != 0 {
		apiErr := &APIError{ErrorCode: api.ErrorCode, Message: api.ErrorMessage, Details: api.ErrorDetails}
		c.logger.ErrorContext(ctx, "directory returned error",
			"method", method,
			"tenant", tenant.Name,
			"error_code", api.ErrorCode,
			"error_message", api.ErrorMessage,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, upstreamError(apiErr)
	}

	return &api, nil
}

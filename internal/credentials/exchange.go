package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const jwtBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"

// refreshSkew is how long before expiry a token stops being reused.
const refreshSkew = time.Minute

// Token is a bearer access token with its expiry.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Valid reports whether the token can still be used at now.
func (t *Token) Valid(now time.Time) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	if t.ExpiresAt.IsZero() {
		return true
	}
	return now.Add(refreshSkew).Before(t.ExpiresAt)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// Exchanger trades signed assertions for access tokens.
type Exchanger struct {
	account    *ServiceAccount
	scope      string
	httpClient *http.Client
	now        func() time.Time
}

func NewExchanger(account *ServiceAccount, scope string, httpClient *http.Client) *Exchanger {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if scope == "" {
		scope = SheetsReadOnlyScope
	}
	return &Exchanger{
		account:    account,
		scope:      scope,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// Exchange signs a fresh assertion and posts it to the token endpoint.
func (e *Exchanger) Exchange(ctx context.Context) (*Token, error) {
	now := e.now()
	assertion, err := e.account.SignAssertion(now, e.scope, e.account.TokenURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuth, err)
	}

	form := url.Values{}
	form.Set("grant_type", jwtBearerGrant)
	form.Set("assertion", assertion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.account.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrAuth, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuth, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrAuth, err)
	}
	var tr tokenResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &tr); err != nil && resp.StatusCode < 300 {
			return nil, fmt.Errorf("%w: decode response: %v", ErrAuth, err)
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := tr.Description
		if msg == "" {
			msg = tr.Error
		}
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("%w: token endpoint returned %d: %s", ErrAuth, resp.StatusCode, msg)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("%w: response has no access_token", ErrAuth)
	}

	token := &Token{AccessToken: tr.AccessToken}
	if tr.ExpiresIn > 0 {
		token.ExpiresAt = now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	} else {
		token.ExpiresAt = now.Add(assertionLifetime)
	}
	return token, nil
}

package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/afero"
)

const (
	DefaultTokenURI     = "https://oauth2.googleapis.com/token"
	SheetsReadOnlyScope = "https://www.googleapis.com/auth/spreadsheets.readonly"

	assertionLifetime = time.Hour
)

// ServiceAccount is the subset of a Google service-account key file we use.
type ServiceAccount struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// LoadServiceAccount reads a service-account JSON key file.
func LoadServiceAccount(fs afero.Fs, path string) (*ServiceAccount, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read service account %s: %w", path, err)
	}
	return ParseServiceAccount(raw)
}

// ParseServiceAccount decodes a service-account key and validates the fields
// needed for the JWT bearer flow.
func ParseServiceAccount(raw []byte) (*ServiceAccount, error) {
	var sa ServiceAccount
	if err := json.Unmarshal(raw, &sa); err != nil {
		return nil, fmt.Errorf("decode service account: %w", err)
	}
	if strings.TrimSpace(sa.ClientEmail) == "" {
		return nil, errors.New("service account client_email is empty")
	}
	if strings.TrimSpace(sa.PrivateKey) == "" {
		return nil, errors.New("service account private_key is empty")
	}
	if sa.TokenURI == "" {
		sa.TokenURI = DefaultTokenURI
	}
	return &sa, nil
}

// normalizedKey turns escaped "\n" sequences into real newlines so keys pasted
// through environment variables still parse as PEM.
func (sa *ServiceAccount) normalizedKey() []byte {
	return []byte(strings.ReplaceAll(sa.PrivateKey, `\n`, "\n"))
}

// SignAssertion builds an RS256 JWT asserting the account identity for scope,
// valid for one hour from now.
func (sa *ServiceAccount) SignAssertion(now time.Time, scope, audience string) (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(sa.normalizedKey())
	if err != nil {
		return "", fmt.Errorf("parse private key: %w", err)
	}
	claims := jwt.MapClaims{
		"iss":   sa.ClientEmail,
		"scope": scope,
		"aud":   audience,
		"iat":   now.Unix(),
		"exp":   now.Add(assertionLifetime).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}
	return signed, nil
}

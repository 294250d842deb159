package gsheets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	scopeSpreadsheets = "https://www.googleapis.com/auth/spreadsheets"
	defaultTokenURI   = "https://oauth2.googleapis.com/token"
	jwtBearerGrant    = "urn:ietf:params:oauth:grant-type:jwt-bearer"
)

// ServiceAccount is the subset of a google service account key file used
// for the jwt bearer grant.
type ServiceAccount struct {
	ClientEmail  string `json:"client_email"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	TokenURI     string `json:"token_uri"`
}

func ReadServiceAccount(path string) (ServiceAccount, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ServiceAccount{}, err
	}
	var account ServiceAccount
	err = json.Unmarshal(data, &account)
	if err != nil {
		return ServiceAccount{}, fmt.Errorf("parse service account %s: %w", path, err)
	}
	if account.ClientEmail == "" || account.PrivateKey == "" {
		return ServiceAccount{}, fmt.Errorf("service account %s is missing client_email or private_key", path)
	}
	if account.TokenURI == "" {
		account.TokenURI = defaultTokenURI
	}
	return account, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

type oauthError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// tokenSource exchanges signed assertions for access tokens, a token is
// reused until a minute before it expires.
type tokenSource struct {
	account ServiceAccount
	http    *resty.Client
	now     func() time.Time

	mutex     sync.Mutex
	token     string
	expiresAt time.Time
}

func (s *tokenSource) assertion() (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(s.account.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("parse private key: %w", err)
	}
	now := s.now()
	claims := jwt.MapClaims{
		"iss":   s.account.ClientEmail,
		"scope": scopeSpreadsheets,
		"aud":   s.account.TokenURI,
		"iat":   jwt.NewNumericDate(now),
		"exp":   jwt.NewNumericDate(now.Add(time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if s.account.PrivateKeyID != "" {
		token.Header["kid"] = s.account.PrivateKeyID
	}
	return token.SignedString(key)
}

func (s *tokenSource) Token(ctx context.Context) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.token != "" && s.now().Before(s.expiresAt.Add(-time.Minute)) {
		return s.token, nil
	}

	assertion, err := s.assertion()
	if err != nil {
		return "", err
	}

	var res tokenResponse
	var resErr oauthError
	r, err := s.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type": jwtBearerGrant,
			"assertion":  assertion,
		}).
		SetResult(&res).
		SetError(&resErr).
		Post(s.account.TokenURI)
	if err != nil {
		return "", err
	}
	if r.IsError() {
		return "", fmt.Errorf("token exchange failed (%d): %s %s", r.StatusCode(), resErr.Error, resErr.ErrorDescription)
	}
	if res.AccessToken == "" {
		return "", fmt.Errorf("token exchange returned no access token")
	}

	s.token = res.AccessToken
	s.expiresAt = s.now().Add(time.Duration(res.ExpiresIn) * time.Second)
	return s.token, nil
}

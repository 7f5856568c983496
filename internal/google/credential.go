package google

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// Credential is an OAuth token bundle together with the scopes it was
// granted and the client that obtained it. The client fields let a
// credential be refreshed without reading the client secret file again.
type Credential struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
	Scopes       ScopeSet

	ClientID     string
	ClientSecret string
	TokenURI     string
}

// Token returns the credential as an oauth2 token.
func (c *Credential) Token() *oauth2.Token {
	tokenType := c.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    tokenType,
		Expiry:       c.Expiry,
	}
}

// Expired reports whether the access token is past its expiry, treating
// tokens that expire within leeway as already expired. A zero expiry
// never expires.
func (c *Credential) Expired(now time.Time, leeway time.Duration) bool {
	if c.Expiry.IsZero() {
		return false
	}
	return !now.Add(leeway).Before(c.Expiry)
}

// HasRefreshToken reports whether the credential can be refreshed.
func (c *Credential) HasRefreshToken() bool {
	return c.RefreshToken != ""
}

// withToken returns a copy of c carrying the token's values. The refresh
// token and scopes are kept when the token endpoint did not return new ones.
func (c *Credential) withToken(tok *oauth2.Token) *Credential {
	next := *c
	next.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		next.RefreshToken = tok.RefreshToken
	}
	if tok.TokenType != "" {
		next.TokenType = tok.TokenType
	}
	next.Expiry = tok.Expiry
	if granted := grantedScopes(tok); !granted.IsEmpty() {
		next.Scopes = granted
	}
	return &next
}

// grantedScopes reads the space separated "scope" field of a token response.
func grantedScopes(tok *oauth2.Token) ScopeSet {
	if s, ok := tok.Extra("scope").(string); ok {
		return ParseScopeSet(s)
	}
	return ScopeSet{}
}

// tokenRecord is the on-disk form of a Credential. Field names follow the
// Google "authorized user" file so tokens written by other tools load too.
type tokenRecord struct {
	Token        string     `json:"token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	TokenType    string     `json:"token_type,omitempty"`
	TokenURI     string     `json:"token_uri,omitempty"`
	ClientID     string     `json:"client_id,omitempty"`
	ClientSecret string     `json:"client_secret,omitempty"`
	Scopes       []string   `json:"scopes"`
	Expiry       *time.Time `json:"expiry,omitempty"`
}

func marshalCredential(c *Credential) ([]byte, error) {
	rec := tokenRecord{
		Token:        c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		TokenURI:     c.TokenURI,
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Scopes:       c.Scopes.Slice(),
	}
	if !c.Expiry.IsZero() {
		expiry := c.Expiry.UTC()
		rec.Expiry = &expiry
	}
	return json.MarshalIndent(rec, "", "  ")
}

func unmarshalCredential(data []byte) (*Credential, error) {
	var rec tokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if rec.Token == "" && rec.RefreshToken == "" {
		return nil, fmt.Errorf("%w: record holds neither an access nor a refresh token", ErrCorruptRecord)
	}
	c := &Credential{
		AccessToken:  rec.Token,
		RefreshToken: rec.RefreshToken,
		TokenType:    rec.TokenType,
		TokenURI:     rec.TokenURI,
		ClientID:     rec.ClientID,
		ClientSecret: rec.ClientSecret,
		Scopes:       NewScopeSet(rec.Scopes...),
	}
	if rec.Expiry != nil {
		c.Expiry = *rec.Expiry
	}
	return c, nil
}

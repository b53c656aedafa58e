package oidc

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/target/webfront-auth/internal/ports"
)

// fakeIdP is a minimal OpenID provider: discovery, JWKS, token and userinfo.
type fakeIdP struct {
	t      *testing.T
	server *httptest.Server
	key    *rsa.PrivateKey
	// claims of the next ID token; nonce is filled from the code
	claims   map[string]any
	userInfo map[string]any

	mu    sync.Mutex
	codes map[string]string
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	idp := &fakeIdP{t: t, key: key, codes: map[string]string{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, DiscoveryDocument{
			Issuer:                idp.server.URL,
			AuthorizationEndpoint: idp.server.URL + "/auth",
			TokenEndpoint:         idp.server.URL + "/token",
			UserinfoEndpoint:      idp.server.URL + "/userinfo",
			JwksURI:               idp.server.URL + "/jwks",
		})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"keys": []map[string]string{{
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"kid": "k1",
			"n":   b64(key.N.Bytes()),
			"e":   b64(big.NewInt(int64(key.E)).Bytes()),
		}}})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		idp.mu.Lock()
		nonce, ok := idp.codes[r.PostForm.Get("code")]
		idp.mu.Unlock()
		if !ok {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{
			"access_token": "access-1",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     idp.sign(nonce),
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, _ *http.Request) {
		if idp.userInfo == nil {
			http.Error(w, "no userinfo", http.StatusNotFound)
			return
		}
		writeJSON(w, idp.userInfo)
	})
	idp.server = httptest.NewServer(mux)
	t.Cleanup(idp.server.Close)
	return idp
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func b64(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

// authorize simulates the user consenting: it issues a code bound to the nonce of authURL.
func (idp *fakeIdP) authorize(authURL, code string) url.Values {
	u, err := url.Parse(authURL)
	require.NoError(idp.t, err)
	idp.mu.Lock()
	idp.codes[code] = u.Query().Get("nonce")
	idp.mu.Unlock()
	return url.Values{"code": {code}, "state": {u.Query().Get("state")}}
}

func (idp *fakeIdP) sign(nonce string) string {
	claims := map[string]any{
		"iss":   idp.server.URL,
		"aud":   "test-client",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Unix(),
		"nonce": nonce,
	}
	for k, v := range idp.claims {
		claims[k] = v
	}
	header, err := json.Marshal(map[string]string{"alg": "RS256", "typ": "JWT", "kid": "k1"})
	require.NoError(idp.t, err)
	payload, err := json.Marshal(claims)
	require.NoError(idp.t, err)
	signingInput := b64(header) + "." + b64(payload)
	digest := sha256.Sum256([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(rand.Reader, idp.key, crypto.SHA256, digest[:])
	require.NoError(idp.t, err)
	return signingInput + "." + b64(sig)
}

func newTestProvider(t *testing.T, idp *fakeIdP, mutate func(*ProviderConfig)) *Provider {
	t.Helper()
	cfg := ProviderConfig{
		Scheme:       "Oidc",
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		Scope:        "openid profile email",
		DiscoveryURL: idp.server.URL,
		HTTPClient:   idp.server.Client(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := NewProvider(context.Background(), cfg)
	require.NoError(t, err)
	return p
}

func TestNewProvider_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		config ProviderConfig
		errMsg string
	}{
		{"missing scheme", ProviderConfig{ClientID: "c", ClientSecret: "s", DiscoveryURL: "http://x"}, "scheme is required"},
		{"missing client ID", ProviderConfig{Scheme: "Oidc", ClientSecret: "s", DiscoveryURL: "http://x"}, "client ID is required"},
		{"missing client secret", ProviderConfig{Scheme: "Oidc", ClientID: "c", DiscoveryURL: "http://x"}, "client secret is required"},
		{"missing discovery URL", ProviderConfig{Scheme: "Oidc", ClientID: "c", ClientSecret: "s"}, "discovery URL is required"},
		{
			"bad expression",
			ProviderConfig{Scheme: "Oidc", ClientID: "c", ClientSecret: "s", DiscoveryURL: "http://x", KeyExpr: "sub[["},
			"invalid claim expression",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(context.Background(), tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestProvider_Challenge(t *testing.T) {
	idp := newFakeIdP(t)
	provider := newTestProvider(t, idp, nil)
	assert.Equal(t, "Oidc", provider.Scheme())

	authURL, err := provider.Challenge(context.Background(), ports.ChallengeInput{
		State:       "sealed-state",
		RedirectURL: "https://app.example.com/.webfront/c/callback/Oidc",
	})
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, idp.server.URL+"/auth", u.Scheme+"://"+u.Host+u.Path)
	assert.Equal(t, "test-client", q.Get("client_id"))
	assert.Equal(t, "sealed-state", q.Get("state"))
	assert.Equal(t, nonceFor("sealed-state"), q.Get("nonce"))
	assert.Equal(t, "https://app.example.com/.webfront/c/callback/Oidc", q.Get("redirect_uri"))

	_, err = provider.Challenge(context.Background(), ports.ChallengeInput{})
	require.ErrorContains(t, err, "state is required")

	_, err = provider.Challenge(context.Background(), ports.ChallengeInput{State: "s"})
	require.ErrorContains(t, err, "redirect URL is required")
}

func TestProvider_ConfiguredRedirectWins(t *testing.T) {
	idp := newFakeIdP(t)
	provider := newTestProvider(t, idp, func(c *ProviderConfig) { c.RedirectURL = "https://registered/cb" })

	authURL, err := provider.Challenge(context.Background(), ports.ChallengeInput{State: "s", RedirectURL: "https://other/cb"})
	require.NoError(t, err)
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "https://registered/cb", u.Query().Get("redirect_uri"))
}

func TestProvider_Complete(t *testing.T) {
	idp := newFakeIdP(t)
	idp.claims = map[string]any{"sub": "sub-123", "preferred_username": "albert", "email": "albert@example.com"}
	provider := newTestProvider(t, idp, nil)
	ctx := context.Background()
	redirect := "https://app.example.com/cb"

	authURL, err := provider.Challenge(ctx, ports.ChallengeInput{State: "state-1", RedirectURL: redirect})
	require.NoError(t, err)

	res, err := provider.Complete(ctx, ports.CompleteInput{Query: idp.authorize(authURL, "code-1"), RedirectURL: redirect})
	require.NoError(t, err)
	assert.Equal(t, "state-1", res.State)
	assert.Equal(t, "sub-123", res.Payload["key"])
	assert.Equal(t, "albert", res.Payload["name"])
}

func TestProvider_Complete_ClaimExpressions(t *testing.T) {
	idp := newFakeIdP(t)
	idp.claims = map[string]any{"sub": "s", "employee": map[string]any{"id": 4711}}
	idp.userInfo = map[string]any{"sub": "s", "mail": "paula@example.com"}
	provider := newTestProvider(t, idp, func(c *ProviderConfig) {
		c.KeyExpr = "employee.id"
		c.NameExpr = "preferred_username || mail"
	})
	ctx := context.Background()
	redirect := "https://app.example.com/cb"

	authURL, err := provider.Challenge(ctx, ports.ChallengeInput{State: "state-2", RedirectURL: redirect})
	require.NoError(t, err)
	res, err := provider.Complete(ctx, ports.CompleteInput{Query: idp.authorize(authURL, "code-2"), RedirectURL: redirect})
	require.NoError(t, err)
	assert.Equal(t, "4711", res.Payload["key"])
	assert.Equal(t, "paula@example.com", res.Payload["name"], "name is filled from userinfo")
}

func TestProvider_Complete_NonceMismatch(t *testing.T) {
	idp := newFakeIdP(t)
	idp.claims = map[string]any{"sub": "sub-123", "preferred_username": "albert"}
	provider := newTestProvider(t, idp, nil)
	ctx := context.Background()
	redirect := "https://app.example.com/cb"

	authURL, err := provider.Challenge(ctx, ports.ChallengeInput{State: "state-1", RedirectURL: redirect})
	require.NoError(t, err)
	q := idp.authorize(authURL, "code-1")
	q.Set("state", "swapped-state")

	res, err := provider.Complete(ctx, ports.CompleteInput{Query: q, RedirectURL: redirect})
	require.ErrorContains(t, err, "invalid nonce")
	assert.Equal(t, "swapped-state", res.State, "state is returned even on error")
}

func TestProvider_Complete_Errors(t *testing.T) {
	idp := newFakeIdP(t)
	provider := newTestProvider(t, idp, nil)
	ctx := context.Background()

	res, err := provider.Complete(ctx, ports.CompleteInput{Query: url.Values{
		"state": {"s"}, "error": {"access_denied"}, "error_description": {"User cancelled"},
	}})
	require.ErrorContains(t, err, "User cancelled")
	assert.Equal(t, "s", res.State)

	_, err = provider.Complete(ctx, ports.CompleteInput{Query: url.Values{"state": {"s"}}})
	require.ErrorContains(t, err, "authorization code is required")

	_, err = provider.Complete(ctx, ports.CompleteInput{
		Query:       url.Values{"state": {"s"}, "code": {"unknown"}},
		RedirectURL: "https://app.example.com/cb",
	})
	require.ErrorContains(t, err, "exchange code for token")
}

func TestGetIDTokenFromToken(t *testing.T) {
	tok := (&oauth2.Token{}).WithExtra(map[string]any{"id_token": "abc.def.ghi"})
	idTok, err := getIDTokenFromToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", idTok)

	_, err = getIDTokenFromToken((&oauth2.Token{}).WithExtra(map[string]any{"not_id": "x"}))
	require.ErrorContains(t, err, "missing id_token")

	_, err = getIDTokenFromToken(nil)
	require.ErrorContains(t, err, "nil token")
}

func TestClaimString(t *testing.T) {
	claims := map[string]any{"sub": " s1 ", "n": float64(12), "ok": true, "list": []any{"a"}}
	assert.Equal(t, "s1", claimString(claims, "sub"))
	assert.Equal(t, "12", claimString(claims, "n"))
	assert.Equal(t, "true", claimString(claims, "ok"))
	assert.Equal(t, "", claimString(claims, "list"))
	assert.Equal(t, "", claimString(claims, "missing"))
}

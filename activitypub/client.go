package activitypub

import (
	"bytes"
	"context"
	"crypto/rsa"
	"fmt"
	"io"
	"net/http"

	"github.com/carlmjohnson/requests"
	"github.com/fedipub/fedipub/internal/crypto"
	"github.com/fedipub/fedipub/internal/httpsig"
	"github.com/fedipub/fedipub/models"
)

// Client is an HTTP client which signs all requests with the credentials
// of the local actor it was created for.
type Client struct {
	keyID      string
	privateKey *rsa.PrivateKey
}

// NewClient returns a client signing as the given local actor.
func NewClient(signAs *models.LocalActor) (*Client, error) {
	_, priv, err := crypto.ParseRSAPrivateKey(signAs.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key for %s: %w", signAs.Handle(), err)
	}
	return &Client{
		keyID:      signAs.PublicKeyID(),
		privateKey: priv,
	}, nil
}

// RoundTrip signs the request before delegating to the default transport.
// For requests with a body, the body is consumed to compute the digest and
// then restored.
func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(body))
	}
	if err := httpsig.Sign(req, c.keyID, c.privateKey, body); err != nil {
		return nil, err
	}
	return http.DefaultTransport.RoundTrip(req)
}

// Get fetches uri as ActivityPub JSON and decodes it into obj.
func (c *Client) Get(ctx context.Context, uri string, obj any) error {
	return requests.URL(uri).
		Accept(`application/activity+json, application/ld+json; profile="https://www.w3.org/ns/activitystreams"`).
		Transport(c).
		CheckStatus(http.StatusOK).
		CheckContentType(
			"application/ld+json",
			"application/activity+json",
			"application/json",
		).
		ToJSON(obj).
		Fetch(ctx)
}

// Post delivers obj to the given inbox.
func (c *Client) Post(ctx context.Context, inbox string, obj map[string]any) error {
	return requests.URL(inbox).
		Transport(c).
		Header("Content-Type", "application/activity+json").
		BodyJSON(obj).
		CheckStatus(http.StatusOK, http.StatusCreated, http.StatusAccepted).
		Fetch(ctx)
}

// fetchActivityJSON fetches uri without a signature. Some servers refuse
// unsigned requests, so callers should fall back to a signed fetch when
// requiresSignedFetch reports true for the returned error.
func fetchActivityJSON(ctx context.Context, uri string, obj any) error {
	return requests.URL(uri).
		Accept(`application/activity+json, application/ld+json; profile="https://www.w3.org/ns/activitystreams"`).
		CheckStatus(http.StatusOK).
		CheckContentType(
			"application/ld+json",
			"application/activity+json",
			"application/json",
		).
		ToJSON(obj).
		Fetch(ctx)
}

func requiresSignedFetch(err error) bool {
	return requests.HasStatusErr(err, http.StatusUnauthorized, http.StatusForbidden)
}

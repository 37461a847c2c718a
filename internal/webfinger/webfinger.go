// Package webfinger implements the client side of RFC 7033 discovery,
// mapping user@domain handles to ActivityPub profile document URLs.
package webfinger

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/carlmjohnson/requests"
)

// ErrNoActivityPub indicates the webfinger document exists but carries no
// ActivityPub self link. This is permanent absence, distinct from a
// transport failure, which is returned as the underlying error.
var ErrNoActivityPub = errors.New("no activitypub profile link")

// fetchTimeout bounds how long a single webfinger lookup may take,
// whatever deadline the caller's context carries.
const fetchTimeout = 10 * time.Second

type Webfinger struct {
	Subject string   `json:"subject"`
	Aliases []string `json:"aliases"`
	Links   []Link   `json:"links"`
}

type Link struct {
	Rel      string `json:"rel"`
	Type     string `json:"type"`
	Href     string `json:"href"`
	Template string `json:"template"`
}

// ActivityPub returns the href of the rel=self ActivityPub link.
func (wf *Webfinger) ActivityPub() (string, error) {
	for _, link := range wf.Links {
		if link.Rel == "self" && link.Type == "application/activity+json" {
			return link.Href, nil
		}
	}
	return "", ErrNoActivityPub
}

type Acct struct {
	User string
	Host string
}

func (a *Acct) String() string {
	return "acct:" + a.User + "@" + a.Host
}

// Webfinger returns the URL of the webfinger resource for this Acct.
func (a *Acct) Webfinger() string {
	return "https://" + a.Host + "/.well-known/webfinger?resource=" + url.QueryEscape(a.String())
}

// Fetch retrieves the webfinger document for this Acct.
func (a *Acct) Fetch(ctx context.Context) (*Webfinger, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	var webfinger Webfinger
	err := requests.URL(a.Webfinger()).
		Accept("application/jrd+json").
		ToJSON(&webfinger).
		Fetch(ctx)
	return &webfinger, err
}

// Parse parses a handle of the form user@domain, with or without a
// leading @ or acct: prefix.
func Parse(query string) (*Acct, error) {
	query = strings.TrimPrefix(query, "acct:")
	query = strings.TrimPrefix(query, "@")

	// in case the handle has been URL encoded
	query, err := url.QueryUnescape(query)
	if err != nil {
		return nil, err
	}
	parts := strings.SplitN(query, "@", 2)
	switch len(parts) {
	case 1:
		return &Acct{
			User: parts[0],
		}, nil
	default:
		return &Acct{
			User: parts[0],
			Host: parts[1],
		}, nil
	}
}

package activitypub

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/fedipub/fedipub/internal/cache"
	"github.com/fedipub/fedipub/internal/webfinger"
	"github.com/fedipub/fedipub/models"
)

// discoveryTimeout bounds a single remote document fetch. Inbound
// request contexts carry no deadline of their own, and a stalled remote
// must not hold the inbox handler open.
var discoveryTimeout = 15 * time.Second

// DiscoveryError records a failure to fetch remote actor data. It covers
// transient conditions -- network faults, remote server errors, malformed
// documents -- as opposed to webfinger.ErrNoActivityPub, which means the
// account exists but does not speak the protocol.
type DiscoveryError struct {
	URL string
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery failed for %s: %v", e.URL, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// Directory resolves remote actors, either by profile URL or by
// user@domain handle, persisting what it finds. Profiles already stored
// are served from the database and refreshed only via Refresh.
type Directory struct {
	env      *models.Env
	profiles *cache.Cache[string, *models.Profile]
}

func NewDirectory(env *models.Env, profiles *cache.Cache[string, *models.Profile]) *Directory {
	return &Directory{
		env:      env,
		profiles: profiles,
	}
}

// ResolveURL returns the remote actor whose profile document lives at uri,
// fetching and persisting it on first contact. If the plain fetch is
// refused, the fetch is retried signed as signAs.
func (d *Directory) ResolveURL(ctx context.Context, uri string, signAs *models.LocalActor) (*models.RemoteActor, error) {
	remotes := models.NewRemoteActors(d.env.DB)
	if actor, err := remotes.FindByURL(uri); err == nil {
		return actor, nil
	}
	profile, err := d.fetchProfile(ctx, uri, signAs)
	if err != nil {
		return nil, err
	}
	return d.upsert(profile, "")
}

// ResolveHandle discovers the actor user@domain via webfinger. Accounts
// which exist but advertise no ActivityPub endpoint are reported as
// webfinger.ErrNoActivityPub.
func (d *Directory) ResolveHandle(ctx context.Context, user, domain string) (*models.RemoteActor, error) {
	remotes := models.NewRemoteActors(d.env.DB)
	if actor, err := remotes.Find(user, domain); err == nil {
		return actor, nil
	}
	acct := &webfinger.Acct{User: user, Host: domain}
	wf, err := acct.Fetch(ctx)
	if err != nil {
		return nil, &DiscoveryError{URL: acct.Webfinger(), Err: err}
	}
	self, err := wf.ActivityPub()
	if err != nil {
		return nil, err
	}
	profile, err := d.fetchProfile(ctx, self, nil)
	if err != nil {
		return nil, err
	}
	return d.upsert(profile, user)
}

// Refresh re-fetches the profile at uri, bypassing both the memoized copy
// and the stored one, and updates the record in place.
func (d *Directory) Refresh(ctx context.Context, uri string, signAs *models.LocalActor) (*models.RemoteActor, error) {
	d.profiles.Remove(uri)
	profile, err := d.fetchProfile(ctx, uri, signAs)
	if err != nil {
		return nil, err
	}
	return d.upsert(profile, "")
}

func (d *Directory) fetchProfile(ctx context.Context, uri string, signAs *models.LocalActor) (*models.Profile, error) {
	if profile, ok := d.profiles.Get(uri); ok {
		return profile, nil
	}
	ctx, cancel := context.WithTimeout(ctx, discoveryTimeout)
	defer cancel()
	var profile models.Profile
	err := fetchActivityJSON(ctx, uri, &profile)
	if err != nil && signAs != nil && requiresSignedFetch(err) {
		var client *Client
		client, err = NewClient(signAs)
		if err != nil {
			return nil, err
		}
		err = client.Get(ctx, uri, &profile)
	}
	if err != nil {
		return nil, &DiscoveryError{URL: uri, Err: err}
	}
	if profile.ID == "" {
		return nil, &DiscoveryError{URL: uri, Err: errors.New("profile document has no id")}
	}
	d.profiles.Put(uri, &profile)
	return &profile, nil
}

func (d *Directory) upsert(profile *models.Profile, user string) (*models.RemoteActor, error) {
	u, err := url.Parse(profile.ID)
	if err != nil {
		return nil, &DiscoveryError{URL: profile.ID, Err: err}
	}
	name := profile.PreferredUsername
	if name == "" {
		name = user
	}
	if name == "" {
		name = path.Base(u.Path)
	}
	return models.NewRemoteActors(d.env.DB).Upsert(&models.RemoteActor{
		Name:    name,
		Domain:  u.Host,
		URL:     profile.ID,
		Profile: *profile,
	})
}

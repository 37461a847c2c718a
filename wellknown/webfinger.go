// Package wellknown serves the discovery endpoints remote servers use to
// find actors on this instance.
package wellknown

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/fedipub/fedipub/activitypub"
	"github.com/fedipub/fedipub/internal/httpx"
	"github.com/fedipub/fedipub/internal/webfinger"
	"github.com/fedipub/fedipub/models"
	"github.com/go-json-experiment/json"
)

// WebfingerShow answers a webfinger query for a local actor. The resource
// may be given in acct: form or as the actor's profile URL.
func WebfingerShow(env *activitypub.Env, w http.ResponseWriter, r *http.Request) error {
	resource := r.URL.Query().Get("resource")
	username, err := resourceUsername(resource, r.Host)
	if err != nil {
		return err
	}
	// use the host from the request, not the resource
	actor, err := models.NewLocalActors(env.DB).Find(username, r.Host)
	if err != nil {
		return httpx.Error(http.StatusNotFound, fmt.Errorf("no actor for resource %q", resource))
	}

	acct := webfinger.Acct{User: actor.Name, Host: actor.Domain}
	links := []map[string]any{
		{
			"rel":  "self",
			"type": "application/activity+json",
			"href": actor.URI(),
		},
	}
	if actor.Icon != "" {
		links = append(links, map[string]any{
			"rel":  "http://webfinger.net/rel/avatar",
			"href": actor.Icon,
		})
	}
	w.Header().Set("Content-Type", "application/jrd+json")
	return json.MarshalFull(w, map[string]any{
		"subject": acct.String(),
		"aliases": []string{actor.URI()},
		"links":   links,
	})
}

func resourceUsername(resource, host string) (string, error) {
	if strings.HasPrefix(resource, "http://") || strings.HasPrefix(resource, "https://") {
		username, domain, ok := models.ParseProfileURI(resource)
		if !ok || domain != host {
			return "", httpx.Error(http.StatusNotFound, fmt.Errorf("unknown resource %q", resource))
		}
		return username, nil
	}
	acct, err := webfinger.Parse(resource)
	if err != nil {
		return "", httpx.Error(http.StatusBadRequest, err)
	}
	if acct.Host != "" && acct.Host != host {
		return "", httpx.Error(http.StatusNotFound, fmt.Errorf("resource %q is not on this host", resource))
	}
	return acct.User, nil
}

package activitypub

import (
	"net/http"

	"github.com/fedipub/fedipub/internal/to"
)

// UsersShow serves a local actor's profile document.
func UsersShow(env *Env, w http.ResponseWriter, r *http.Request) error {
	actor, err := requestedActor(env, r)
	if err != nil {
		return err
	}
	doc := map[string]any{
		"@context": []string{
			activityContext,
			"https://w3id.org/security/v1",
		},
		"id":                        actor.URI(),
		"type":                      string(actor.Type),
		"preferredUsername":         actor.Name,
		"name":                      actor.DisplayName,
		"summary":                   actor.Summary,
		"url":                       actor.URI(),
		"published":                 formatTime(actor.CreatedAt),
		"inbox":                     actor.InboxURL(),
		"outbox":                    actor.OutboxURL(),
		"followers":                 actor.FollowersURL(),
		"following":                 actor.FollowingURL(),
		"manuallyApprovesFollowers": false,
		"publicKey": map[string]any{
			"id":           actor.PublicKeyID(),
			"owner":        actor.URI(),
			"publicKeyPem": string(actor.PublicKey),
		},
	}
	if actor.Icon != "" {
		doc["icon"] = map[string]any{
			"type": "Image",
			"url":  actor.Icon,
		}
	}
	if actor.Image != "" {
		doc["image"] = map[string]any{
			"type": "Image",
			"url":  actor.Image,
		}
	}
	return to.ActivityJSON(w, doc)
}

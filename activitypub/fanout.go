package activitypub

import (
	"context"
	"net/http"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/fedipub/fedipub/internal/group"
	"github.com/fedipub/fedipub/models"
	"github.com/google/uuid"
)

const (
	// deliveryConcurrency bounds the number of in-flight deliveries per
	// fan-out pass.
	deliveryConcurrency = 8
	deliveryTimeout     = 15 * time.Second
)

const activityContext = "https://www.w3.org/ns/activitystreams"

// BroadcastCreate announces a new note to every follower of its
// publishing actor. Deliveries are independent: one follower's failure
// never affects the others, and failures are logged, not returned.
func BroadcastCreate(ctx context.Context, env *Env, note *models.Note) error {
	return broadcast(ctx, env, note, func(pub *models.LocalActor, mentions []map[string]any, domain string) map[string]any {
		tags := append(append([]map[string]any(nil), mentions...), hashtagTags(note.Content, domain)...)
		data := noteActivity(note, pub, tags)
		data["@context"] = activityContext
		return data
	})
}

// BroadcastUpdate announces an edit to an existing note.
func BroadcastUpdate(ctx context.Context, env *Env, note *models.Note) error {
	return broadcast(ctx, env, note, func(pub *models.LocalActor, mentions []map[string]any, domain string) map[string]any {
		tags := append(append([]map[string]any(nil), mentions...), hashtagTags(note.Content, domain)...)
		return map[string]any{
			"@context":  activityContext,
			"id":        note.URI() + "#updates/" + note.UpdatedAt.UTC().Format("20060102150405"),
			"type":      "Update",
			"actor":     pub.URI(),
			"published": formatTime(note.UpdatedAt),
			"to":        []string{activityContext + "#Public"},
			"cc":        []string{pub.FollowersURL()},
			"object":    noteObject(note, pub, tags),
		}
	})
}

// BroadcastDelete announces the withdrawal of a note to the publisher's
// followers and tombstones it locally. The tombstone is set once the
// delivery pass has run, whatever the per-follower outcomes were.
func BroadcastDelete(ctx context.Context, env *Env, note *models.Note) error {
	err := broadcast(ctx, env, note, func(pub *models.LocalActor, _ []map[string]any, _ string) map[string]any {
		return map[string]any{
			"@context": activityContext,
			"id":       "https://" + pub.Domain + "/" + uuid.NewString(),
			"type":     "Delete",
			"actor":    pub.URI(),
			"to":       []string{activityContext + "#Public"},
			"object": map[string]any{
				"id":   note.URI(),
				"type": "Tombstone",
			},
		}
	})
	if err != nil {
		return err
	}
	return models.NewNotes(env.DB).Tombstone(note)
}

func broadcast(ctx context.Context, env *Env, note *models.Note, message func(pub *models.LocalActor, mentions []map[string]any, domain string) map[string]any) error {
	pub, err := publisher(env.DB, note)
	if err != nil {
		return err
	}
	followers, err := models.NewFollowers(env.DB).All(pub)
	if err != nil {
		return err
	}
	client, err := NewClient(pub)
	if err != nil {
		return err
	}
	// mentions are resolved once per unique handle, not once per follower
	mentions := mentionTags(ctx, env, note.Content)
	group.Each(ctx, deliveryConcurrency, followers, func(ctx context.Context, f models.Follower) {
		deliver(ctx, env, client, pub, f, message(pub, mentions, f.RemoteActor.Domain))
	})
	return nil
}

func deliver(ctx context.Context, env *Env, client *Client, pub *models.LocalActor, f models.Follower, data map[string]any) {
	ctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()
	err := client.Post(ctx, f.RemoteActor.Inbox(), data)
	switch {
	case err == nil:
	case requests.HasStatusErr(err, http.StatusNotFound, http.StatusGone):
		// the inbox no longer exists; retire the edge
		if err := models.NewFollowers(env.DB).Unfollow(pub, f.RemoteActor); err != nil {
			env.Log().Error("could not drop unreachable follower", "follower", f.RemoteActor.Handle(), "err", err)
			return
		}
		env.Log().Info("dropped unreachable follower", "follower", f.RemoteActor.Handle())
	default:
		env.Log().Error("delivery failed", "inbox", f.RemoteActor.Inbox(), "err", err)
	}
}

// PublishLocal records a note authored on this instance and fans the
// change out. The note is keyed by its content URL: a URL seen before is
// an edit, a new one is a creation. Fan-out failures never surface here.
func PublishLocal(ctx context.Context, env *Env, actor *models.LocalActor, content, contentURL string) (*models.Note, error) {
	note, created, err := models.NewNotes(env.DB).UpsertLocal(actor, content, contentURL)
	if err != nil {
		return nil, err
	}
	if created {
		err = BroadcastCreate(ctx, env, note)
	} else {
		err = BroadcastUpdate(ctx, env, note)
	}
	if err != nil {
		env.Log().Error("fan-out failed", "note", note.URI(), "err", err)
	}
	return note, nil
}

// DeleteLocal withdraws the note with the given content URL. Deleting a
// URL that was never published is a no-op.
func DeleteLocal(ctx context.Context, env *Env, contentURL string) error {
	note, err := models.NewNotes(env.DB).FindByURL(contentURL)
	if err != nil {
		return nil
	}
	return BroadcastDelete(ctx, env, note)
}

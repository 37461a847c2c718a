package activitypub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fedipub/fedipub/internal/crypto"
	"github.com/fedipub/fedipub/internal/httpsig"
	"github.com/fedipub/fedipub/internal/httpx"
	"github.com/fedipub/fedipub/internal/to"
	"github.com/fedipub/fedipub/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
)

// activity is the closed set of inbox activity variants. Each variant
// applies itself against the recipient's state; sender is the verified
// remote actor the activity came from.
type activity interface {
	apply(ctx context.Context, env *Env, recipient *models.LocalActor, sender *models.RemoteActor) error
}

// InboxCreate accepts one activity addressed to a local actor's inbox.
// The request is rejected before any state changes if the recipient is
// unknown, the sender cannot be resolved, or the signature does not
// verify against the sender's published key.
func InboxCreate(env *Env, w http.ResponseWriter, r *http.Request) error {
	name := chi.URLParam(r, "username")
	recipient, err := models.NewLocalActors(env.DB).Find(name, r.Host)
	if err != nil {
		return httpx.Error(http.StatusNotFound, fmt.Errorf("no actor %s@%s", name, r.Host))
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return httpx.Error(http.StatusBadRequest, err)
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return httpx.Error(http.StatusBadRequest, err)
	}
	actorURL := stringFromAny(raw["actor"])
	if actorURL == "" {
		return httpx.Error(http.StatusBadRequest, errors.New("no actor in activity"))
	}

	sender, err := env.Directory.ResolveURL(r.Context(), actorURL, recipient)
	if err != nil {
		env.Log().Info("inbox sender resolution failed", "actor", actorURL, "err", err)
		return httpx.Error(http.StatusBadRequest, errors.New("could not verify sender"))
	}

	if err := verifySender(r, body, sender); err != nil {
		env.Log().Info("inbox signature rejected", "actor", actorURL, "err", err)
		// one uniform rejection, no oracle for key probing
		return httpx.Error(http.StatusUnauthorized, errors.New("invalid signature"))
	}

	act, err := parseActivity(raw)
	if err != nil {
		return httpx.Error(http.StatusBadRequest, err)
	}
	if err := act.apply(r.Context(), env, recipient, sender); err != nil {
		return err
	}
	return to.ActivityJSON(w, map[string]any{"ok": true})
}

func verifySender(r *http.Request, body []byte, sender *models.RemoteActor) error {
	pub, err := crypto.ParseRSAPublicKey(sender.PublicKeyPem())
	if err != nil {
		return err
	}
	return httpsig.Verify(r, body, pub)
}

func parseActivity(raw map[string]any) (activity, error) {
	switch typ := stringFromAny(raw["type"]); typ {
	case "Follow":
		return &followActivity{
			object: stringFromAny(raw["object"]),
			raw:    raw,
		}, nil
	case "Like":
		return &likeActivity{object: stringFromAny(raw["object"])}, nil
	case "Announce":
		return &announceActivity{object: stringFromAny(raw["object"])}, nil
	case "Create":
		obj := mapFromAny(raw["object"])
		if obj == nil {
			return nil, errors.New("create has no object")
		}
		return &createActivity{object: obj}, nil
	case "Undo":
		return parseUndo(mapFromAny(raw["object"]))
	case "Delete":
		return &deleteActivity{}, nil
	case "Accept":
		return &acceptActivity{}, nil
	case "Update":
		return &updateActivity{}, nil
	default:
		return nil, fmt.Errorf("unsupported activity type: %q", typ)
	}
}

func parseUndo(obj map[string]any) (activity, error) {
	if obj == nil {
		return nil, errors.New("undo has no object")
	}
	switch typ := stringFromAny(obj["type"]); typ {
	case "Follow":
		return &undoFollowActivity{
			actor:  stringFromAny(obj["actor"]),
			object: stringFromAny(obj["object"]),
		}, nil
	case "Like":
		return &undoLikeActivity{
			actor:  stringFromAny(obj["actor"]),
			object: stringFromAny(obj["object"]),
		}, nil
	case "Announce":
		return &undoAnnounceActivity{
			actor:  stringFromAny(obj["actor"]),
			object: stringFromAny(obj["object"]),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported undo type: %q", typ)
	}
}

type followActivity struct {
	object string

	// the inbound activity as received. The Accept echoes it back whole;
	// remote servers match their pending follow by its id.
	raw map[string]any
}

func (a *followActivity) apply(ctx context.Context, env *Env, recipient *models.LocalActor, sender *models.RemoteActor) error {
	target, err := models.NewLocalActors(env.DB).FindByURI(a.object)
	if err != nil || target.ID != recipient.ID {
		return httpx.Error(http.StatusBadRequest, fmt.Errorf("follow object is not this actor: %s", a.object))
	}
	if err := models.NewFollowers(env.DB).Follow(recipient, sender); err != nil {
		return err
	}
	// the follow edge stands even if the Accept cannot be delivered
	if err := sendAccept(ctx, env, recipient, sender, a); err != nil {
		env.Log().Error("accept delivery failed", "follower", sender.Handle(), "err", err)
	}
	return nil
}

func sendAccept(ctx context.Context, env *Env, recipient *models.LocalActor, sender *models.RemoteActor, a *followActivity) error {
	client, err := NewClient(recipient)
	if err != nil {
		return err
	}
	return client.Post(ctx, sender.Inbox(), map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       fmt.Sprintf("https://%s/%s", recipient.Domain, uuid.NewString()),
		"type":     "Accept",
		"actor":    recipient.URI(),
		"object":   a.raw,
	})
}

type likeActivity struct {
	object string
}

func (a *likeActivity) apply(ctx context.Context, env *Env, recipient *models.LocalActor, sender *models.RemoteActor) error {
	note, err := findNoteTarget(env, recipient, a.object)
	if err != nil {
		return httpx.Error(http.StatusBadRequest, fmt.Errorf("like object is not a known note: %s", a.object))
	}
	return models.NewNotes(env.DB).Like(note, sender)
}

type announceActivity struct {
	object string
}

func (a *announceActivity) apply(ctx context.Context, env *Env, recipient *models.LocalActor, sender *models.RemoteActor) error {
	note, err := findNoteTarget(env, recipient, a.object)
	if err != nil {
		return httpx.Error(http.StatusBadRequest, fmt.Errorf("announce object is not a known note: %s", a.object))
	}
	return models.NewNotes(env.DB).Announce(note, sender)
}

// findNoteTarget locates the note an activity's object URL points at:
// a local status URL is parsed directly, anything else is matched
// against stored content URLs.
func findNoteTarget(env *Env, recipient *models.LocalActor, object string) (*models.Note, error) {
	if _, domain, id, ok := models.ParseStatusURI(object); ok && domain == recipient.Domain {
		return models.NewNotes(env.DB).Find(id)
	}
	return models.NewNotes(env.DB).FindByURL(object)
}

type createActivity struct {
	object map[string]any
}

func (a *createActivity) apply(ctx context.Context, env *Env, recipient *models.LocalActor, sender *models.RemoteActor) error {
	id := stringFromAny(a.object["id"])
	if id == "" {
		return httpx.Error(http.StatusBadRequest, errors.New("create object has no id"))
	}
	// our own objects echoed back are not re-ingested
	if strings.HasPrefix(id, "https://"+recipient.Domain+"/") {
		return nil
	}
	_, err := upsertRemoteNote(ctx, env, recipient, a.object, 0)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errThreadTooDeep):
		return httpx.Error(http.StatusBadRequest, err)
	default:
		var disc *DiscoveryError
		if errors.As(err, &disc) {
			return httpx.Error(http.StatusBadGateway, err)
		}
		return err
	}
}

type undoFollowActivity struct {
	actor, object string
}

func (a *undoFollowActivity) apply(ctx context.Context, env *Env, recipient *models.LocalActor, sender *models.RemoteActor) error {
	target, err := models.NewLocalActors(env.DB).FindByURI(a.object)
	if err != nil || target.ID != recipient.ID {
		return httpx.Error(http.StatusBadRequest, fmt.Errorf("undo follow object is not this actor: %s", a.object))
	}
	remote, err := models.NewRemoteActors(env.DB).FindByURL(a.actor)
	if err != nil {
		return httpx.Error(http.StatusNotFound, fmt.Errorf("no remote actor %s", a.actor))
	}
	if err := models.NewFollowers(env.DB).Unfollow(recipient, remote); err != nil {
		return httpx.Error(http.StatusNotFound, fmt.Errorf("%s does not follow %s", remote.Handle(), recipient.Handle()))
	}
	return nil
}

type undoLikeActivity struct {
	actor, object string
}

func (a *undoLikeActivity) apply(ctx context.Context, env *Env, recipient *models.LocalActor, sender *models.RemoteActor) error {
	note, err := findNoteTarget(env, recipient, a.object)
	if err != nil {
		return httpx.Error(http.StatusBadRequest, fmt.Errorf("undo like object is not a known note: %s", a.object))
	}
	remote, err := models.NewRemoteActors(env.DB).FindByURL(a.actor)
	if err != nil {
		return httpx.Error(http.StatusNotFound, fmt.Errorf("no remote actor %s", a.actor))
	}
	if err := models.NewNotes(env.DB).Unlike(note, remote); err != nil {
		return httpx.Error(http.StatusNotFound, fmt.Errorf("%s has not liked %s", remote.Handle(), note.URI()))
	}
	return nil
}

type undoAnnounceActivity struct {
	actor, object string
}

func (a *undoAnnounceActivity) apply(ctx context.Context, env *Env, recipient *models.LocalActor, sender *models.RemoteActor) error {
	note, err := findNoteTarget(env, recipient, a.object)
	if err != nil {
		return httpx.Error(http.StatusBadRequest, fmt.Errorf("undo announce object is not a known note: %s", a.object))
	}
	remote, err := models.NewRemoteActors(env.DB).FindByURL(a.actor)
	if err != nil {
		return httpx.Error(http.StatusNotFound, fmt.Errorf("no remote actor %s", a.actor))
	}
	if err := models.NewNotes(env.DB).Unannounce(note, remote); err != nil {
		return httpx.Error(http.StatusNotFound, fmt.Errorf("%s has not announced %s", remote.Handle(), note.URI()))
	}
	return nil
}

// deleteActivity, acceptActivity and updateActivity are acknowledged
// without side effects. Remote deletions of objects we never stored are
// common background noise.
type deleteActivity struct{}

func (deleteActivity) apply(context.Context, *Env, *models.LocalActor, *models.RemoteActor) error {
	return nil
}

type acceptActivity struct{}

func (acceptActivity) apply(context.Context, *Env, *models.LocalActor, *models.RemoteActor) error {
	return nil
}

type updateActivity struct{}

func (updateActivity) apply(context.Context, *Env, *models.LocalActor, *models.RemoteActor) error {
	return nil
}

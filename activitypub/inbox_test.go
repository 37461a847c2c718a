package activitypub

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fedipub/fedipub/internal/crypto"
	"github.com/fedipub/fedipub/internal/httpsig"
	"github.com/fedipub/fedipub/internal/httpx"
	"github.com/fedipub/fedipub/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-json-experiment/json"
	"github.com/stretchr/testify/require"
)

func inboxRouter(env *Env) http.Handler {
	r := chi.NewRouter()
	r.Post("/pub/{username}/inbox", httpx.HandlerFunc(func(*http.Request) *Env { return env }, InboxCreate))
	return r
}

// postActivity signs and delivers an activity to a local actor's inbox,
// returning the response.
func postActivity(t *testing.T, env *Env, remote *fakeRemote, keyID string, activity map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(activity)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "https://example.com/pub/alice/inbox", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/activity+json")
	_, priv, err := crypto.ParseRSAPrivateKey(remote.kp.PrivateKey)
	require.NoError(t, err)
	require.NoError(t, httpsig.Sign(req, keyID, priv, body))

	rr := httptest.NewRecorder()
	inboxRouter(env).ServeHTTP(rr, req)
	return rr
}

func TestInboxUnknownRecipient(t *testing.T) {
	require := require.New(t)
	db := setupTestDB(t)
	env := testEnv(t, db)
	remote := newFakeRemote(t)

	rr := postActivity(t, env, remote, remote.actorURL("bob")+"#main-key", map[string]any{
		"type":   "Follow",
		"actor":  remote.actorURL("bob"),
		"object": "https://example.com/pub/alice",
	})
	require.Equal(http.StatusNotFound, rr.Code)
}

func TestInboxMissingActor(t *testing.T) {
	require := require.New(t)
	db := setupTestDB(t)
	env := testEnv(t, db)
	remote := newFakeRemote(t)
	mockLocalActor(t, db, "alice", "example.com")

	rr := postActivity(t, env, remote, remote.actorURL("bob")+"#main-key", map[string]any{
		"type":   "Follow",
		"object": "https://example.com/pub/alice",
	})
	require.Equal(http.StatusBadRequest, rr.Code)
}

func TestInboxUnresolvableSender(t *testing.T) {
	require := require.New(t)
	db := setupTestDB(t)
	env := testEnv(t, db)
	remote := newFakeRemote(t)
	mockLocalActor(t, db, "alice", "example.com")

	rr := postActivity(t, env, remote, remote.actorURL("bob")+"#main-key", map[string]any{
		"type":   "Follow",
		"actor":  remote.srv.URL + "/notes/no-such-actor",
		"object": "https://example.com/pub/alice",
	})
	require.Equal(http.StatusBadRequest, rr.Code)
}

func TestInboxBadSignature(t *testing.T) {
	require := require.New(t)
	db := setupTestDB(t)
	env := testEnv(t, db)
	remote := newFakeRemote(t)
	alice := mockLocalActor(t, db, "alice", "example.com")

	// signed with a key other than the one bob's profile publishes
	imposter := newFakeRemote(t)
	rr := postActivity(t, env, imposter, remote.actorURL("bob")+"#main-key", map[string]any{
		"type":   "Follow",
		"actor":  remote.actorURL("bob"),
		"object": alice.URI(),
	})
	require.Equal(http.StatusUnauthorized, rr.Code)

	// the rejection happens before any state changes
	count, err := models.NewFollowers(db).Count(alice)
	require.NoError(err)
	require.EqualValues(0, count)
}

func TestInboxFollow(t *testing.T) {
	require := require.New(t)
	db := setupTestDB(t)
	env := testEnv(t, db)
	remote := newFakeRemote(t)
	alice := mockLocalActor(t, db, "alice", "example.com")

	follow := map[string]any{
		"id":     remote.actorURL("bob") + "/follows/1",
		"type":   "Follow",
		"actor":  remote.actorURL("bob"),
		"object": alice.URI(),
	}
	rr := postActivity(t, env, remote, remote.actorURL("bob")+"#main-key", follow)
	require.Equal(http.StatusOK, rr.Code)

	count, err := models.NewFollowers(db).Count(alice)
	require.NoError(err)
	require.EqualValues(1, count)

	// an Accept was delivered back to the follower's inbox, echoing the
	// Follow whole so the follower can match its pending request by id
	accepts := remote.inboxActivities()
	require.Len(accepts, 1)
	require.Equal("Accept", accepts[0]["type"])
	require.Equal(alice.URI(), accepts[0]["actor"])
	echoed, ok := accepts[0]["object"].(map[string]any)
	require.True(ok)
	require.Equal(follow["id"], echoed["id"])
	require.Equal("Follow", echoed["type"])
	require.Equal(alice.URI(), echoed["object"])

	// a duplicate Follow is a no-op
	rr = postActivity(t, env, remote, remote.actorURL("bob")+"#main-key", follow)
	require.Equal(http.StatusOK, rr.Code)
	count, err = models.NewFollowers(db).Count(alice)
	require.NoError(err)
	require.EqualValues(1, count)
}

func TestInboxUndoFollow(t *testing.T) {
	require := require.New(t)
	db := setupTestDB(t)
	env := testEnv(t, db)
	remote := newFakeRemote(t)
	alice := mockLocalActor(t, db, "alice", "example.com")

	keyID := remote.actorURL("bob") + "#main-key"
	follow := map[string]any{
		"type":   "Follow",
		"actor":  remote.actorURL("bob"),
		"object": alice.URI(),
	}
	rr := postActivity(t, env, remote, keyID, follow)
	require.Equal(http.StatusOK, rr.Code)

	undo := map[string]any{
		"type":   "Undo",
		"actor":  remote.actorURL("bob"),
		"object": follow,
	}
	rr = postActivity(t, env, remote, keyID, undo)
	require.Equal(http.StatusOK, rr.Code)

	count, err := models.NewFollowers(db).Count(alice)
	require.NoError(err)
	require.EqualValues(0, count)

	// undoing an absent edge is observable
	rr = postActivity(t, env, remote, keyID, undo)
	require.Equal(http.StatusNotFound, rr.Code)
}

func TestInboxLike(t *testing.T) {
	require := require.New(t)
	db := setupTestDB(t)
	env := testEnv(t, db)
	remote := newFakeRemote(t)
	alice := mockLocalActor(t, db, "alice", "example.com")
	note := mockNote(t, db, alice, "hello world")

	keyID := remote.actorURL("bob") + "#main-key"
	rr := postActivity(t, env, remote, keyID, map[string]any{
		"type":   "Like",
		"actor":  remote.actorURL("bob"),
		"object": note.URI(),
	})
	require.Equal(http.StatusOK, rr.Code)

	count, err := models.NewNotes(db).LikesCount(note)
	require.NoError(err)
	require.EqualValues(1, count)

	// liking a note we do not have is rejected
	rr = postActivity(t, env, remote, keyID, map[string]any{
		"type":   "Like",
		"actor":  remote.actorURL("bob"),
		"object": "https://elsewhere.example/notes/1",
	})
	require.Equal(http.StatusBadRequest, rr.Code)
}

func TestInboxUndoLike(t *testing.T) {
	require := require.New(t)
	db := setupTestDB(t)
	env := testEnv(t, db)
	remote := newFakeRemote(t)
	alice := mockLocalActor(t, db, "alice", "example.com")
	note := mockNote(t, db, alice, "hello world")

	keyID := remote.actorURL("bob") + "#main-key"
	like := map[string]any{
		"type":   "Like",
		"actor":  remote.actorURL("bob"),
		"object": note.URI(),
	}
	rr := postActivity(t, env, remote, keyID, like)
	require.Equal(http.StatusOK, rr.Code)

	rr = postActivity(t, env, remote, keyID, map[string]any{
		"type":   "Undo",
		"actor":  remote.actorURL("bob"),
		"object": like,
	})
	require.Equal(http.StatusOK, rr.Code)

	count, err := models.NewNotes(db).LikesCount(note)
	require.NoError(err)
	require.EqualValues(0, count)
}

func TestInboxAnnounce(t *testing.T) {
	require := require.New(t)
	db := setupTestDB(t)
	env := testEnv(t, db)
	remote := newFakeRemote(t)
	alice := mockLocalActor(t, db, "alice", "example.com")
	note := mockNote(t, db, alice, "hello world")

	keyID := remote.actorURL("bob") + "#main-key"
	rr := postActivity(t, env, remote, keyID, map[string]any{
		"type":   "Announce",
		"actor":  remote.actorURL("bob"),
		"object": note.URI(),
	})
	require.Equal(http.StatusOK, rr.Code)

	count, err := models.NewNotes(db).AnnouncesCount(note)
	require.NoError(err)
	require.EqualValues(1, count)
}

func TestInboxCreateReply(t *testing.T) {
	require := require.New(t)
	db := setupTestDB(t)
	env := testEnv(t, db)
	remote := newFakeRemote(t)
	alice := mockLocalActor(t, db, "alice", "example.com")
	parent := mockNote(t, db, alice, "hello world")

	replyURL := remote.addObject("reply-1", map[string]any{
		"type":         "Note",
		"attributedTo": remote.actorURL("bob"),
		"inReplyTo":    parent.URI(),
		"content":      "hello back",
		"published":    "2023-04-01T10:00:00Z",
	})
	rr := postActivity(t, env, remote, remote.actorURL("bob")+"#main-key", map[string]any{
		"type":  "Create",
		"actor": remote.actorURL("bob"),
		"object": map[string]any{
			"id": replyURL,
		},
	})
	require.Equal(http.StatusOK, rr.Code)

	reply, err := models.NewNotes(db).FindByURL(replyURL)
	require.NoError(err)
	require.Equal("hello back", reply.Content)
	require.NotNil(reply.ParentID)
	require.Equal(parent.ID, *reply.ParentID)
	require.Equal(1, reply.Depth)
	require.NotNil(reply.RemoteActorID)
}

func TestInboxCreateEchoOfLocalNote(t *testing.T) {
	require := require.New(t)
	db := setupTestDB(t)
	env := testEnv(t, db)
	remote := newFakeRemote(t)
	alice := mockLocalActor(t, db, "alice", "example.com")
	note := mockNote(t, db, alice, "hello world")

	// our own object echoed back is acknowledged but not re-ingested
	rr := postActivity(t, env, remote, remote.actorURL("bob")+"#main-key", map[string]any{
		"type":  "Create",
		"actor": remote.actorURL("bob"),
		"object": map[string]any{
			"id": note.URI(),
		},
	})
	require.Equal(http.StatusOK, rr.Code)

	var count int64
	require.NoError(db.Model(&models.Note{}).Count(&count).Error)
	require.EqualValues(1, count)
}

func TestInboxDeleteAcknowledged(t *testing.T) {
	require := require.New(t)
	db := setupTestDB(t)
	env := testEnv(t, db)
	remote := newFakeRemote(t)
	mockLocalActor(t, db, "alice", "example.com")

	rr := postActivity(t, env, remote, remote.actorURL("bob")+"#main-key", map[string]any{
		"type":   "Delete",
		"actor":  remote.actorURL("bob"),
		"object": "https://elsewhere.example/notes/1",
	})
	require.Equal(http.StatusOK, rr.Code)
}

func TestInboxUnsupportedType(t *testing.T) {
	require := require.New(t)
	db := setupTestDB(t)
	env := testEnv(t, db)
	remote := newFakeRemote(t)
	mockLocalActor(t, db, "alice", "example.com")

	rr := postActivity(t, env, remote, remote.actorURL("bob")+"#main-key", map[string]any{
		"type":   "Move",
		"actor":  remote.actorURL("bob"),
		"object": "https://elsewhere.example/pub/bob",
	})
	require.Equal(http.StatusBadRequest, rr.Code)

	rr = postActivity(t, env, remote, remote.actorURL("bob")+"#main-key", map[string]any{
		"type":  "Undo",
		"actor": remote.actorURL("bob"),
		"object": map[string]any{
			"type":   "Block",
			"actor":  remote.actorURL("bob"),
			"object": "https://example.com/pub/alice",
		},
	})
	require.Equal(http.StatusBadRequest, rr.Code)
}

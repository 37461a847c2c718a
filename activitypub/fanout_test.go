package activitypub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/fedipub/fedipub/internal/snowflake"
	"github.com/fedipub/fedipub/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// recordingInbox is an inbox endpoint that counts deliveries, or answers
// with a fixed status instead.
type recordingInbox struct {
	srv      *httptest.Server
	received atomic.Int64
	status   int
}

func newRecordingInbox(t *testing.T, status int) *recordingInbox {
	t.Helper()
	rec := &recordingInbox{status: status}
	rec.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rec.status != 0 {
			w.WriteHeader(rec.status)
			return
		}
		rec.received.Add(1)
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(rec.srv.Close)
	return rec
}

// followerWithInbox stores a remote actor whose inbox is the given URL
// and subscribes it to local.
func followerWithInbox(t *testing.T, db *gorm.DB, local *models.LocalActor, name, inbox string) *models.RemoteActor {
	t.Helper()
	remote := &models.RemoteActor{
		ID:     snowflake.Now(),
		Name:   name,
		Domain: name + ".example",
		URL:    "https://" + name + ".example/pub/" + name,
	}
	remote.Profile.ID = remote.URL
	remote.Profile.Inbox = inbox
	require.NoError(t, db.Create(remote).Error)
	require.NoError(t, models.NewFollowers(db).Follow(local, remote))
	return remote
}

func TestBroadcastCreateIsolatesFailures(t *testing.T) {
	require := require.New(t)
	db := setupTestDB(t)
	env := testEnv(t, db)
	alice := mockLocalActor(t, db, "alice", "example.com")
	note := mockNote(t, db, alice, "hello #world")

	first := newRecordingInbox(t, 0)
	third := newRecordingInbox(t, 0)
	// the second follower's server is down
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	followerWithInbox(t, db, alice, "one", first.srv.URL+"/inbox")
	followerWithInbox(t, db, alice, "two", deadURL+"/inbox")
	followerWithInbox(t, db, alice, "three", third.srv.URL+"/inbox")

	require.NoError(BroadcastCreate(context.Background(), env, note))

	// the unreachable follower did not affect its siblings
	require.EqualValues(1, first.received.Load())
	require.EqualValues(1, third.received.Load())

	// a connection failure is transient; the edge survives
	count, err := models.NewFollowers(db).Count(alice)
	require.NoError(err)
	require.EqualValues(3, count)
}

func TestBroadcastDropsGoneInbox(t *testing.T) {
	require := require.New(t)
	db := setupTestDB(t)
	env := testEnv(t, db)
	alice := mockLocalActor(t, db, "alice", "example.com")
	note := mockNote(t, db, alice, "hello world")

	alive := newRecordingInbox(t, 0)
	gone := newRecordingInbox(t, http.StatusNotFound)

	followerWithInbox(t, db, alice, "one", alive.srv.URL+"/inbox")
	followerWithInbox(t, db, alice, "two", gone.srv.URL+"/inbox")

	require.NoError(BroadcastCreate(context.Background(), env, note))

	require.EqualValues(1, alive.received.Load())
	count, err := models.NewFollowers(db).Count(alice)
	require.NoError(err)
	require.EqualValues(1, count, "a 404 inbox retires the follow edge")
}

func TestBroadcastDeleteTombstones(t *testing.T) {
	require := require.New(t)
	db := setupTestDB(t)
	env := testEnv(t, db)
	alice := mockLocalActor(t, db, "alice", "example.com")
	note := mockNote(t, db, alice, "to be withdrawn")

	gone := newRecordingInbox(t, http.StatusInternalServerError)
	followerWithInbox(t, db, alice, "one", gone.srv.URL+"/inbox")

	require.NoError(BroadcastDelete(context.Background(), env, note))

	// tombstoned even though every delivery failed
	got, err := models.NewNotes(db).Find(note.ID)
	require.NoError(err)
	require.True(got.Tombstone)
}

func TestPublishLocalCreateThenUpdate(t *testing.T) {
	require := require.New(t)
	db := setupTestDB(t)
	env := testEnv(t, db)
	alice := mockLocalActor(t, db, "alice", "example.com")

	inbox := newRecordingInbox(t, 0)
	followerWithInbox(t, db, alice, "one", inbox.srv.URL+"/inbox")

	url := "https://blog.example.com/p/1"
	note, err := PublishLocal(context.Background(), env, alice, "first take", url)
	require.NoError(err)
	require.EqualValues(1, inbox.received.Load())

	// same content URL is an edit, not a new note
	again, err := PublishLocal(context.Background(), env, alice, "second take", url)
	require.NoError(err)
	require.Equal(note.ID, again.ID)
	require.Equal("second take", again.Content)
	require.EqualValues(2, inbox.received.Load())

	var count int64
	require.NoError(db.Model(&models.Note{}).Count(&count).Error)
	require.EqualValues(1, count)
}

func TestDeleteLocalUnknownURLIsNoop(t *testing.T) {
	require := require.New(t)
	db := setupTestDB(t)
	env := testEnv(t, db)
	mockLocalActor(t, db, "alice", "example.com")

	require.NoError(DeleteLocal(context.Background(), env, "https://blog.example.com/p/never-published"))
}

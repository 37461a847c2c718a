package activitypub

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/fedipub/fedipub/internal/cache"
	"github.com/fedipub/fedipub/internal/crypto"
	"github.com/fedipub/fedipub/internal/snowflake"
	"github.com/go-json-experiment/json"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fedipub/fedipub/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	require := require.New(t)
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	require.NoError(err)

	require.NoError(db.AutoMigrate(models.AllTables()...))
	require.NoError(db.Exec("PRAGMA foreign_keys = ON").Error)
	return db
}

func testEnv(t *testing.T, db *gorm.DB) *Env {
	t.Helper()
	env := &models.Env{
		DB:     db,
		Logger: slog.New(slog.NewTextHandler(io.Discard)),
	}
	return &Env{
		Env:       env,
		Directory: NewDirectory(env, cache.New[string, *models.Profile](16)),
	}
}

func mockLocalActor(t *testing.T, db *gorm.DB, name, domain string) *models.LocalActor {
	t.Helper()
	actor, err := models.NewLocalActors(db).Create(name, domain, "Person")
	require.NoError(t, err)
	return actor
}

func mockRemoteActor(t *testing.T, db *gorm.DB, name, domain string) *models.RemoteActor {
	t.Helper()
	actor := &models.RemoteActor{
		ID:     snowflake.Now(),
		Name:   name,
		Domain: domain,
		URL:    fmt.Sprintf("https://%s/pub/%s", domain, name),
	}
	actor.Profile.ID = actor.URL
	actor.Profile.Type = "Person"
	actor.Profile.Inbox = fmt.Sprintf("https://%s/inbox", domain)
	actor.Profile.PreferredUsername = name
	require.NoError(t, db.Create(actor).Error)
	return actor
}

func mockNote(t *testing.T, db *gorm.DB, actor *models.LocalActor, content string) *models.Note {
	t.Helper()
	id := snowflake.Now()
	note := &models.Note{
		ID:           id,
		LocalActorID: &actor.ID,
		LocalActor:   actor,
		Content:      content,
		ContentURL:   actor.StatusURL(id),
	}
	require.NoError(t, models.NewNotes(db).Create(note))
	return note
}

// fakeRemote is an in-process remote instance: it serves actor profiles
// and note objects, and records everything posted to its inboxes.
type fakeRemote struct {
	srv *httptest.Server
	kp  *crypto.Keypair

	mu      sync.Mutex
	inbox   []map[string]any
	objects map[string]map[string]any
}

func newFakeRemote(t *testing.T) *fakeRemote {
	t.Helper()
	kp, err := crypto.GenerateRSAKeypair()
	require.NoError(t, err)

	f := &fakeRemote{
		kp:      kp,
		objects: make(map[string]map[string]any),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/pub/", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Path[len("/pub/"):]
		w.Header().Set("Content-Type", "application/activity+json")
		json.MarshalFull(w, f.profile(name))
	})
	mux.HandleFunc("/inbox", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var data map[string]any
		require.NoError(t, json.Unmarshal(body, &data))
		f.mu.Lock()
		f.inbox = append(f.inbox, data)
		f.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/notes/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		obj, ok := f.objects[f.srv.URL+r.URL.Path]
		f.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/activity+json")
		json.MarshalFull(w, obj)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeRemote) actorURL(name string) string {
	return f.srv.URL + "/pub/" + name
}

func (f *fakeRemote) profile(name string) map[string]any {
	return map[string]any{
		"id":                f.actorURL(name),
		"type":              "Person",
		"inbox":             f.srv.URL + "/inbox",
		"preferredUsername": name,
		"publicKey": map[string]any{
			"id":           f.actorURL(name) + "#main-key",
			"owner":        f.actorURL(name),
			"publicKeyPem": string(f.kp.PublicKey),
		},
	}
}

// addObject registers a note object served at {srv}/notes/{name} and
// returns its URL.
func (f *fakeRemote) addObject(name string, obj map[string]any) string {
	url := fmt.Sprintf("%s/notes/%s", f.srv.URL, name)
	obj["id"] = url
	f.mu.Lock()
	f.objects[url] = obj
	f.mu.Unlock()
	return url
}

func (f *fakeRemote) inboxActivities() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.inbox...)
}

package models

import (
	"fmt"
	"testing"

	"github.com/fedipub/fedipub/internal/crypto"
	"github.com/fedipub/fedipub/internal/snowflake"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MockLocalActor creates a local actor in the database.
func MockLocalActor(t *testing.T, tx *gorm.DB, name, domain string) *LocalActor {
	t.Helper()
	require := require.New(t)

	kp, err := crypto.GenerateRSAKeypair()
	require.NoError(err)

	actor := &LocalActor{
		ID:          snowflake.Now(),
		Type:        "Person",
		Name:        name,
		Domain:      domain,
		DisplayName: name,
		PublicKey:   kp.PublicKey,
		PrivateKey:  kp.PrivateKey,
	}
	require.NoError(tx.Create(actor).Error)
	return actor
}

// MockRemoteActor creates a remote actor in the database.
func MockRemoteActor(t *testing.T, tx *gorm.DB, name, domain string) *RemoteActor {
	t.Helper()
	require := require.New(t)

	actor := &RemoteActor{
		ID:     snowflake.Now(),
		Name:   name,
		Domain: domain,
		URL:    fmt.Sprintf("https://%s/pub/%s", domain, name),
	}
	actor.Profile.ID = actor.URL
	actor.Profile.Type = "Person"
	actor.Profile.Inbox = fmt.Sprintf("https://%s/inbox", domain)
	actor.Profile.PreferredUsername = name
	require.NoError(tx.Create(actor).Error)
	return actor
}

// MockNote creates a note owned by a local actor.
func MockNote(t *testing.T, tx *gorm.DB, actor *LocalActor, content string) *Note {
	t.Helper()
	require := require.New(t)

	id := snowflake.Now()
	note := &Note{
		ID:           id,
		LocalActorID: &actor.ID,
		LocalActor:   actor,
		Content:      content,
		ContentURL:   actor.StatusURL(id),
	}
	require.NoError(NewNotes(tx).Create(note))
	return note
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	require := require.New(t)
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	require.NoError(err)

	err = db.AutoMigrate(AllTables()...)
	require.NoError(err)

	// enable foreign key constraints
	err = db.Exec("PRAGMA foreign_keys = ON").Error
	require.NoError(err)

	return db
}

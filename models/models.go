package models

import (
	"golang.org/x/exp/slog"
	"gorm.io/gorm"
)

// Env is the environment handlers and repositories operate in.
type Env struct {
	// DB is the database connection.
	DB *gorm.DB
	// Logger is the structured logger for the process.
	Logger *slog.Logger
}

func (e *Env) Log() *slog.Logger {
	return e.Logger
}

// AllTables returns a slice of all the model types, suitable for migration.
func AllTables() []any {
	return []any{
		&LocalActor{},
		&Account{},
		&RemoteActor{},
		&Follower{},
		&Following{},
		&Note{},
		&NoteLike{},
		&NoteAnnounce{},
		&NoteAttachment{},
	}
}

package models

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/fedipub/fedipub/internal/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// A Note is a node in a threaded conversation forest. It is attributed to
// exactly one of a local or a remote actor; its ID doubles as the
// externally visible content id and never changes once assigned. A
// tombstoned note keeps its identity and thread position, but its content
// is considered withdrawn; children remain attached.
type Note struct {
	ID            snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	PublishedAt   time.Time    `gorm:"not null"`
	UpdatedAt     time.Time    `gorm:"autoUpdateTime:false"`
	LocalActorID  *snowflake.ID
	LocalActor    *LocalActor `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
	RemoteActorID *snowflake.ID
	RemoteActor   *RemoteActor `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
	ParentID      *snowflake.ID
	Parent        *Note `gorm:"constraint:OnDelete:SET NULL;<-:false;"`
	Depth         int   `gorm:"not null;default:0"`
	Content       string `gorm:"type:text"`
	ContentURL    string `gorm:"uniqueIndex;size:255;not null"`
	Sensitive     bool   `gorm:"not null;default:false"`
	Tombstone     bool   `gorm:"not null;default:false"`
	Attachments   []NoteAttachment `gorm:"constraint:OnDelete:CASCADE;"`
}

// Actor returns whichever of the note's actors is set.
func (n *Note) Actor() Actor {
	if n.LocalActor != nil {
		return n.LocalActor
	}
	if n.RemoteActor != nil {
		return n.RemoteActor
	}
	return nil
}

// IsLocal reports whether the note was authored on this instance.
func (n *Note) IsLocal() bool {
	return n.LocalActorID != nil
}

// URI returns the note's canonical ActivityPub object URL.
func (n *Note) URI() string {
	if n.LocalActor != nil {
		return n.LocalActor.StatusURL(n.ID)
	}
	return n.ContentURL
}

// MaxDepth returns the thread depth exposed to clients, capped at 5
// regardless of the true depth.
func (n *Note) MaxDepth() int {
	if n.Depth > 5 {
		return 5
	}
	return n.Depth
}

// NoteLike records that a remote actor liked a note. The composite
// primary key gives the set its idempotent semantics.
type NoteLike struct {
	NoteID        snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	Note          *Note        `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
	RemoteActorID snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	RemoteActor   *RemoteActor `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
	CreatedAt     time.Time
}

// NoteAnnounce records that a remote actor announced (boosted) a note.
type NoteAnnounce struct {
	NoteID        snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	Note          *Note        `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
	RemoteActorID snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	RemoteActor   *RemoteActor `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
	CreatedAt     time.Time
}

// A NoteAttachment records the metadata of an image attached to a note.
// The image bytes themselves live with an external media store; only the
// metadata needed for serialization is kept here.
type NoteAttachment struct {
	ID        uint32       `gorm:"primarykey"`
	NoteID    snowflake.ID `gorm:"index;not null"`
	URL       string       `gorm:"size:255;not null"`
	MediaType string       `gorm:"size:64"`
	Width     int
	Height    int
	Position  int `gorm:"not null;default:0"`
}

// ParseStatusURI extracts the username, domain and content id from a
// local status URL of the form https://{domain}/pub/{user}/statuses/{id}.
func ParseStatusURI(uri string) (username, domain string, id snowflake.ID, ok bool) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", 0, false
	}
	rest, found := strings.CutPrefix(u.Path, "/pub/")
	if !found {
		return "", "", 0, false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[1] != "statuses" {
		return "", "", 0, false
	}
	id, err = snowflake.Parse(parts[2])
	if err != nil {
		return "", "", 0, false
	}
	return parts[0], u.Host, id, true
}

type Notes struct {
	db *gorm.DB
}

func NewNotes(db *gorm.DB) *Notes {
	return &Notes{db: db}
}

// scope that preloads a note's relations.
func preloadNote(query *gorm.DB) *gorm.DB {
	return query.Preload("LocalActor").Preload("RemoteActor").
		Preload("Parent").Preload("Attachments", func(db *gorm.DB) *gorm.DB {
		return db.Order("note_attachments.position")
	})
}

// Find returns the note with the given content id.
func (n *Notes) Find(id snowflake.ID) (*Note, error) {
	var note Note
	return &note, n.db.Scopes(preloadNote).Take(&note, "id = ?", id).Error
}

// FindByURL returns the note with the given content URL.
func (n *Notes) FindByURL(contentURL string) (*Note, error) {
	if contentURL == "" {
		return nil, errors.New("Notes.FindByURL: url is empty")
	}
	// use find to avoid the not found error on empty result
	var notes []Note
	if err := n.db.Scopes(preloadNote).Where("content_url = ?", contentURL).Find(&notes).Error; err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &notes[0], nil
}

// Create stores a new note, assigning its immutable content id.
func (n *Notes) Create(note *Note) error {
	if note.ID == 0 {
		note.ID = snowflake.Now()
	}
	if note.PublishedAt.IsZero() {
		note.PublishedAt = time.Now()
	}
	if note.UpdatedAt.IsZero() {
		note.UpdatedAt = note.PublishedAt
	}
	if note.Parent != nil {
		note.Depth = note.Parent.Depth + 1
	}
	return n.db.Create(note).Error
}

// UpsertLocal creates or updates a note authored by a local actor,
// matching on its content URL. It reports whether the note was created,
// so the caller can choose between a Create and an Update fan-out.
func (n *Notes) UpsertLocal(actor *LocalActor, content, contentURL string) (*Note, bool, error) {
	note, err := n.FindByURL(contentURL)
	switch {
	case err == nil:
		note.Content = content
		note.UpdatedAt = time.Now()
		if err := n.db.Model(note).UpdateColumns(map[string]any{
			"content":    note.Content,
			"updated_at": note.UpdatedAt,
		}).Error; err != nil {
			return nil, false, err
		}
		return note, false, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		note = &Note{
			LocalActorID: &actor.ID,
			LocalActor:   actor,
			Content:      content,
			ContentURL:   contentURL,
		}
		if err := n.Create(note); err != nil {
			return nil, false, err
		}
		return note, true, nil
	default:
		return nil, false, err
	}
}

// Tombstone marks the note's content as withdrawn. The row, its identity
// and its thread position are all retained.
func (n *Notes) Tombstone(note *Note) error {
	note.Tombstone = true
	return n.db.Model(note).UpdateColumn("tombstone", true).Error
}

// Like adds remote to the note's set of liking actors. Idempotent.
func (n *Notes) Like(note *Note, remote *RemoteActor) error {
	return n.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&NoteLike{
		NoteID:        note.ID,
		RemoteActorID: remote.ID,
	}).Error
}

// Unlike removes remote from the note's likes, returning
// gorm.ErrRecordNotFound if it was not a member.
func (n *Notes) Unlike(note *Note, remote *RemoteActor) error {
	res := n.db.Where("note_id = ? AND remote_actor_id = ?", note.ID, remote.ID).Delete(&NoteLike{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Announce adds remote to the note's set of announcing actors. Idempotent.
func (n *Notes) Announce(note *Note, remote *RemoteActor) error {
	return n.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&NoteAnnounce{
		NoteID:        note.ID,
		RemoteActorID: remote.ID,
	}).Error
}

// Unannounce removes remote from the note's announces, returning
// gorm.ErrRecordNotFound if it was not a member.
func (n *Notes) Unannounce(note *Note, remote *RemoteActor) error {
	res := n.db.Where("note_id = ? AND remote_actor_id = ?", note.ID, remote.ID).Delete(&NoteAnnounce{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// LikesCount returns the size of the note's likes set.
func (n *Notes) LikesCount(note *Note) (int64, error) {
	var count int64
	err := n.db.Model(&NoteLike{}).Where("note_id = ?", note.ID).Count(&count).Error
	return count, err
}

// AnnouncesCount returns the size of the note's announces set.
func (n *Notes) AnnouncesCount(note *Note) (int64, error) {
	var count int64
	err := n.db.Model(&NoteAnnounce{}).Where("note_id = ?", note.ID).Count(&count).Error
	return count, err
}

// RepliesCount returns the number of direct children of the note.
func (n *Notes) RepliesCount(note *Note) (int64, error) {
	var count int64
	err := n.db.Model(&Note{}).Where("parent_id = ?", note.ID).Count(&count).Error
	return count, err
}

// RepliesPage returns one page of the note's direct children, most
// recently published first.
func (n *Notes) RepliesPage(note *Note, page, size int) ([]Note, error) {
	var replies []Note
	err := n.db.Scopes(preloadNote).Where("parent_id = ?", note.ID).
		Order("published_at desc").Scopes(PageScope(page, size)).Find(&replies).Error
	return replies, err
}

// OutboxCount returns the number of visible notes authored by actor.
func (n *Notes) OutboxCount(actor *LocalActor) (int64, error) {
	var count int64
	err := n.db.Model(&Note{}).Where("local_actor_id = ? AND tombstone = false", actor.ID).Count(&count).Error
	return count, err
}

// OutboxPage returns one page of actor's visible notes, most recently
// published first.
func (n *Notes) OutboxPage(actor *LocalActor, page, size int) ([]Note, error) {
	var notes []Note
	err := n.db.Scopes(preloadNote).Where("local_actor_id = ? AND tombstone = false", actor.ID).
		Order("published_at desc").Scopes(PageScope(page, size)).Find(&notes).Error
	return notes, err
}

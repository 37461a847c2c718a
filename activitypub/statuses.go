package activitypub

import (
	"fmt"
	"net/http"

	"github.com/fedipub/fedipub/internal/algorithms"
	"github.com/fedipub/fedipub/internal/httpx"
	"github.com/fedipub/fedipub/internal/snowflake"
	"github.com/fedipub/fedipub/internal/to"
	"github.com/fedipub/fedipub/models"
	"github.com/go-chi/chi/v5"
)

func requestedNote(env *Env, r *http.Request) (*models.Note, error) {
	id, err := snowflake.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return nil, httpx.Error(http.StatusNotFound, fmt.Errorf("invalid status id %q", chi.URLParam(r, "id")))
	}
	note, err := models.NewNotes(env.DB).Find(id)
	if err != nil {
		return nil, httpx.Error(http.StatusNotFound, fmt.Errorf("no status %s", id))
	}
	return note, nil
}

// StatusesShow serves a note's full status document: the note object
// plus summaries of its replies, likes and shares collections.
func StatusesShow(env *Env, w http.ResponseWriter, r *http.Request) error {
	note, err := requestedNote(env, r)
	if err != nil {
		return err
	}
	pub, err := publisher(env.DB, note)
	if err != nil {
		return err
	}
	notes := models.NewNotes(env.DB)
	likes, err := notes.LikesCount(note)
	if err != nil {
		return err
	}
	shares, err := notes.AnnouncesCount(note)
	if err != nil {
		return err
	}
	replies, err := notes.RepliesCount(note)
	if err != nil {
		return err
	}
	obj := noteObject(note, pub, noteTags(r.Context(), env, note.Content, pub.Domain))
	obj["@context"] = activityContext
	obj["depth"] = note.MaxDepth()
	obj["replies"] = collectionSummary(note.URI()+"/replies", replies)
	obj["likes"] = collectionSummary(note.URI()+"/likes", likes)
	obj["shares"] = collectionSummary(note.URI()+"/shares", shares)
	return to.ActivityJSON(w, obj)
}

// StatusesActivity serves the note wrapped in its Create activity.
func StatusesActivity(env *Env, w http.ResponseWriter, r *http.Request) error {
	note, err := requestedNote(env, r)
	if err != nil {
		return err
	}
	pub, err := publisher(env.DB, note)
	if err != nil {
		return err
	}
	data := noteActivity(note, pub, noteTags(r.Context(), env, note.Content, pub.Domain))
	data["@context"] = activityContext
	return to.ActivityJSON(w, data)
}

// StatusesReplies serves the note's direct replies as a paged collection
// of status URLs. Children of a tombstoned note remain listed.
func StatusesReplies(env *Env, w http.ResponseWriter, r *http.Request) error {
	note, err := requestedNote(env, r)
	if err != nil {
		return err
	}
	notes := models.NewNotes(env.DB)
	total, err := notes.RepliesCount(note)
	if err != nil {
		return err
	}
	return pagedCollection(w, r, note.URI()+"/replies", total, func(page int) ([]any, error) {
		list, err := notes.RepliesPage(note, page, models.DefaultPageSize)
		if err != nil {
			return nil, err
		}
		return algorithms.Map(list, func(reply models.Note) any {
			return reply.URI()
		}), nil
	})
}

// StatusesLikes serves the note's likes collection summary.
func StatusesLikes(env *Env, w http.ResponseWriter, r *http.Request) error {
	note, err := requestedNote(env, r)
	if err != nil {
		return err
	}
	count, err := models.NewNotes(env.DB).LikesCount(note)
	if err != nil {
		return err
	}
	summary := collectionSummary(note.URI()+"/likes", count)
	summary["@context"] = activityContext
	return to.ActivityJSON(w, summary)
}

// StatusesShares serves the note's announces collection summary.
func StatusesShares(env *Env, w http.ResponseWriter, r *http.Request) error {
	note, err := requestedNote(env, r)
	if err != nil {
		return err
	}
	count, err := models.NewNotes(env.DB).AnnouncesCount(note)
	if err != nil {
		return err
	}
	summary := collectionSummary(note.URI()+"/shares", count)
	summary["@context"] = activityContext
	return to.ActivityJSON(w, summary)
}

func collectionSummary(id string, total int64) map[string]any {
	return map[string]any{
		"id":         id,
		"type":       "Collection",
		"totalItems": total,
		"first":      id + "?page=1",
	}
}

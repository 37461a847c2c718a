package activitypub

import (
	"fmt"
	"net/http"

	"github.com/fedipub/fedipub/internal/algorithms"
	"github.com/fedipub/fedipub/internal/httpx"
	"github.com/fedipub/fedipub/models"
	"github.com/go-chi/chi/v5"
)

func requestedActor(env *Env, r *http.Request) (*models.LocalActor, error) {
	name := chi.URLParam(r, "username")
	actor, err := models.NewLocalActors(env.DB).Find(name, r.Host)
	if err != nil {
		return nil, httpx.Error(http.StatusNotFound, fmt.Errorf("no actor %s@%s", name, r.Host))
	}
	return actor, nil
}

// OutboxIndex serves an actor's visible notes as a paged collection of
// Create activities, most recently published first. Tombstoned notes are
// not listed.
func OutboxIndex(env *Env, w http.ResponseWriter, r *http.Request) error {
	actor, err := requestedActor(env, r)
	if err != nil {
		return err
	}
	notes := models.NewNotes(env.DB)
	total, err := notes.OutboxCount(actor)
	if err != nil {
		return err
	}
	return pagedCollection(w, r, actor.OutboxURL(), total, func(page int) ([]any, error) {
		list, err := notes.OutboxPage(actor, page, models.DefaultPageSize)
		if err != nil {
			return nil, err
		}
		return algorithms.Map(list, func(note models.Note) any {
			tags := noteTags(r.Context(), env, note.Content, actor.Domain)
			return noteActivity(&note, actor, tags)
		}), nil
	})
}

// FollowersIndex serves the actor's followers as a paged collection of
// profile URLs.
func FollowersIndex(env *Env, w http.ResponseWriter, r *http.Request) error {
	actor, err := requestedActor(env, r)
	if err != nil {
		return err
	}
	followers := models.NewFollowers(env.DB)
	total, err := followers.Count(actor)
	if err != nil {
		return err
	}
	return pagedCollection(w, r, actor.FollowersURL(), total, func(page int) ([]any, error) {
		list, err := followers.Page(actor, page, models.DefaultPageSize)
		if err != nil {
			return nil, err
		}
		return algorithms.Map(list, func(f models.Follower) any {
			return f.RemoteActor.URL
		}), nil
	})
}

// FollowingIndex serves the actors this actor follows as a paged
// collection of profile URLs.
func FollowingIndex(env *Env, w http.ResponseWriter, r *http.Request) error {
	actor, err := requestedActor(env, r)
	if err != nil {
		return err
	}
	followings := models.NewFollowings(env.DB)
	total, err := followings.Count(actor)
	if err != nil {
		return err
	}
	return pagedCollection(w, r, actor.FollowingURL(), total, func(page int) ([]any, error) {
		list, err := followings.Page(actor, page, models.DefaultPageSize)
		if err != nil {
			return nil, err
		}
		return algorithms.Map(list, func(f models.Following) any {
			return f.RemoteActor.URL
		}), nil
	})
}

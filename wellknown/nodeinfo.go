package wellknown

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/fedipub/fedipub/activitypub"
	"github.com/fedipub/fedipub/internal/httpx"
	"github.com/fedipub/fedipub/internal/to"
	"github.com/fedipub/fedipub/models"
	"github.com/go-chi/chi/v5"
)

func NodeInfoIndex(env *activitypub.Env, w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("cache-control", "max-age=259200, public")
	return to.JSON(w, map[string]any{
		"links": []any{
			map[string]any{
				"rel":  "http://nodeinfo.diaspora.software/ns/schema/2.0",
				"href": fmt.Sprintf("https://%s/nodeinfo/2.0", r.Host),
			},
		},
	})
}

func NodeInfoShow(env *activitypub.Env, w http.ResponseWriter, r *http.Request) error {
	if chi.URLParam(r, "version") != "2.0" {
		return httpx.Error(http.StatusNotFound, errors.New("unsupported version: "+chi.URLParam(r, "version")))
	}
	var users int64
	if err := env.DB.Model(&models.LocalActor{}).Where("domain = ?", r.Host).Count(&users).Error; err != nil {
		return err
	}
	var posts int64
	if err := env.DB.Model(&models.Note{}).Where("local_actor_id IS NOT NULL AND tombstone = false").Count(&posts).Error; err != nil {
		return err
	}
	w.Header().Set("cache-control", "max-age=259200, public")
	return to.JSON(w, map[string]any{
		"version": "2.0",
		"software": map[string]any{
			"name":    "fedipub",
			"version": "0.0.0-devel",
		},
		"protocols": []any{"activitypub"},
		"services": map[string]any{
			"inbound":  []any{},
			"outbound": []any{},
		},
		"usage": map[string]any{
			"users":      map[string]any{"total": users},
			"localPosts": posts,
		},
		"openRegistrations": false,
		"metadata":          map[string]any{},
	})
}

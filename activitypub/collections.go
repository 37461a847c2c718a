package activitypub

import (
	"fmt"
	"net/http"

	"github.com/fedipub/fedipub/internal/httpx"
	"github.com/fedipub/fedipub/internal/to"
	"github.com/fedipub/fedipub/models"
)

type collectionQuery struct {
	Page *int `schema:"page"`
}

// pagedCollection serves the shared OrderedCollection pagination
// protocol. Without a page parameter it returns the collection summary;
// with one it returns that page, carrying a next pointer on every page
// but the last. An empty collection still has exactly one (empty) page.
func pagedCollection(w http.ResponseWriter, r *http.Request, collectionURL string, total int64, items func(page int) ([]any, error)) error {
	var query collectionQuery
	if err := httpx.Params(r, &query); err != nil {
		return err
	}
	if query.Page == nil {
		return to.ActivityJSON(w, map[string]any{
			"@context":   activityContext,
			"id":         collectionURL,
			"type":       "OrderedCollection",
			"totalItems": total,
			"first":      fmt.Sprintf("%s?page=1", collectionURL),
		})
	}
	page := *query.Page
	pages := models.Pages(total, models.DefaultPageSize)
	if page < 1 || page > pages {
		return httpx.Error(http.StatusNotFound, fmt.Errorf("invalid page number %d", page))
	}
	list, err := items(page)
	if err != nil {
		return err
	}
	if list == nil {
		list = []any{}
	}
	resp := map[string]any{
		"@context":     activityContext,
		"id":           fmt.Sprintf("%s?page=%d", collectionURL, page),
		"type":         "OrderedCollectionPage",
		"partOf":       collectionURL,
		"totalItems":   total,
		"orderedItems": list,
	}
	if page < pages {
		resp["next"] = fmt.Sprintf("%s?page=%d", collectionURL, page+1)
	}
	return to.ActivityJSON(w, resp)
}

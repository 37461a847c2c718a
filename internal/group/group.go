// package group provides a way to manage the lifecycle of a group of goroutines.
package group

import (
	"context"
	"sync"
)

// Each calls fn for every element of items with at most limit calls in
// flight at once. Unlike an error group, Each never cancels early: every
// element gets its call regardless of what happened to its siblings, and
// Each returns only when all calls have completed. fn is responsible for
// its own error handling.
func Each[T any](ctx context.Context, limit int, items []T, fn func(context.Context, T)) {
	if limit < 1 {
		limit = 1
	}
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for _, item := range items {
		item := item
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			fn(ctx, item)
		}()
	}
	wg.Wait()
}

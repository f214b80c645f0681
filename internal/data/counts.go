package data

import (
	"context"

	"github.com/aoideee/locallibrary/internal/docstore"
	"golang.org/x/sync/errgroup"
)

// Counts summarises the size of every collection.
type Counts struct {
	BookCount                  int64 `json:"book_count"`
	BookInstanceCount          int64 `json:"book_instance_count"`
	BookInstanceAvailableCount int64 `json:"book_instance_available_count"`
	AuthorCount                int64 `json:"author_count"`
	GenreCount                 int64 `json:"genre_count"`
}

// Counts runs the five count queries concurrently. They are read-only, so
// their relative order does not matter.
func (m Models) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	g, ctx := errgroup.WithContext(ctx)

	count := func(dst *int64, collection string, filter docstore.Filter) {
		g.Go(func() error {
			n, err := m.store.Count(ctx, collection, filter)
			if err != nil {
				return err
			}
			*dst = n
			return nil
		})
	}

	count(&c.BookCount, booksCollection, nil)
	count(&c.BookInstanceCount, bookInstancesCollection, nil)
	count(&c.BookInstanceAvailableCount, bookInstancesCollection, docstore.Filter{docstore.Eq("status", StatusAvailable)})
	count(&c.AuthorCount, authorsCollection, nil)
	count(&c.GenreCount, genresCollection, nil)

	if err := g.Wait(); err != nil {
		return Counts{}, err
	}
	return c, nil
}

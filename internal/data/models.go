// internal/data/models.go
package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/aoideee/locallibrary/internal/docstore"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Collection names.
const (
	authorsCollection       = "authors"
	booksCollection         = "books"
	genresCollection        = "genres"
	bookInstancesCollection = "bookinstances"
)

// Models is a top-level container that groups all model types together.
// It is passed around the application via applicationDependencies so every
// handler has access to the store without importing docstore directly.
type Models struct {
	Authors       AuthorModel
	Books         BookModel
	Genres        GenreModel
	BookInstances BookInstanceModel

	store docstore.Store
}

// NewModels constructs a Models value wired up to the given document store.
// Call this once during application startup.
func NewModels(store docstore.Store) Models {
	return Models{
		Authors:       AuthorModel{Store: store},
		Books:         BookModel{Store: store},
		Genres:        GenreModel{Store: store},
		BookInstances: BookInstanceModel{Store: store},
		store:         store,
	}
}

var (
	// ErrRecordNotFound is returned when no document has the requested id.
	ErrRecordNotFound = errors.New("record not found")

	// ErrPartialCascade wraps a failure that happened after the parent
	// document was already deleted. Nothing is rolled back.
	ErrPartialCascade = errors.New("cascade delete incomplete")
)

// Expand names the reference fields a read should replace with the
// referenced documents.
type Expand map[string]bool

// With returns an Expand for the given reference fields.
func With(fields ...string) Expand {
	e := make(Expand, len(fields))
	for _, f := range fields {
		e[f] = true
	}
	return e
}

// Has reports whether field is expanded. A nil Expand expands nothing.
func (e Expand) Has(field string) bool {
	return e[field]
}

// notFound translates the store's not-found error into ErrRecordNotFound.
func notFound(err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrRecordNotFound
	}
	return err
}

func findAll[T any](ctx context.Context, s docstore.Store, collection string, q docstore.Query) ([]T, error) {
	raws, err := s.Find(ctx, collection, q)
	if err != nil {
		return nil, err
	}
	return docstore.Decode[T](raws)
}

func findByID[T any](ctx context.Context, s docstore.Store, collection string, id primitive.ObjectID) (*T, error) {
	raw, err := s.FindByID(ctx, collection, id)
	if err != nil {
		return nil, notFound(err)
	}
	docs, err := docstore.Decode[T]([]bson.Raw{raw})
	if err != nil {
		return nil, err
	}
	return &docs[0], nil
}

// findByIDs loads the documents whose ids are listed, keyed by id. Ids with
// no document are simply absent from the result.
func findByIDs[T any](ctx context.Context, s docstore.Store, collection string, ids []primitive.ObjectID, idOf func(T) primitive.ObjectID) (map[primitive.ObjectID]T, error) {
	out := make(map[primitive.ObjectID]T, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	docs, err := findAll[T](ctx, s, collection, docstore.Query{
		Filter: docstore.Filter{docstore.In("_id", ids)},
	})
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		out[idOf(d)] = d
	}
	return out, nil
}

// uniqueIDs returns ids without duplicates, keeping first-seen order.
func uniqueIDs(ids []primitive.ObjectID) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]bool, len(ids))
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func cascadeErr(step string, id primitive.ObjectID, err error) error {
	return fmt.Errorf("%w: %s for %s: %w", ErrPartialCascade, step, id.Hex(), err)
}

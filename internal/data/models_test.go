package data

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aoideee/locallibrary/internal/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newTestModels(t *testing.T) (Models, *docstore.Memory) {
	t.Helper()
	store := docstore.NewMemory()
	return NewModels(store), store
}

func mustAuthor(t *testing.T, m Models, first, family string) *Author {
	t.Helper()
	a := &Author{FirstName: first, FamilyName: family}
	require.NoError(t, m.Authors.Insert(context.Background(), a))
	return a
}

func mustGenre(t *testing.T, m Models, name string) *Genre {
	t.Helper()
	g := &Genre{Name: name}
	require.NoError(t, m.Genres.Insert(context.Background(), g))
	return g
}

func mustBook(t *testing.T, m Models, title string, author primitive.ObjectID, genres ...primitive.ObjectID) *Book {
	t.Helper()
	b := &Book{Title: title, Author: author, Summary: title + " summary", ISBN: "978" + title, Genre: genres}
	require.NoError(t, m.Books.Insert(context.Background(), b))
	return b
}

func mustInstance(t *testing.T, m Models, book primitive.ObjectID, status string) *BookInstance {
	t.Helper()
	bi := &BookInstance{Book: book, Imprint: "First edition", Status: status}
	require.NoError(t, m.BookInstances.Insert(context.Background(), bi))
	return bi
}

func TestAuthorModel_ListOrderedByFamilyName(t *testing.T) {
	m, _ := newTestModels(t)

	mustAuthor(t, m, "Isaac", "Asimov")
	mustAuthor(t, m, "Ben", "Bova")
	mustAuthor(t, m, "Patrick", "Rothfuss")
	mustAuthor(t, m, "Bob", "Billings")

	authors, err := m.Authors.List(context.Background())
	require.NoError(t, err)

	var names []string
	for _, a := range authors {
		names = append(names, a.FamilyName)
	}
	assert.Equal(t, []string{"Asimov", "Billings", "Bova", "Rothfuss"}, names)
}

func TestModels_ListEmpty(t *testing.T) {
	m, _ := newTestModels(t)
	ctx := context.Background()

	authors, err := m.Authors.List(ctx)
	require.NoError(t, err)
	assert.NotNil(t, authors)
	assert.Empty(t, authors)

	books, err := m.Books.List(ctx, With("author"))
	require.NoError(t, err)
	assert.NotNil(t, books)
	assert.Empty(t, books)
}

func TestModels_DeleteMissingIsNotFound(t *testing.T) {
	m, _ := newTestModels(t)
	ctx := context.Background()
	id := primitive.NewObjectID()

	assert.ErrorIs(t, m.Authors.Delete(ctx, id), ErrRecordNotFound)
	assert.ErrorIs(t, m.Books.Delete(ctx, id), ErrRecordNotFound)
	assert.ErrorIs(t, m.Genres.Delete(ctx, id), ErrRecordNotFound)
	assert.ErrorIs(t, m.BookInstances.Delete(ctx, id), ErrRecordNotFound)

	_, err := m.Books.Get(ctx, id, nil)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestAuthorModel_DeleteCascades(t *testing.T) {
	m, _ := newTestModels(t)
	ctx := context.Background()

	author := mustAuthor(t, m, "Ursula", "LeGuin")
	other := mustAuthor(t, m, "Frank", "Herbert")

	b1 := mustBook(t, m, "Earthsea", author.ID)
	b2 := mustBook(t, m, "Dispossessed", author.ID)
	kept := mustBook(t, m, "Dune", other.ID)

	mustInstance(t, m, b1.ID, StatusAvailable)
	mustInstance(t, m, b2.ID, StatusLoaned)
	keptCopy := mustInstance(t, m, kept.ID, StatusAvailable)

	require.NoError(t, m.Authors.Delete(ctx, author.ID))

	_, err := m.Authors.Get(ctx, author.ID)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	books, err := m.Books.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, kept.ID, books[0].ID)

	instances, err := m.BookInstances.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, keptCopy.ID, instances[0].ID)
}

func TestBookModel_DeleteCascadesToInstances(t *testing.T) {
	m, _ := newTestModels(t)
	ctx := context.Background()

	author := mustAuthor(t, m, "Ursula", "LeGuin")
	book := mustBook(t, m, "Earthsea", author.ID)
	other := mustBook(t, m, "Lathe", author.ID)
	mustInstance(t, m, book.ID, StatusAvailable)
	mustInstance(t, m, book.ID, StatusReserved)
	mustInstance(t, m, other.ID, StatusAvailable)

	require.NoError(t, m.Books.Delete(ctx, book.ID))

	left, err := m.BookInstances.ListByBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Empty(t, left)

	remaining, err := m.BookInstances.ListByBook(ctx, other.ID)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)

	_, err = m.Authors.Get(ctx, author.ID)
	assert.NoError(t, err)
}

// failingDeleteMany lets every call through except DeleteMany.
type failingDeleteMany struct {
	docstore.Store
}

func (f failingDeleteMany) DeleteMany(ctx context.Context, collection string, filter docstore.Filter) (int64, error) {
	return 0, errors.New("connection reset")
}

func TestBookModel_PartialCascadeIsReported(t *testing.T) {
	m, store := newTestModels(t)
	ctx := context.Background()

	author := mustAuthor(t, m, "Ursula", "LeGuin")
	book := mustBook(t, m, "Earthsea", author.ID)
	mustInstance(t, m, book.ID, StatusAvailable)

	broken := NewModels(failingDeleteMany{store})
	err := broken.Books.Delete(ctx, book.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPartialCascade)

	// The book is gone, its copy is not: no rollback.
	_, err = m.Books.Get(ctx, book.ID, nil)
	assert.ErrorIs(t, err, ErrRecordNotFound)
	left, err := m.BookInstances.ListByBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestGenreModel_DeleteLeavesDanglingReferences(t *testing.T) {
	m, _ := newTestModels(t)
	ctx := context.Background()

	author := mustAuthor(t, m, "Ursula", "LeGuin")
	fantasy := mustGenre(t, m, "Fantasy")
	scifi := mustGenre(t, m, "Science Fiction")
	book := mustBook(t, m, "Earthsea", author.ID, fantasy.ID, scifi.ID)

	require.NoError(t, m.Genres.Delete(ctx, scifi.ID))

	got, err := m.Books.Get(ctx, book.ID, With("author", "genre"))
	require.NoError(t, err)
	assert.Equal(t, []primitive.ObjectID{fantasy.ID, scifi.ID}, got.Genre)
	require.Len(t, got.GenreDocs, 1)
	assert.Equal(t, "Fantasy", got.GenreDocs[0].Name)
	require.NotNil(t, got.AuthorDoc)
	assert.Equal(t, "LeGuin", got.AuthorDoc.FamilyName)
}

func TestBookModel_ListSortedWithAuthorExpanded(t *testing.T) {
	m, _ := newTestModels(t)
	ctx := context.Background()

	author := mustAuthor(t, m, "Ursula", "LeGuin")
	mustBook(t, m, "Tehanu", author.ID)
	mustBook(t, m, "Earthsea", author.ID)
	mustBook(t, m, "Orphan", primitive.NewObjectID())

	books, err := m.Books.List(ctx, With("author"))
	require.NoError(t, err)
	require.Len(t, books, 3)

	assert.Equal(t, "Earthsea", books[0].Title)
	assert.Equal(t, "Orphan", books[1].Title)
	assert.Equal(t, "Tehanu", books[2].Title)

	require.NotNil(t, books[0].AuthorDoc)
	assert.Nil(t, books[1].AuthorDoc)

	js, err := json.Marshal(books[1])
	require.NoError(t, err)
	assert.Contains(t, string(js), `"author":null`)
}

func TestBookModel_ListByAuthorAndGenre(t *testing.T) {
	m, _ := newTestModels(t)
	ctx := context.Background()

	author := mustAuthor(t, m, "Ursula", "LeGuin")
	fantasy := mustGenre(t, m, "Fantasy")
	mustBook(t, m, "Earthsea", author.ID, fantasy.ID)
	mustBook(t, m, "Lathe", author.ID)
	mustBook(t, m, "Dune", primitive.NewObjectID(), fantasy.ID)

	byAuthor, err := m.Books.ListByAuthor(ctx, author.ID)
	require.NoError(t, err)
	assert.Len(t, byAuthor, 2)
	assert.Equal(t, "Earthsea summary", byAuthor[0].Summary)

	byGenre, err := m.Books.ListByGenre(ctx, fantasy.ID)
	require.NoError(t, err)
	require.Len(t, byGenre, 2)
	assert.Equal(t, "Earthsea", byGenre[0].Title)
	assert.Equal(t, "Dune", byGenre[1].Title)
}

func TestBookModel_GenreOmittedStoredAsEmpty(t *testing.T) {
	m, _ := newTestModels(t)
	ctx := context.Background()

	book := &Book{Title: "Solo", Author: primitive.NewObjectID(), Summary: "s", ISBN: "1"}
	require.NoError(t, m.Books.Insert(ctx, book))

	got, err := m.Books.Get(ctx, book.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, got.Genre)

	js, err := json.Marshal(got)
	require.NoError(t, err)
	assert.Contains(t, string(js), `"genre":[]`)
}

func TestBookInstanceModel_Defaults(t *testing.T) {
	m, _ := newTestModels(t)
	ctx := context.Background()

	before := time.Now().Add(-time.Second)
	bi := &BookInstance{Book: primitive.NewObjectID(), Imprint: "Penguin"}
	require.NoError(t, m.BookInstances.Insert(ctx, bi))

	got, err := m.BookInstances.Get(ctx, bi.ID, With("book"))
	require.NoError(t, err)
	assert.Equal(t, StatusMaintenance, got.Status)
	assert.True(t, got.DueBack.After(before))
	assert.Nil(t, got.BookDoc)
}

func TestModels_Counts(t *testing.T) {
	m, _ := newTestModels(t)
	ctx := context.Background()

	g1 := mustGenre(t, m, "Fantasy")
	mustGenre(t, m, "Horror")
	mustGenre(t, m, "Poetry")
	require.NoError(t, m.Genres.Delete(ctx, g1.ID))

	author := mustAuthor(t, m, "Ursula", "LeGuin")
	book := mustBook(t, m, "Earthsea", author.ID)
	mustInstance(t, m, book.ID, StatusAvailable)
	mustInstance(t, m, book.ID, StatusAvailable)
	mustInstance(t, m, book.ID, StatusLoaned)

	counts, err := m.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{
		BookCount:                  1,
		BookInstanceCount:          3,
		BookInstanceAvailableCount: 2,
		AuthorCount:                1,
		GenreCount:                 2,
	}, counts)
}

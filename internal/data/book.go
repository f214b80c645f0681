// Package data provides the catalog documents and the models that read and
// write them through a docstore.Store.
package data

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/aoideee/locallibrary/internal/docstore"
	"github.com/aoideee/locallibrary/internal/validator"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Book is a document in the "books" collection. Author and Genre hold the
// ids of the referenced documents.
type Book struct {
	ID      primitive.ObjectID   `bson:"_id" json:"_id"`
	Title   string               `bson:"title" json:"title"`
	Author  primitive.ObjectID   `bson:"author" json:"author"`
	Summary string               `bson:"summary" json:"summary"`
	ISBN    string               `bson:"isbn" json:"isbn"`
	Genre   []primitive.ObjectID `bson:"genre" json:"genre"`
}

func (b Book) URL() string {
	return "/book/" + b.ID.Hex()
}

func (b Book) MarshalJSON() ([]byte, error) {
	type stored Book
	s := stored(b)
	if s.Genre == nil {
		s.Genre = []primitive.ObjectID{}
	}
	return json.Marshal(struct {
		stored
		VirtualID string `json:"id"`
		URL       string `json:"url"`
	}{s, b.ID.Hex(), b.URL()})
}

// BookSummary is the title/summary projection of a book used on author and
// genre detail pages.
type BookSummary struct {
	ID      primitive.ObjectID `bson:"_id" json:"_id"`
	Title   string             `bson:"title" json:"title"`
	Summary string             `bson:"summary" json:"summary"`
}

func (b BookSummary) MarshalJSON() ([]byte, error) {
	type stored BookSummary
	return json.Marshal(struct {
		stored
		VirtualID string `json:"id"`
		URL       string `json:"url"`
	}{stored(b), b.ID.Hex(), "/book/" + b.ID.Hex()})
}

// PopulatedBook is a book whose expanded references carry the referenced
// documents. A missing author serializes as null; missing genres are
// left out.
type PopulatedBook struct {
	Book
	AuthorDoc *Author
	GenreDocs []Genre

	expand Expand
}

func (b PopulatedBook) MarshalJSON() ([]byte, error) {
	var author any = b.Author
	if b.expand.Has("author") {
		author = b.AuthorDoc
	}

	var genre any = b.Genre
	if b.expand.Has("genre") {
		docs := b.GenreDocs
		if docs == nil {
			docs = []Genre{}
		}
		genre = docs
	} else if b.Genre == nil {
		genre = []primitive.ObjectID{}
	}

	return json.Marshal(struct {
		ID        primitive.ObjectID `json:"_id"`
		Title     string             `json:"title"`
		Author    any                `json:"author"`
		Summary   string             `json:"summary"`
		ISBN      string             `json:"isbn"`
		Genre     any                `json:"genre"`
		VirtualID string             `json:"id"`
		URL       string             `json:"url"`
	}{b.ID, b.Title, author, b.Summary, b.ISBN, genre, b.ID.Hex(), b.URL()})
}

// StringList decodes either a single JSON string or an array of strings.
// null and absent both yield an empty list.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = StringList{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return errors.New("must be a string or an array of strings")
	}
	if list == nil {
		list = []string{}
	}
	*l = list
	return nil
}

// CreateBookInput holds the fields a client supplies to create a book.
type CreateBookInput struct {
	Title   string     `json:"title"   validate:"required"`
	Author  string     `json:"author"  validate:"required,objectid"`
	Summary string     `json:"summary" validate:"required"`
	ISBN    string     `json:"isbn"    validate:"required"`
	Genre   StringList `json:"genre"   validate:"dive,objectid"`
}

var bookMessages = map[string]string{
	"title":           "Title must not be empty.",
	"author":          "Author must not be empty.",
	"author.objectid": "Author must be a valid identifier.",
	"summary":         "Summary must not be empty.",
	"isbn":            "ISBN must not be empty.",
	"genre":           "Genre must be a list of valid identifiers.",
}

func (in *CreateBookInput) Validate(v *validator.Validator) {
	in.Title = validator.Trim(in.Title)
	in.Author = validator.Trim(in.Author)
	in.Summary = validator.Trim(in.Summary)
	in.ISBN = validator.Trim(in.ISBN)
	if in.Genre == nil {
		in.Genre = StringList{}
	}

	v.Struct(in, bookMessages)

	in.Title = validator.Escape(in.Title)
	in.Author = validator.Escape(in.Author)
	in.Summary = validator.Escape(in.Summary)
	in.ISBN = validator.Escape(in.ISBN)
	in.Genre = validator.EscapeAll(in.Genre)
}

// Book builds the document for a validated input.
func (in *CreateBookInput) Book() (*Book, error) {
	author, err := primitive.ObjectIDFromHex(in.Author)
	if err != nil {
		return nil, err
	}
	genre := make([]primitive.ObjectID, 0, len(in.Genre))
	for _, g := range in.Genre {
		id, err := primitive.ObjectIDFromHex(g)
		if err != nil {
			return nil, err
		}
		genre = append(genre, id)
	}
	return &Book{
		Title:   in.Title,
		Author:  author,
		Summary: in.Summary,
		ISBN:    in.ISBN,
		Genre:   genre,
	}, nil
}

// BookModel reads and writes the "books" collection.
type BookModel struct {
	Store docstore.Store
}

// Insert assigns a new id to book and stores it. A nil genre list is
// stored as an empty array.
func (m BookModel) Insert(ctx context.Context, book *Book) error {
	book.ID = primitive.NewObjectID()
	if book.Genre == nil {
		book.Genre = []primitive.ObjectID{}
	}
	return m.Store.Insert(ctx, booksCollection, book)
}

// Get returns the book with the given id with the requested references
// expanded, or ErrRecordNotFound.
func (m BookModel) Get(ctx context.Context, id primitive.ObjectID, expand Expand) (*PopulatedBook, error) {
	book, err := findByID[Book](ctx, m.Store, booksCollection, id)
	if err != nil {
		return nil, err
	}
	populated, err := m.populate(ctx, []Book{*book}, expand)
	if err != nil {
		return nil, err
	}
	return &populated[0], nil
}

// List returns every book ordered by title.
func (m BookModel) List(ctx context.Context, expand Expand) ([]PopulatedBook, error) {
	books, err := findAll[Book](ctx, m.Store, booksCollection, docstore.Query{Sort: "title"})
	if err != nil {
		return nil, err
	}
	return m.populate(ctx, books, expand)
}

// ListByAuthor returns the title and summary of each book by the author.
func (m BookModel) ListByAuthor(ctx context.Context, authorID primitive.ObjectID) ([]BookSummary, error) {
	return findAll[BookSummary](ctx, m.Store, booksCollection, docstore.Query{
		Filter: docstore.Filter{docstore.Eq("author", authorID)},
		Fields: []string{"title", "summary"},
	})
}

// ListByGenre returns the title and summary of each book in the genre.
func (m BookModel) ListByGenre(ctx context.Context, genreID primitive.ObjectID) ([]BookSummary, error) {
	return findAll[BookSummary](ctx, m.Store, booksCollection, docstore.Query{
		Filter: docstore.Filter{docstore.Has("genre", genreID)},
		Fields: []string{"title", "summary"},
	})
}

// Delete removes the book and then its copies. A failure on the second
// step is reported as ErrPartialCascade.
func (m BookModel) Delete(ctx context.Context, id primitive.ObjectID) error {
	if err := m.Store.DeleteByID(ctx, booksCollection, id); err != nil {
		return notFound(err)
	}
	if _, err := m.Store.DeleteMany(ctx, bookInstancesCollection, docstore.Filter{docstore.Eq("book", id)}); err != nil {
		return cascadeErr("delete book instances", id, err)
	}
	return nil
}

func (m BookModel) populate(ctx context.Context, books []Book, expand Expand) ([]PopulatedBook, error) {
	out := make([]PopulatedBook, len(books))
	for i, b := range books {
		out[i] = PopulatedBook{Book: b, expand: expand}
	}

	if expand.Has("author") {
		ids := make([]primitive.ObjectID, 0, len(books))
		for _, b := range books {
			ids = append(ids, b.Author)
		}
		authors, err := findByIDs(ctx, m.Store, authorsCollection, uniqueIDs(ids), func(a Author) primitive.ObjectID { return a.ID })
		if err != nil {
			return nil, err
		}
		for i := range out {
			if a, ok := authors[out[i].Author]; ok {
				out[i].AuthorDoc = &a
			}
		}
	}

	if expand.Has("genre") {
		var ids []primitive.ObjectID
		for _, b := range books {
			ids = append(ids, b.Genre...)
		}
		genres, err := findByIDs(ctx, m.Store, genresCollection, uniqueIDs(ids), func(g Genre) primitive.ObjectID { return g.ID })
		if err != nil {
			return nil, err
		}
		for i := range out {
			docs := make([]Genre, 0, len(out[i].Genre))
			for _, id := range out[i].Genre {
				if g, ok := genres[id]; ok {
					docs = append(docs, g)
				}
			}
			out[i].GenreDocs = docs
		}
	}

	return out, nil
}

package data

import (
	"context"
	"encoding/json"
	"unicode/utf8"

	"github.com/aoideee/locallibrary/internal/docstore"
	"github.com/aoideee/locallibrary/internal/validator"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Genre is a document in the "genres" collection.
type Genre struct {
	ID   primitive.ObjectID `bson:"_id" json:"_id"`
	Name string             `bson:"name" json:"name"`
}

func (g Genre) URL() string {
	return "/genre/" + g.ID.Hex()
}

func (g Genre) MarshalJSON() ([]byte, error) {
	type stored Genre
	return json.Marshal(struct {
		stored
		VirtualID string `json:"id"`
		URL       string `json:"url"`
	}{stored(g), g.ID.Hex(), g.URL()})
}

// CreateGenreInput holds the fields a client supplies to create a genre.
type CreateGenreInput struct {
	Name string `json:"name" validate:"required,min=3,max=100"`
}

var genreMessages = map[string]string{
	"name":     "Genre name must be specified.",
	"name.max": "Genre name must not be more than 100 characters long.",
}

// Validate trims, checks and escapes the name. The length limit applies
// again after escaping, since the escaped form is what gets stored.
func (in *CreateGenreInput) Validate(v *validator.Validator) {
	in.Name = validator.Trim(in.Name)
	v.Struct(in, genreMessages)
	in.Name = validator.Escape(in.Name)
	v.Check(utf8.RuneCountInString(in.Name) <= 100, "name", genreMessages["name.max"])
}

func (in *CreateGenreInput) Genre() *Genre {
	return &Genre{Name: in.Name}
}

// GenreModel reads and writes the "genres" collection.
type GenreModel struct {
	Store docstore.Store
}

func (m GenreModel) Insert(ctx context.Context, genre *Genre) error {
	genre.ID = primitive.NewObjectID()
	return m.Store.Insert(ctx, genresCollection, genre)
}

func (m GenreModel) Get(ctx context.Context, id primitive.ObjectID) (*Genre, error) {
	return findByID[Genre](ctx, m.Store, genresCollection, id)
}

// List returns every genre in insertion order.
func (m GenreModel) List(ctx context.Context) ([]Genre, error) {
	return findAll[Genre](ctx, m.Store, genresCollection, docstore.Query{})
}

// Delete removes the genre only. Books keep their reference to it and
// expanded reads skip it from then on.
func (m GenreModel) Delete(ctx context.Context, id primitive.ObjectID) error {
	return notFound(m.Store.DeleteByID(ctx, genresCollection, id))
}

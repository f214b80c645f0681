package data

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aoideee/locallibrary/internal/docstore"
	"github.com/aoideee/locallibrary/internal/validator"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Author is a document in the "authors" collection.
type Author struct {
	ID          primitive.ObjectID `bson:"_id" json:"_id"`
	FirstName   string             `bson:"first_name" json:"first_name"`
	FamilyName  string             `bson:"family_name" json:"family_name"`
	DateOfBirth *time.Time         `bson:"date_of_birth,omitempty" json:"date_of_birth,omitempty"`
	DateOfDeath *time.Time         `bson:"date_of_death,omitempty" json:"date_of_death,omitempty"`
}

// Name is "family_name, first_name", or empty unless both are set.
func (a Author) Name() string {
	if a.FirstName == "" || a.FamilyName == "" {
		return ""
	}
	return a.FamilyName + ", " + a.FirstName
}

func (a Author) URL() string {
	return "/author/" + a.ID.Hex()
}

// MarshalJSON adds the derived id, name and url fields.
func (a Author) MarshalJSON() ([]byte, error) {
	type stored Author
	return json.Marshal(struct {
		stored
		VirtualID string `json:"id"`
		Name      string `json:"name"`
		URL       string `json:"url"`
	}{stored(a), a.ID.Hex(), a.Name(), a.URL()})
}

// CreateAuthorInput holds the fields a client supplies to create an author.
type CreateAuthorInput struct {
	FirstName   string `json:"first_name"    validate:"required,min=3,max=100,alphanumeric"`
	FamilyName  string `json:"family_name"   validate:"required,min=3,max=100,alphanumeric"`
	DateOfBirth string `json:"date_of_birth" validate:"omitempty,iso8601"`
	DateOfDeath string `json:"date_of_death" validate:"omitempty,iso8601"`
}

var authorMessages = map[string]string{
	"first_name":               "First name must be specified.",
	"first_name.max":           "First name must not be more than 100 characters long.",
	"first_name.alphanumeric":  "First name has non-alphanumeric characters.",
	"family_name":              "Family name must be specified.",
	"family_name.max":          "Family name must not be more than 100 characters long.",
	"family_name.alphanumeric": "Family name has non-alphanumeric characters.",
	"date_of_birth":            "Invalid date of birth",
	"date_of_death":            "Invalid date of death",
}

// Validate trims, checks and then escapes the input in place.
func (in *CreateAuthorInput) Validate(v *validator.Validator) {
	in.FirstName = validator.Trim(in.FirstName)
	in.FamilyName = validator.Trim(in.FamilyName)
	in.DateOfBirth = validator.Trim(in.DateOfBirth)
	in.DateOfDeath = validator.Trim(in.DateOfDeath)

	v.Struct(in, authorMessages)

	in.FirstName = validator.Escape(in.FirstName)
	in.FamilyName = validator.Escape(in.FamilyName)
}

// Author builds the document for a validated input.
func (in *CreateAuthorInput) Author() *Author {
	return &Author{
		FirstName:   in.FirstName,
		FamilyName:  in.FamilyName,
		DateOfBirth: optionalDate(in.DateOfBirth),
		DateOfDeath: optionalDate(in.DateOfDeath),
	}
}

func optionalDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := validator.ParseISO8601(s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// AuthorModel reads and writes the "authors" collection.
type AuthorModel struct {
	Store docstore.Store
}

// Insert assigns a new id to author and stores it.
func (m AuthorModel) Insert(ctx context.Context, author *Author) error {
	author.ID = primitive.NewObjectID()
	return m.Store.Insert(ctx, authorsCollection, author)
}

// Get returns the author with the given id, or ErrRecordNotFound.
func (m AuthorModel) Get(ctx context.Context, id primitive.ObjectID) (*Author, error) {
	return findByID[Author](ctx, m.Store, authorsCollection, id)
}

// List returns every author ordered by family name.
func (m AuthorModel) List(ctx context.Context) ([]Author, error) {
	return findAll[Author](ctx, m.Store, authorsCollection, docstore.Query{Sort: "family_name"})
}

// Delete removes the author, then the copies of the author's books, then
// the books themselves. The steps are not atomic: a failure after the
// author is gone is reported as ErrPartialCascade.
func (m AuthorModel) Delete(ctx context.Context, id primitive.ObjectID) error {
	if err := m.Store.DeleteByID(ctx, authorsCollection, id); err != nil {
		return notFound(err)
	}

	books, err := findAll[BookSummary](ctx, m.Store, booksCollection, docstore.Query{
		Filter: docstore.Filter{docstore.Eq("author", id)},
		Fields: []string{"_id"},
	})
	if err != nil {
		return cascadeErr("list books", id, err)
	}

	if len(books) > 0 {
		bookIDs := make([]primitive.ObjectID, len(books))
		for i, b := range books {
			bookIDs[i] = b.ID
		}
		_, err := m.Store.DeleteMany(ctx, bookInstancesCollection, docstore.Filter{docstore.In("book", bookIDs)})
		if err != nil {
			return cascadeErr("delete book instances", id, err)
		}
	}

	if _, err := m.Store.DeleteMany(ctx, booksCollection, docstore.Filter{docstore.Eq("author", id)}); err != nil {
		return cascadeErr("delete books", id, err)
	}
	return nil
}

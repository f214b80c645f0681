package data

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/aoideee/locallibrary/internal/docstore"
	"github.com/aoideee/locallibrary/internal/validator"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Copy statuses.
const (
	StatusAvailable   = "Available"
	StatusMaintenance = "Maintenance"
	StatusLoaned      = "Loaned"
	StatusReserved    = "Reserved"
)

// InstanceStatuses lists every valid BookInstance status.
var InstanceStatuses = []string{StatusAvailable, StatusMaintenance, StatusLoaned, StatusReserved}

// BookInstance is a physical copy of a book, stored in "bookinstances".
type BookInstance struct {
	ID      primitive.ObjectID `bson:"_id" json:"_id"`
	Book    primitive.ObjectID `bson:"book" json:"book"`
	Imprint string             `bson:"imprint" json:"imprint"`
	Status  string             `bson:"status" json:"status"`
	DueBack time.Time          `bson:"due_back" json:"due_back"`
}

func (bi BookInstance) URL() string {
	return "/instance/" + bi.ID.Hex()
}

func (bi BookInstance) MarshalJSON() ([]byte, error) {
	type stored BookInstance
	return json.Marshal(struct {
		stored
		VirtualID string `json:"id"`
		URL       string `json:"url"`
	}{stored(bi), bi.ID.Hex(), bi.URL()})
}

// PopulatedBookInstance is a copy with its book reference optionally
// expanded. A missing book serializes as null.
type PopulatedBookInstance struct {
	BookInstance
	BookDoc *Book

	expand Expand
}

func (bi PopulatedBookInstance) MarshalJSON() ([]byte, error) {
	var book any = bi.Book
	if bi.expand.Has("book") {
		book = bi.BookDoc
	}

	return json.Marshal(struct {
		ID        primitive.ObjectID `json:"_id"`
		Book      any                `json:"book"`
		Imprint   string             `json:"imprint"`
		Status    string             `json:"status"`
		DueBack   time.Time          `json:"due_back"`
		VirtualID string             `json:"id"`
		URL       string             `json:"url"`
	}{bi.ID, book, bi.Imprint, bi.Status, bi.DueBack, bi.ID.Hex(), bi.URL()})
}

// CreateBookInstanceInput holds the fields a client supplies to create a
// copy. Status defaults to Maintenance and due_back to the creation time.
type CreateBookInstanceInput struct {
	Book    string `json:"book"     validate:"required,objectid"`
	Imprint string `json:"imprint"  validate:"required"`
	DueBack string `json:"due_back" validate:"omitempty,iso8601"`
	Status  string `json:"status"`
}

var bookInstanceMessages = map[string]string{
	"book":          "Book must be specified",
	"book.objectid": "Book must be a valid identifier",
	"imprint":       "Imprint must be specified",
	"due_back":      "Invalid date",
	"status":        "Status must be one of " + strings.Join(InstanceStatuses, ", "),
}

func (in *CreateBookInstanceInput) Validate(v *validator.Validator) {
	in.Book = validator.Trim(in.Book)
	in.Imprint = validator.Trim(in.Imprint)
	in.DueBack = validator.Trim(in.DueBack)
	in.Status = validator.Trim(in.Status)

	v.Struct(in, bookInstanceMessages)
	if in.Status != "" {
		v.Check(validator.In(in.Status, InstanceStatuses...), "status", bookInstanceMessages["status"])
	}

	in.Book = validator.Escape(in.Book)
	in.Imprint = validator.Escape(in.Imprint)
}

// BookInstance builds the document for a validated input. now supplies
// the default due date.
func (in *CreateBookInstanceInput) BookInstance(now time.Time) (*BookInstance, error) {
	book, err := primitive.ObjectIDFromHex(in.Book)
	if err != nil {
		return nil, err
	}

	status := in.Status
	if status == "" {
		status = StatusMaintenance
	}

	dueBack := now.UTC().Truncate(time.Millisecond)
	if in.DueBack != "" {
		if t, err := validator.ParseISO8601(in.DueBack); err == nil {
			dueBack = t.UTC()
		}
	}

	return &BookInstance{
		Book:    book,
		Imprint: in.Imprint,
		Status:  status,
		DueBack: dueBack,
	}, nil
}

// BookInstanceModel reads and writes the "bookinstances" collection.
type BookInstanceModel struct {
	Store docstore.Store
}

func (m BookInstanceModel) Insert(ctx context.Context, bi *BookInstance) error {
	bi.ID = primitive.NewObjectID()
	if bi.Status == "" {
		bi.Status = StatusMaintenance
	}
	if bi.DueBack.IsZero() {
		bi.DueBack = time.Now().UTC().Truncate(time.Millisecond)
	}
	return m.Store.Insert(ctx, bookInstancesCollection, bi)
}

func (m BookInstanceModel) Get(ctx context.Context, id primitive.ObjectID, expand Expand) (*PopulatedBookInstance, error) {
	bi, err := findByID[BookInstance](ctx, m.Store, bookInstancesCollection, id)
	if err != nil {
		return nil, err
	}
	populated, err := m.populate(ctx, []BookInstance{*bi}, expand)
	if err != nil {
		return nil, err
	}
	return &populated[0], nil
}

// List returns every copy in insertion order.
func (m BookInstanceModel) List(ctx context.Context, expand Expand) ([]PopulatedBookInstance, error) {
	instances, err := findAll[BookInstance](ctx, m.Store, bookInstancesCollection, docstore.Query{})
	if err != nil {
		return nil, err
	}
	return m.populate(ctx, instances, expand)
}

// ListByBook returns the copies of one book.
func (m BookInstanceModel) ListByBook(ctx context.Context, bookID primitive.ObjectID) ([]BookInstance, error) {
	return findAll[BookInstance](ctx, m.Store, bookInstancesCollection, docstore.Query{
		Filter: docstore.Filter{docstore.Eq("book", bookID)},
	})
}

func (m BookInstanceModel) Delete(ctx context.Context, id primitive.ObjectID) error {
	return notFound(m.Store.DeleteByID(ctx, bookInstancesCollection, id))
}

func (m BookInstanceModel) populate(ctx context.Context, instances []BookInstance, expand Expand) ([]PopulatedBookInstance, error) {
	out := make([]PopulatedBookInstance, len(instances))
	for i, bi := range instances {
		out[i] = PopulatedBookInstance{BookInstance: bi, expand: expand}
	}
	if !expand.Has("book") {
		return out, nil
	}

	ids := make([]primitive.ObjectID, 0, len(instances))
	for _, bi := range instances {
		ids = append(ids, bi.Book)
	}
	books, err := findByIDs(ctx, m.Store, booksCollection, uniqueIDs(ids), func(b Book) primitive.ObjectID { return b.ID })
	if err != nil {
		return nil, err
	}
	for i := range out {
		if b, ok := books[out[i].Book]; ok {
			out[i].BookDoc = &b
		}
	}
	return out, nil
}

// Package docstore provides a small document-store abstraction over BSON
// documents grouped into named collections. Backends exist for MongoDB,
// PostgreSQL (JSONB) and process memory; all of them identify documents by
// MongoDB ObjectIDs stored in the "_id" field.
package docstore

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrNotFound is returned when no document matches an identifier.
	ErrNotFound = errors.New("document not found")

	// ErrUnavailable is returned when the store cannot be reached.
	ErrUnavailable = errors.New("document store unavailable")
)

// Store is implemented by every backend. Documents passed to Insert are
// encoded with their bson tags and must carry a non-zero "_id".
type Store interface {
	Find(ctx context.Context, collection string, q Query) ([]bson.Raw, error)
	FindByID(ctx context.Context, collection string, id primitive.ObjectID) (bson.Raw, error)
	Insert(ctx context.Context, collection string, doc any) error
	DeleteByID(ctx context.Context, collection string, id primitive.ObjectID) error
	DeleteMany(ctx context.Context, collection string, filter Filter) (int64, error)
	Count(ctx context.Context, collection string, filter Filter) (int64, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Op is a filter comparison.
type Op int

const (
	// OpEq matches documents whose field equals the value. As in MongoDB, an
	// array field matches when any element equals the value.
	OpEq Op = iota
	// OpHas matches documents whose array field contains the value.
	OpHas
	// OpIn matches documents whose field equals one of the values.
	OpIn
)

// Cond is a single condition on a top-level document field.
type Cond struct {
	Field  string
	Op     Op
	Value  any
	Values []any
}

// Filter is a conjunction of conditions. An empty filter matches everything.
type Filter []Cond

// Eq builds an equality condition.
func Eq(field string, value any) Cond {
	return Cond{Field: field, Op: OpEq, Value: value}
}

// Has builds an array-membership condition.
func Has(field string, value any) Cond {
	return Cond{Field: field, Op: OpHas, Value: value}
}

// In builds a set-membership condition.
func In[T any](field string, values []T) Cond {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return Cond{Field: field, Op: OpIn, Values: vs}
}

// Query describes a Find call. Sort names a field to order by ascending;
// documents with equal keys keep insertion order. Fields, when set, limits
// the returned document to those fields plus "_id".
type Query struct {
	Filter Filter
	Sort   string
	Fields []string
}

// Decode unmarshals raw documents into a freshly allocated slice. The result
// is never nil.
func Decode[T any](docs []bson.Raw) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, raw := range docs {
		var v T
		if err := bson.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func documentID(doc any) (bson.Raw, primitive.ObjectID, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, primitive.NilObjectID, err
	}
	id, ok := bson.Raw(raw).Lookup("_id").ObjectIDOK()
	if !ok || id.IsZero() {
		return nil, primitive.NilObjectID, errors.New("docstore: document has no ObjectID _id")
	}
	return raw, id, nil
}

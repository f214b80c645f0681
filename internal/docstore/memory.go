package docstore

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Memory is an in-process Store. Documents are kept BSON-encoded so filters
// and decoding behave the way they do against MongoDB.
type Memory struct {
	mu          sync.RWMutex
	collections map[string][]bson.Raw
	closed      bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string][]bson.Raw)}
}

func (m *Memory) Find(ctx context.Context, collection string, q Query) ([]bson.Raw, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrUnavailable
	}

	var out []bson.Raw
	for _, doc := range m.collections[collection] {
		ok, err := matches(doc, q.Filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, project(doc, q.Fields))
		}
	}

	if q.Sort != "" {
		sort.SliceStable(out, func(i, j int) bool {
			return sortKey(out[i], q.Sort) < sortKey(out[j], q.Sort)
		})
	}
	return out, nil
}

func (m *Memory) FindByID(ctx context.Context, collection string, id primitive.ObjectID) (bson.Raw, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrUnavailable
	}

	for _, doc := range m.collections[collection] {
		if docID(doc) == id {
			return doc, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) Insert(ctx context.Context, collection string, doc any) error {
	raw, id, err := documentID(doc)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrUnavailable
	}
	for _, existing := range m.collections[collection] {
		if docID(existing) == id {
			return fmt.Errorf("docstore: duplicate _id %s in %s", id.Hex(), collection)
		}
	}
	m.collections[collection] = append(m.collections[collection], raw)
	return nil
}

func (m *Memory) DeleteByID(ctx context.Context, collection string, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrUnavailable
	}

	docs := m.collections[collection]
	for i, doc := range docs {
		if docID(doc) == id {
			m.collections[collection] = append(docs[:i:i], docs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) DeleteMany(ctx context.Context, collection string, filter Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrUnavailable
	}

	var (
		kept    []bson.Raw
		deleted int64
	)
	for _, doc := range m.collections[collection] {
		ok, err := matches(doc, filter)
		if err != nil {
			return 0, err
		}
		if ok {
			deleted++
			continue
		}
		kept = append(kept, doc)
	}
	m.collections[collection] = kept
	return deleted, nil
}

func (m *Memory) Count(ctx context.Context, collection string, filter Filter) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrUnavailable
	}

	var n int64
	for _, doc := range m.collections[collection] {
		ok, err := matches(doc, filter)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrUnavailable
	}
	return nil
}

// Close marks the store closed; every later call fails with ErrUnavailable.
func (m *Memory) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func docID(doc bson.Raw) primitive.ObjectID {
	id, _ := doc.Lookup("_id").ObjectIDOK()
	return id
}

func matches(doc bson.Raw, filter Filter) (bool, error) {
	for _, c := range filter {
		field := doc.Lookup(c.Field)

		switch c.Op {
		case OpEq, OpHas:
			want, err := rawValue(c.Value)
			if err != nil {
				return false, err
			}
			if c.Op == OpEq && valuesEqual(field, want) {
				continue
			}
			if !arrayContains(field, want) {
				return false, nil
			}
		case OpIn:
			found := false
			for _, v := range c.Values {
				want, err := rawValue(v)
				if err != nil {
					return false, err
				}
				if valuesEqual(field, want) || arrayContains(field, want) {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		default:
			return false, fmt.Errorf("docstore: unknown filter op %d", c.Op)
		}
	}
	return true, nil
}

func rawValue(v any) (bson.RawValue, error) {
	t, data, err := bson.MarshalValue(v)
	if err != nil {
		return bson.RawValue{}, err
	}
	return bson.RawValue{Type: t, Value: data}, nil
}

func valuesEqual(a, b bson.RawValue) bool {
	return a.Type == b.Type && bytes.Equal(a.Value, b.Value)
}

func arrayContains(field, want bson.RawValue) bool {
	arr, ok := field.ArrayOK()
	if !ok {
		return false
	}
	values, err := arr.Values()
	if err != nil {
		return false
	}
	for _, v := range values {
		if valuesEqual(v, want) {
			return true
		}
	}
	return false
}

func sortKey(doc bson.Raw, field string) string {
	v := doc.Lookup(field)
	if s, ok := v.StringValueOK(); ok {
		return s
	}
	if v.Type == 0 {
		return ""
	}
	return v.String()
}

func project(doc bson.Raw, fields []string) bson.Raw {
	if len(fields) == 0 {
		return doc
	}
	keep := bson.D{{Key: "_id", Value: doc.Lookup("_id")}}
	for _, f := range fields {
		if f == "_id" {
			continue
		}
		if v := doc.Lookup(f); v.Type != 0 {
			keep = append(keep, bson.E{Key: f, Value: v})
		}
	}
	raw, err := bson.Marshal(keep)
	if err != nil {
		return doc
	}
	return raw
}

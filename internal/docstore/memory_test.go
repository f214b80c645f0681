package docstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type testDoc struct {
	ID    primitive.ObjectID   `bson:"_id"`
	Name  string               `bson:"name"`
	Owner primitive.ObjectID   `bson:"owner"`
	Tags  []primitive.ObjectID `bson:"tags"`
}

func seed(t *testing.T, s Store, docs ...testDoc) {
	t.Helper()
	for _, d := range docs {
		require.NoError(t, s.Insert(context.Background(), "things", d))
	}
}

func names(t *testing.T, docs []testDoc) []string {
	t.Helper()
	out := []string{}
	for _, d := range docs {
		out = append(out, d.Name)
	}
	return out
}

func TestMemory_FindSortAndFilter(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	owner := primitive.NewObjectID()
	tag := primitive.NewObjectID()
	seed(t, s,
		testDoc{ID: primitive.NewObjectID(), Name: "delta", Owner: owner, Tags: []primitive.ObjectID{tag}},
		testDoc{ID: primitive.NewObjectID(), Name: "alpha", Owner: primitive.NewObjectID(), Tags: []primitive.ObjectID{}},
		testDoc{ID: primitive.NewObjectID(), Name: "charlie", Owner: owner, Tags: []primitive.ObjectID{}},
	)

	t.Run("sorted ascending", func(t *testing.T) {
		raws, err := s.Find(ctx, "things", Query{Sort: "name"})
		require.NoError(t, err)
		docs, err := Decode[testDoc](raws)
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "charlie", "delta"}, names(t, docs))
	})

	t.Run("equality", func(t *testing.T) {
		raws, err := s.Find(ctx, "things", Query{Filter: Filter{Eq("owner", owner)}, Sort: "name"})
		require.NoError(t, err)
		docs, err := Decode[testDoc](raws)
		require.NoError(t, err)
		assert.Equal(t, []string{"charlie", "delta"}, names(t, docs))
	})

	t.Run("array membership", func(t *testing.T) {
		raws, err := s.Find(ctx, "things", Query{Filter: Filter{Has("tags", tag)}})
		require.NoError(t, err)
		docs, err := Decode[testDoc](raws)
		require.NoError(t, err)
		assert.Equal(t, []string{"delta"}, names(t, docs))
	})

	t.Run("equality on array field", func(t *testing.T) {
		n, err := s.Count(ctx, "things", Filter{Eq("tags", tag)})
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	})

	t.Run("no match decodes to empty slice", func(t *testing.T) {
		raws, err := s.Find(ctx, "things", Query{Filter: Filter{Eq("name", "nobody")}})
		require.NoError(t, err)
		docs, err := Decode[testDoc](raws)
		require.NoError(t, err)
		assert.NotNil(t, docs)
		assert.Empty(t, docs)
	})

	t.Run("projection keeps id", func(t *testing.T) {
		raws, err := s.Find(ctx, "things", Query{Sort: "name", Fields: []string{"name"}})
		require.NoError(t, err)
		require.Len(t, raws, 3)
		_, hasOwner := raws[0].Lookup("owner").ObjectIDOK()
		assert.False(t, hasOwner)
		_, hasID := raws[0].Lookup("_id").ObjectIDOK()
		assert.True(t, hasID)
	})
}

func TestMemory_In(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	a, b, c := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()
	seed(t, s,
		testDoc{ID: a, Name: "a"},
		testDoc{ID: b, Name: "b"},
		testDoc{ID: c, Name: "c"},
	)

	n, err := s.Count(ctx, "things", Filter{In("_id", []primitive.ObjectID{a, c})})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = s.Count(ctx, "things", Filter{In("_id", []primitive.ObjectID{})})
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestMemory_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	owner := primitive.NewObjectID()
	id := primitive.NewObjectID()
	seed(t, s,
		testDoc{ID: id, Name: "one", Owner: owner},
		testDoc{ID: primitive.NewObjectID(), Name: "two", Owner: owner},
		testDoc{ID: primitive.NewObjectID(), Name: "three"},
	)

	require.NoError(t, s.DeleteByID(ctx, "things", id))
	assert.ErrorIs(t, s.DeleteByID(ctx, "things", id), ErrNotFound)

	_, err := s.FindByID(ctx, "things", id)
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := s.DeleteMany(ctx, "things", Filter{Eq("owner", owner)})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	total, err := s.Count(ctx, "things", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestMemory_InsertRequiresID(t *testing.T) {
	s := NewMemory()
	err := s.Insert(context.Background(), "things", testDoc{Name: "anonymous"})
	assert.Error(t, err)

	id := primitive.NewObjectID()
	seed(t, s, testDoc{ID: id, Name: "first"})
	assert.Error(t, s.Insert(context.Background(), "things", testDoc{ID: id, Name: "again"}))
}

func TestMemory_Closed(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Close(ctx))

	assert.ErrorIs(t, s.Ping(ctx), ErrUnavailable)
	_, err := s.Find(ctx, "things", Query{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

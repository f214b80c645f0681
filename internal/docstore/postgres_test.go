package docstore

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestBuildFind(t *testing.T) {
	id, err := primitive.ObjectIDFromHex("65a1b2c3d4e5f60718293a4b")
	require.NoError(t, err)

	tests := []struct {
		name      string
		query     Query
		wantSQL   string
		wantArgs  []any
		wantError bool
	}{
		{
			name:     "whole collection",
			query:    Query{},
			wantSQL:  "SELECT body FROM documents WHERE collection = $1 ORDER BY seq",
			wantArgs: []any{"books"},
		},
		{
			name:     "sorted",
			query:    Query{Sort: "title"},
			wantSQL:  "SELECT body FROM documents WHERE collection = $1 ORDER BY body->>'title', seq",
			wantArgs: []any{"books"},
		},
		{
			name:    "equality",
			query:   Query{Filter: Filter{Eq("author", id)}},
			wantSQL: "SELECT body FROM documents WHERE collection = $1 AND (body @> $2::jsonb OR body @> $3::jsonb) ORDER BY seq",
			wantArgs: []any{
				"books",
				`{"author":{"$oid":"65a1b2c3d4e5f60718293a4b"}}`,
				`{"author":[{"$oid":"65a1b2c3d4e5f60718293a4b"}]}`,
			},
		},
		{
			name:    "membership",
			query:   Query{Filter: Filter{Has("genre", id)}},
			wantSQL: "SELECT body FROM documents WHERE collection = $1 AND body @> $2::jsonb ORDER BY seq",
			wantArgs: []any{
				"books",
				`{"genre":[{"$oid":"65a1b2c3d4e5f60718293a4b"}]}`,
			},
		},
		{
			name:     "empty in",
			query:    Query{Filter: Filter{In("_id", []primitive.ObjectID{})}},
			wantSQL:  "SELECT body FROM documents WHERE collection = $1 AND false ORDER BY seq",
			wantArgs: []any{"books"},
		},
		{
			name:      "unsafe sort field",
			query:     Query{Sort: "title; DROP TABLE documents"},
			wantError: true,
		},
		{
			name:      "unsafe filter field",
			query:     Query{Filter: Filter{Eq("a'b", "x")}},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := buildFind("books", tt.query)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestExtJSONRoundTrip(t *testing.T) {
	doc := testDoc{
		ID:    primitive.NewObjectID(),
		Name:  "round trip",
		Owner: primitive.NewObjectID(),
		Tags:  []primitive.ObjectID{primitive.NewObjectID()},
	}
	raw, _, err := documentID(doc)
	require.NoError(t, err)

	body, err := bson.MarshalExtJSON(raw, false, false)
	require.NoError(t, err)

	back, err := fromExtJSON(body)
	require.NoError(t, err)

	decoded, err := Decode[testDoc]([]bson.Raw{back})
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, doc, decoded[0])
}

func TestPgErr(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connect: connection refused")}

	tests := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{"connection exception class", &pq.Error{Code: "08006"}, true},
		{"refused dial", refused, true},
		{"wrapped refused dial", fmt.Errorf("query: %w", refused), true},
		{"bad conn", driver.ErrBadConn, true},
		{"conn done", sql.ErrConnDone, true},
		{"unique violation", &pq.Error{Code: "23505"}, false},
		{"no rows", sql.ErrNoRows, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pgErr(tt.err)
			assert.Equal(t, tt.unavailable, errors.Is(got, ErrUnavailable))
		})
	}
}

package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo is a Store backed by a MongoDB database.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// OpenMongo connects to uri and verifies the deployment answers a ping
// within timeout.
func OpenMongo(ctx context.Context, uri, database string, timeout time.Duration) (*Mongo, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(timeout).
		SetConnectTimeout(timeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Mongo{client: client, db: client.Database(database)}, nil
}

func (m *Mongo) Find(ctx context.Context, collection string, q Query) ([]bson.Raw, error) {
	opts := options.Find()
	if q.Sort != "" {
		opts.SetSort(bson.D{{Key: q.Sort, Value: 1}, {Key: "_id", Value: 1}})
	}
	if len(q.Fields) > 0 {
		proj := bson.D{}
		for _, f := range q.Fields {
			proj = append(proj, bson.E{Key: f, Value: 1})
		}
		opts.SetProjection(proj)
	}

	cur, err := m.db.Collection(collection).Find(ctx, mongoFilter(q.Filter), opts)
	if err != nil {
		return nil, mongoErr(err)
	}
	defer cur.Close(ctx)

	var out []bson.Raw
	for cur.Next(ctx) {
		// cur.Current is reused by the next call to Next.
		out = append(out, append(bson.Raw(nil), cur.Current...))
	}
	if err := cur.Err(); err != nil {
		return nil, mongoErr(err)
	}
	return out, nil
}

func (m *Mongo) FindByID(ctx context.Context, collection string, id primitive.ObjectID) (bson.Raw, error) {
	raw, err := m.db.Collection(collection).FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Raw()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, mongoErr(err)
	}
	return raw, nil
}

func (m *Mongo) Insert(ctx context.Context, collection string, doc any) error {
	raw, _, err := documentID(doc)
	if err != nil {
		return err
	}
	if _, err := m.db.Collection(collection).InsertOne(ctx, raw); err != nil {
		return mongoErr(err)
	}
	return nil
}

func (m *Mongo) DeleteByID(ctx context.Context, collection string, id primitive.ObjectID) error {
	res, err := m.db.Collection(collection).DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return mongoErr(err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) DeleteMany(ctx context.Context, collection string, filter Filter) (int64, error) {
	res, err := m.db.Collection(collection).DeleteMany(ctx, mongoFilter(filter))
	if err != nil {
		return 0, mongoErr(err)
	}
	return res.DeletedCount, nil
}

func (m *Mongo) Count(ctx context.Context, collection string, filter Filter) (int64, error) {
	n, err := m.db.Collection(collection).CountDocuments(ctx, mongoFilter(filter))
	if err != nil {
		return 0, mongoErr(err)
	}
	return n, nil
}

func (m *Mongo) Ping(ctx context.Context) error {
	if err := m.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// mongoFilter translates a Filter into a MongoDB query document. MongoDB's
// equality already matches array elements, so OpEq and OpHas coincide.
func mongoFilter(f Filter) bson.D {
	doc := bson.D{}
	for _, c := range f {
		switch c.Op {
		case OpIn:
			values := c.Values
			if values == nil {
				values = []any{}
			}
			doc = append(doc, bson.E{Key: c.Field, Value: bson.D{{Key: "$in", Value: values}}})
		default:
			doc = append(doc, bson.E{Key: c.Field, Value: c.Value})
		}
	}
	return doc
}

func mongoErr(err error) error {
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, mongo.ErrClientDisconnected) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

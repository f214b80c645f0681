package docstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Postgres is a Store that keeps every collection in one JSONB table.
// Documents are stored as relaxed MongoDB Extended JSON so ObjectIDs and
// dates survive the round trip.
type Postgres struct {
	DB *sql.DB
}

const documentsSchema = `
	CREATE TABLE IF NOT EXISTS documents (
		seq        bigserial PRIMARY KEY,
		collection text        NOT NULL,
		id         text        NOT NULL,
		body       jsonb       NOT NULL,
		created_at timestamptz NOT NULL DEFAULT now(),
		UNIQUE (collection, id)
	)`

var fieldRX = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// OpenPostgres opens a connection pool for dsn, pings it within timeout and
// makes sure the documents table exists.
func OpenPostgres(ctx context.Context, dsn string, timeout time.Duration) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, documentsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create documents table: %w", err)
	}

	return &Postgres{DB: db}, nil
}

func (p *Postgres) Find(ctx context.Context, collection string, q Query) ([]bson.Raw, error) {
	query, args, err := buildFind(collection, q)
	if err != nil {
		return nil, err
	}

	rows, err := p.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, pgErr(err)
	}
	defer rows.Close()

	var out []bson.Raw
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		doc, err := fromExtJSON(body)
		if err != nil {
			return nil, err
		}
		out = append(out, project(doc, q.Fields))
	}
	if err := rows.Err(); err != nil {
		return nil, pgErr(err)
	}
	return out, nil
}

func (p *Postgres) FindByID(ctx context.Context, collection string, id primitive.ObjectID) (bson.Raw, error) {
	query := `SELECT body FROM documents WHERE collection = $1 AND id = $2`

	var body []byte
	err := p.DB.QueryRowContext(ctx, query, collection, id.Hex()).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, pgErr(err)
	}
	return fromExtJSON(body)
}

func (p *Postgres) Insert(ctx context.Context, collection string, doc any) error {
	raw, id, err := documentID(doc)
	if err != nil {
		return err
	}
	body, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return err
	}

	query := `INSERT INTO documents (collection, id, body) VALUES ($1, $2, $3)`
	if _, err := p.DB.ExecContext(ctx, query, collection, id.Hex(), string(body)); err != nil {
		return pgErr(err)
	}
	return nil
}

func (p *Postgres) DeleteByID(ctx context.Context, collection string, id primitive.ObjectID) error {
	query := `DELETE FROM documents WHERE collection = $1 AND id = $2`

	result, err := p.DB.ExecContext(ctx, query, collection, id.Hex())
	if err != nil {
		return pgErr(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) DeleteMany(ctx context.Context, collection string, filter Filter) (int64, error) {
	where, args, err := buildWhere(collection, filter)
	if err != nil {
		return 0, err
	}

	result, err := p.DB.ExecContext(ctx, "DELETE FROM documents WHERE "+where, args...)
	if err != nil {
		return 0, pgErr(err)
	}
	return result.RowsAffected()
}

func (p *Postgres) Count(ctx context.Context, collection string, filter Filter) (int64, error) {
	where, args, err := buildWhere(collection, filter)
	if err != nil {
		return 0, err
	}

	var n int64
	if err := p.DB.QueryRowContext(ctx, "SELECT count(*) FROM documents WHERE "+where, args...).Scan(&n); err != nil {
		return 0, pgErr(err)
	}
	return n, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (p *Postgres) Close(ctx context.Context) error {
	return p.DB.Close()
}

// buildFind returns the SELECT statement and arguments for q.
func buildFind(collection string, q Query) (string, []any, error) {
	where, args, err := buildWhere(collection, q.Filter)
	if err != nil {
		return "", nil, err
	}

	order := "seq"
	if q.Sort != "" {
		if !fieldRX.MatchString(q.Sort) {
			return "", nil, fmt.Errorf("docstore: invalid sort field %q", q.Sort)
		}
		order = fmt.Sprintf("body->>'%s', seq", q.Sort)
	}

	return fmt.Sprintf("SELECT body FROM documents WHERE %s ORDER BY %s", where, order), args, nil
}

// buildWhere renders f as JSONB containment tests. Equality is expanded to
// "field is the value or an array holding it" to keep MongoDB semantics.
func buildWhere(collection string, f Filter) (string, []any, error) {
	clauses := []string{"collection = $1"}
	args := []any{collection}

	contains := func(field string, value any) (string, error) {
		js, err := bson.MarshalExtJSON(bson.D{{Key: field, Value: value}}, false, false)
		if err != nil {
			return "", err
		}
		args = append(args, string(js))
		return fmt.Sprintf("body @> $%d::jsonb", len(args)), nil
	}
	eq := func(field string, value any) (string, error) {
		scalar, err := contains(field, value)
		if err != nil {
			return "", err
		}
		element, err := contains(field, bson.A{value})
		if err != nil {
			return "", err
		}
		return scalar + " OR " + element, nil
	}

	for _, c := range f {
		if !fieldRX.MatchString(c.Field) {
			return "", nil, fmt.Errorf("docstore: invalid filter field %q", c.Field)
		}

		switch c.Op {
		case OpEq:
			clause, err := eq(c.Field, c.Value)
			if err != nil {
				return "", nil, err
			}
			clauses = append(clauses, "("+clause+")")
		case OpHas:
			clause, err := contains(c.Field, bson.A{c.Value})
			if err != nil {
				return "", nil, err
			}
			clauses = append(clauses, clause)
		case OpIn:
			if len(c.Values) == 0 {
				clauses = append(clauses, "false")
				continue
			}
			var alts []string
			for _, v := range c.Values {
				clause, err := eq(c.Field, v)
				if err != nil {
					return "", nil, err
				}
				alts = append(alts, clause)
			}
			clauses = append(clauses, "("+strings.Join(alts, " OR ")+")")
		default:
			return "", nil, fmt.Errorf("docstore: unknown filter op %d", c.Op)
		}
	}

	return strings.Join(clauses, " AND "), args, nil
}

func fromExtJSON(body []byte) (bson.Raw, error) {
	var d bson.D
	if err := bson.UnmarshalExtJSON(body, false, &d); err != nil {
		return nil, err
	}
	return bson.Marshal(d)
}

// pgErr tags connection-level failures as ErrUnavailable.
func pgErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code.Class() == "08" {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return err
	}
	var netErr net.Error
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/models"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool opens a connection pool and checks it can reach the server.
func NewPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	poolConfig.MaxConnLifetime = time.Minute * 30
	poolConfig.MaxConnIdleTime = time.Minute * 5
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// NewStore creates the report and dead-letter tables when they are missing.
func NewStore(ctx context.Context, pool *pgxpool.Pool, reports, deadLetters string) (storage.Store, error) {
	r := NewCollection(pool, reports)
	dl := NewCollection(pool, deadLetters)
	for _, c := range []*Collection{r, dl} {
		if err := c.Migrate(ctx); err != nil {
			return storage.Store{}, err
		}
	}
	return storage.Store{Reports: r, DeadLetters: dl}, nil
}

// Collection keeps one JSONB document per row.
type Collection struct {
	Pool   *pgxpool.Pool
	table  string
	handle storage.CollectionHandle
}

func NewCollection(pool *pgxpool.Pool, name string) *Collection {
	table := pgx.Identifier{strings.ToLower(name)}.Sanitize()
	h := storage.PostgresHandle(table)
	h.Name = name
	return &Collection{Pool: pool, table: table, handle: h}
}

func (c *Collection) Handle() storage.CollectionHandle {
	return c.handle
}

func (c *Collection) Migrate(ctx context.Context) error {
	_, err := c.Pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id text NOT NULL,
		partition_key text NOT NULL,
		doc jsonb NOT NULL,
		created_at timestamptz NOT NULL DEFAULT now(),
		PRIMARY KEY (partition_key, id)
	)`, c.table))
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", c.table, err)
	}
	return nil
}

func (c *Collection) CreateItem(ctx context.Context, id string, item any, partitionKey string) storage.WriteResult {
	b, err := json.Marshal(item)
	if err != nil {
		return storage.FatalResult(err)
	}
	_, err = c.Pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, partition_key, doc) VALUES ($1, $2, $3)`, c.table),
		id, partitionKey, b,
	)
	return created(id, err)
}

func (c *Collection) DeleteItem(ctx context.Context, id string, partitionKey string) storage.WriteResult {
	_, err := c.Pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE partition_key = $1 AND id = $2`, c.table),
		partitionKey, id,
	)
	return classify(err)
}

func (c *Collection) QueryItems(ctx context.Context, q storage.Query) ([]json.RawMessage, error) {
	sql, args := c.Statement(q)
	rows, err := c.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", c.handle.Name, err)
	}
	docs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", c.handle.Name, err)
	}
	out := make([]json.RawMessage, len(docs))
	for i, d := range docs {
		out[i] = d
	}
	return out, nil
}

// Statement renders q with the partition filter and a stable order.
func (c *Collection) Statement(q storage.Query) (string, []any) {
	sql, args := c.handle.Render(q)
	if q.PartitionKey != "" {
		if len(args) == 0 {
			sql += " WHERE"
		} else {
			sql += " AND"
		}
		args = append(args, q.PartitionKey)
		sql += " r.partition_key = $" + strconv.Itoa(len(args))
	}
	return sql + " ORDER BY r.created_at, r.id", args
}

func (c *Collection) Health(ctx context.Context) models.ServiceHealthResp {
	rsp := models.HealthyResp(models.POSTGRES_DB + " " + c.handle.Name)
	if err := c.Pool.Ping(ctx); err != nil {
		return rsp.BuildErrorResponse(err)
	}
	return rsp
}

func created(id string, err error) storage.WriteResult {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		// unique_violation on the primary key
		return storage.AlreadyStored(id, err)
	}
	return classify(err)
}

// classify maps a Postgres error to a write outcome by SQLSTATE class.
func classify(err error) storage.WriteResult {
	if err == nil {
		return storage.Succeeded()
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		// connection level failure
		return storage.TransientResult(err)
	}
	switch {
	case pgErr.Code == "53300" || pgErr.Code == "53400":
		// too_many_connections, configuration_limit_exceeded
		return storage.ThrottledResult(0, err)
	case pgErr.Code == "40001" || pgErr.Code == "40P01":
		return storage.TransientResult(err)
	case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "57"):
		return storage.TransientResult(err)
	}
	return storage.FatalResult(err)
}

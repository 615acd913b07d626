package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const notifyChannel = "records_changed"

const createRecords = `
CREATE TABLE IF NOT EXISTS records (
collection text NOT NULL,
id text NOT NULL,
data jsonb NOT NULL,
updated_at timestamptz NOT NULL,
PRIMARY KEY (collection, id)
)
`

const upsertRecord = `
INSERT INTO records (collection, id, data, updated_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
`

const selectRecord = `
SELECT data FROM records WHERE collection = $1 AND id = $2
`

const selectRecords = `
SELECT id, data FROM records WHERE collection = $1 ORDER BY id
`

const deleteRecord = `
DELETE FROM records WHERE collection = $1 AND id = $2
`

// PostgresStore keeps a collection as JSONB rows. Writers announce changes
// with NOTIFY so Subscribe can follow them without polling.
type PostgresStore struct {
	pool       *pgxpool.Pool
	collection string
	logger     zerolog.Logger
}

var ErrNotConfigured = errors.New("postgres store requires a non-nil pool")

func NewPostgresStore(pool *pgxpool.Pool, collection string, logger zerolog.Logger) (*PostgresStore, error) {
	if pool == nil {
		return nil, ErrNotConfigured
	}
	return &PostgresStore{
		pool:       pool,
		collection: collection,
		logger:     logger.With().Str("collection", collection).Logger(),
	}, nil
}

func (r *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, createRecords); err != nil {
		return fmt.Errorf("create records table: %w", err)
	}
	return nil
}

func (r *PostgresStore) Get(ctx context.Context, id string) (Record, bool, error) {
	if id == "" {
		return nil, false, ErrInvalidID
	}
	var data []byte
	if err := r.pool.QueryRow(ctx, selectRecord, r.collection, id).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("select record: %w", err)
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func (r *PostgresStore) List(ctx context.Context) (Snapshot, error) {
	rows, err := r.pool.Query(ctx, selectRecords, r.collection)
	if err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	defer rows.Close()

	snap := Snapshot{}
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		snap[id] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return snap, nil
}

func (r *PostgresStore) Set(ctx context.Context, id string, rec Record) error {
	if id == "" {
		return ErrInvalidID
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if _, err := r.pool.Exec(ctx, upsertRecord, r.collection, id, data, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return r.announce(ctx)
}

func (r *PostgresStore) Remove(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}
	if _, err := r.pool.Exec(ctx, deleteRecord, r.collection, id); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return r.announce(ctx)
}

func (r *PostgresStore) announce(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, "SELECT pg_notify($1, $2)", notifyChannel, r.collection); err != nil {
		return fmt.Errorf("notify change: %w", err)
	}
	return nil
}

func (r *PostgresStore) Subscribe(ctx context.Context, onChange func(Snapshot)) (func(), error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listener connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen: %w", err)
	}
	first, err := r.List(ctx)
	if err != nil {
		conn.Release()
		return nil, err
	}
	onChange(first)

	// the session keeps LISTEN state, so it leaves the pool for good
	listener := conn.Hijack()
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer listener.Close(context.Background())
		for {
			n, err := listener.WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					r.logger.Error().Err(err).Msg("listener stopped")
				}
				return
			}
			if n.Payload != r.collection {
				continue
			}
			snap, err := r.List(ctx)
			if err != nil {
				r.logger.Warn().Err(err).Msg("reload after notify failed")
				continue
			}
			onChange(snap)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}, nil
}

func decodeRecord(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

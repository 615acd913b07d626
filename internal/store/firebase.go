package store

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// node is the subset of *db.Ref the store uses.
type node interface {
	Get(ctx context.Context, v interface{}) error
	Set(ctx context.Context, v interface{}) error
	Delete(ctx context.Context) error
}

// FirebaseStore reads and writes one collection of the Firebase Realtime
// Database. The Admin SDK has no change listeners, so Subscribe polls the
// collection and reports only snapshots that differ from the last one.
type FirebaseStore struct {
	collection string
	ref        func(path string) node
	pollEvery  time.Duration
	logger     zerolog.Logger
}

type FirebaseConfig struct {
	DatabaseURL     string
	CredentialsFile string
	PollEvery       time.Duration
}

// NewFirebaseClient initialises the Admin SDK database client.
func NewFirebaseClient(ctx context.Context, cfg FirebaseConfig) (*db.Client, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("firebase database url is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{DatabaseURL: cfg.DatabaseURL}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("get database client: %w", err)
	}
	return client, nil
}

func NewFirebaseStore(client *db.Client, collection string, pollEvery time.Duration, logger zerolog.Logger) *FirebaseStore {
	return newFirebaseStore(func(p string) node { return client.NewRef(p) }, collection, pollEvery, logger)
}

func newFirebaseStore(ref func(string) node, collection string, pollEvery time.Duration, logger zerolog.Logger) *FirebaseStore {
	if pollEvery <= 0 {
		pollEvery = 5 * time.Second
	}
	return &FirebaseStore{
		collection: collection,
		ref:        ref,
		pollEvery:  pollEvery,
		logger:     logger.With().Str("collection", collection).Logger(),
	}
}

func (f *FirebaseStore) Get(ctx context.Context, id string) (Record, bool, error) {
	if id == "" {
		return nil, false, ErrInvalidID
	}
	var rec Record
	if err := f.ref(path.Join(f.collection, id)).Get(ctx, &rec); err != nil {
		return nil, false, fmt.Errorf("get %s/%s: %w", f.collection, id, err)
	}
	if rec == nil {
		return nil, false, nil
	}
	return rec, true, nil
}

func (f *FirebaseStore) List(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	if err := f.ref(f.collection).Get(ctx, &snap); err != nil {
		return nil, fmt.Errorf("list %s: %w", f.collection, err)
	}
	if snap == nil {
		snap = Snapshot{}
	}
	return snap, nil
}

func (f *FirebaseStore) Set(ctx context.Context, id string, rec Record) error {
	if id == "" {
		return ErrInvalidID
	}
	if err := f.ref(path.Join(f.collection, id)).Set(ctx, rec); err != nil {
		return fmt.Errorf("set %s/%s: %w", f.collection, id, err)
	}
	return nil
}

func (f *FirebaseStore) Remove(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}
	if err := f.ref(path.Join(f.collection, id)).Delete(ctx); err != nil {
		return fmt.Errorf("remove %s/%s: %w", f.collection, id, err)
	}
	return nil
}

func (f *FirebaseStore) Subscribe(ctx context.Context, onChange func(Snapshot)) (func(), error) {
	first, err := f.List(ctx)
	if err != nil {
		return nil, err
	}
	onChange(first.clone())

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		last := first
		ticker := time.NewTicker(f.pollEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			snap, err := f.List(ctx)
			if err != nil {
				if ctx.Err() == nil {
					f.logger.Warn().Err(err).Msg("poll failed")
				}
				continue
			}
			if sameSnapshot(last, snap) {
				continue
			}
			last = snap
			onChange(snap.clone())
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

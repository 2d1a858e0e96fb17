package database

import (
	"bytes"
	"context"
	"fmt"
	"time"

	xdr "github.com/davecgh/go-xdr/xdr2"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/go-sod/cpi/internal/database"
	"github.com/go-sod/cpi/internal/observation/model"
	"github.com/go-sod/cpi/internal/util"
)

const bucket = "observation:"

type FilterFn func(obs model.Observation) bool

func New(db *database.DB) *DB {
	return &DB{sDB: db}
}

// DB stores observations in a single bbolt bucket keyed by ID. Values are
// XDR encoded records.
type DB struct {
	sDB *database.DB
}

type record struct {
	ID         [16]byte
	Vec        []float64
	Pred       float64
	Lower      float64
	Upper      float64
	Var        float64
	HasVar     bool
	Value      float64
	Status     uint32
	CreatedAt  int64
	ObservedAt int64
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func Encode(obs model.Observation) ([]byte, error) {
	r := record{
		ID:         obs.ID,
		Vec:        obs.Vec,
		Pred:       obs.Pred,
		Lower:      obs.Lower,
		Upper:      obs.Upper,
		Var:        obs.Var,
		HasVar:     obs.HasVar,
		Value:      obs.Value,
		Status:     uint32(obs.Status),
		CreatedAt:  unixNano(obs.CreatedAt),
		ObservedAt: unixNano(obs.ObservedAt),
	}
	if r.Vec == nil {
		r.Vec = []float64{}
	}
	buf := util.GetBytesBuffer()
	defer util.PutBytesBuffer(buf)
	if _, err := xdr.Marshal(buf, &r); err != nil {
		return nil, fmt.Errorf("xdr encode observation %s: %w", obs.ID, err)
	}
	return append([]byte{}, buf.Bytes()...), nil
}

func Decode(data []byte) (model.Observation, error) {
	var r record
	if _, err := xdr.Unmarshal(bytes.NewReader(data), &r); err != nil {
		return model.Observation{}, fmt.Errorf("xdr decode observation: %w", err)
	}
	return model.Observation{
		ID:         uuid.UUID(r.ID),
		Vec:        r.Vec,
		Pred:       r.Pred,
		Lower:      r.Lower,
		Upper:      r.Upper,
		Var:        r.Var,
		HasVar:     r.HasVar,
		Value:      r.Value,
		Status:     model.Status(r.Status),
		CreatedAt:  fromUnixNano(r.CreatedAt),
		ObservedAt: fromUnixNano(r.ObservedAt),
	}, nil
}

// AppendMany inserts or replaces observations.
func (db *DB) AppendMany(_ context.Context, list []model.Observation) error {
	if len(list) == 0 {
		return nil
	}
	if err := db.sDB.DB.Batch(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		for _, obs := range list {
			value, err := Encode(obs)
			if err != nil {
				return err
			}
			if err := b.Put(obs.ID[:], value); err != nil {
				return fmt.Errorf("put to bucket error: %w", err)
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("update transaction error: %w", err)
	}
	return nil
}

func (db *DB) Store(ctx context.Context, obs model.Observation) error {
	return db.AppendMany(ctx, []model.Observation{obs})
}

func (db *DB) DeleteMany(_ context.Context, list []model.Observation) error {
	if len(list) == 0 {
		return nil
	}
	if err := db.sDB.DB.Batch(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		for _, obs := range list {
			if err := b.Delete(obs.ID[:]); err != nil {
				return fmt.Errorf("unable delete: %w", err)
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("update transaction error: %w", err)
	}
	return nil
}

func (db *DB) Delete(ctx context.Context, obs model.Observation) error {
	return db.DeleteMany(ctx, []model.Observation{obs})
}

// FindAll returns the observations accepted by filter, every one when filter
// is nil.
func (db *DB) FindAll(_ context.Context, filter FilterFn) ([]model.Observation, error) {
	var list []model.Observation
	if err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			obs, err := Decode(v)
			if err != nil {
				return err
			}
			if filter == nil || filter(obs) {
				list = append(list, obs)
			}
			return nil
		})
	}); err != nil {
		return nil, fmt.Errorf("view transaction error: %w", err)
	}
	return list, nil
}

// Find returns the observation with the given ID.
func (db *DB) Find(_ context.Context, id uuid.UUID) (model.Observation, bool, error) {
	var (
		obs   model.Observation
		found bool
	)
	if err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		v := b.Get(id[:])
		if v == nil {
			return nil
		}
		decoded, err := Decode(v)
		if err != nil {
			return err
		}
		obs, found = decoded, true
		return nil
	}); err != nil {
		return model.Observation{}, false, fmt.Errorf("view transaction error: %w", err)
	}
	return obs, found, nil
}

func (db *DB) Count() (int, error) {
	var n int
	if err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		n = b.Stats().KeyN
		return nil
	}); err != nil {
		return 0, fmt.Errorf("view transaction error: %w", err)
	}
	return n, nil
}

package database

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	bolt "go.etcd.io/bbolt"

	"github.com/go-sod/cpi/internal/alert/model"
	"github.com/go-sod/cpi/internal/database"
)

const bucket = "alert:"

func New(db *database.DB) *DB {
	return &DB{sDB: db}
}

// DB keeps alerts that were not delivered yet.
type DB struct {
	sDB *database.DB
}

func (db *DB) StoreMany(_ context.Context, alerts []model.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	if err := db.sDB.DB.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		for _, alert := range alerts {
			bytes, err := json.Marshal(alert)
			if err != nil {
				return err
			}
			if err := b.Put(alert.ID[:], bytes); err != nil {
				return fmt.Errorf("put to bucket error: %w", err)
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("update transaction error: %w", err)
	}
	return nil
}

func (db *DB) DeleteMany(_ context.Context, alerts []model.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	if err := db.sDB.DB.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		for _, alert := range alerts {
			if err := b.Delete(alert.ID[:]); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("update transaction error: %w", err)
	}
	return nil
}

// FindAll returns the stored alerts, oldest first.
func (db *DB) FindAll(_ context.Context) ([]model.Alert, error) {
	var alerts []model.Alert
	if err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var a model.Alert
			if err := json.Unmarshal(v, &a); err != nil {
				return fmt.Errorf("alert unmarshal error, %w", err)
			}
			alerts = append(alerts, a)
			return nil
		})
	}); err != nil {
		return nil, fmt.Errorf("view transaction error: %w", err)
	}
	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].CreatedAt.Before(alerts[j].CreatedAt)
	})
	return alerts, nil
}

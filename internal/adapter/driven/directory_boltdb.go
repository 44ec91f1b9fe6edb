package driven

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/alorle/iptv-hub/internal/channel"
)

const (
	directoryBucket = "directory"
	verifiedBucket  = "verified"
	metaBucket      = "meta"
)

var savedAtKey = []byte("saved_at")

// DirectoryBoltDBRepository implements the DirectoryRepository port using BoltDB.
// Channels are keyed by their position so a load returns them in merge order.
type DirectoryBoltDBRepository struct {
	db *bbolt.DB
}

// NewDirectoryBoltDBRepository creates a new BoltDB-backed directory repository.
// It initializes the required buckets if they don't exist.
func NewDirectoryBoltDBRepository(db *bbolt.DB) (*DirectoryBoltDBRepository, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}

	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{directoryBucket, verifiedBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &DirectoryBoltDBRepository{db: db}, nil
}

func orderKey(i int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(i))
	return key
}

// resetBucket drops and recreates a bucket inside tx.
func resetBucket(tx *bbolt.Tx, name string) (*bbolt.Bucket, error) {
	if err := tx.DeleteBucket([]byte(name)); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
		return nil, err
	}
	return tx.CreateBucket([]byte(name))
}

// SaveDirectory atomically replaces the stored directory.
func (r *DirectoryBoltDBRepository) SaveDirectory(ctx context.Context, channels []channel.Channel, verifiedIDs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		dir, err := resetBucket(tx, directoryBucket)
		if err != nil {
			return err
		}
		for i, ch := range channels {
			data, err := json.Marshal(ch)
			if err != nil {
				return fmt.Errorf("encode channel %q: %w", ch.ID, err)
			}
			if err := dir.Put(orderKey(i), data); err != nil {
				return err
			}
		}

		verified, err := resetBucket(tx, verifiedBucket)
		if err != nil {
			return err
		}
		for _, id := range verifiedIDs {
			if err := verified.Put([]byte(id), []byte{1}); err != nil {
				return err
			}
		}

		meta := tx.Bucket([]byte(metaBucket))
		if meta == nil {
			return errors.New("meta bucket not found")
		}
		return meta.Put(savedAtKey, []byte(time.Now().UTC().Format(time.RFC3339)))
	})
}

// LoadDirectory returns the stored channels in their saved order and the
// verified ids in key order.
func (r *DirectoryBoltDBRepository) LoadDirectory(ctx context.Context) ([]channel.Channel, []string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	channels := []channel.Channel{}
	verifiedIDs := []string{}

	err := r.db.View(func(tx *bbolt.Tx) error {
		dir := tx.Bucket([]byte(directoryBucket))
		if dir == nil {
			return errors.New("directory bucket not found")
		}
		err := dir.ForEach(func(k, v []byte) error {
			var ch channel.Channel
			if err := json.Unmarshal(v, &ch); err != nil {
				return fmt.Errorf("decode channel at %d: %w", binary.BigEndian.Uint64(k), err)
			}
			channels = append(channels, ch)
			return nil
		})
		if err != nil {
			return err
		}

		verified := tx.Bucket([]byte(verifiedBucket))
		if verified == nil {
			return errors.New("verified bucket not found")
		}
		return verified.ForEach(func(k, _ []byte) error {
			verifiedIDs = append(verifiedIDs, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}

	return channels, verifiedIDs, nil
}

// SavedAt reports when the directory was last saved. The zero time means never.
func (r *DirectoryBoltDBRepository) SavedAt(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	var savedAt time.Time
	err := r.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket([]byte(metaBucket))
		if meta == nil {
			return errors.New("meta bucket not found")
		}
		raw := meta.Get(savedAtKey)
		if raw == nil {
			return nil
		}
		t, err := time.Parse(time.RFC3339, string(raw))
		if err != nil {
			return err
		}
		savedAt = t
		return nil
	})
	return savedAt, err
}

// Ping checks if the BoltDB database is accessible and operational.
func (r *DirectoryBoltDBRepository) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(directoryBucket)) == nil {
			return errors.New("directory bucket not found")
		}
		return nil
	})
}

package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// stickerBucket is the single bbolt bucket backing the StickerIndex
// (spec.md §3 "StickerIndex"): file_unique_id -> {md5, size, name}.
var stickerBucket = []byte("sticker_index")

// ErrStickerNotFound is returned when a file_unique_id has no recorded entry.
var ErrStickerNotFound = errors.New("registry: sticker not found")

// StickerEntry is one StickerIndex row.
type StickerEntry struct {
	FileUniqueID string `json:"file_unique_id"`
	MD5          string `json:"md5"`
	Size         int64  `json:"size"`
	Name         string `json:"name"`
	RecordedAt   int64  `json:"recorded_at"`
}

// StickerIndex is a bbolt-backed md5+size lookup keyed by Telegram's
// file_unique_id, hydrated from database/sticker.json at startup and
// written back on every Put so the JSON file stays the portable backup
// while bbolt serves the hot O(1) lookup path — grounded on
// KurtSkinny-telegram-userbot's bbolt-backed cache pattern, adapted from a
// generic key-value cache down to this single sticker-lookup concern.
type StickerIndex struct {
	db       *bbolt.DB
	jsonPath string
}

// OpenStickerIndex opens (creating if absent) the bbolt file at dbPath and
// hydrates it from the JSON file at jsonPath, if present: only ids bbolt
// does not hold yet are added, and existing rows are kept as they are.
func OpenStickerIndex(dbPath, jsonPath string) (*StickerIndex, error) {
	db, err := bbolt.Open(dbPath, 0o644, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open sticker index: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(stickerBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sticker index bucket: %w", err)
	}

	idx := &StickerIndex{db: db, jsonPath: jsonPath}
	if err := idx.hydrateFromJSON(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (s *StickerIndex) hydrateFromJSON() error {
	entries, err := readJSONFile(s.jsonPath)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(stickerBucket)
		for _, e := range entries {
			if b.Get([]byte(e.FileUniqueID)) != nil {
				continue // bbolt already has this row, don't clobber a newer write
			}
			data, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(e.FileUniqueID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get returns the entry recorded for fileUniqueID.
func (s *StickerIndex) Get(fileUniqueID string) (StickerEntry, error) {
	var entry StickerEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(stickerBucket).Get([]byte(fileUniqueID))
		if raw == nil {
			return ErrStickerNotFound
		}
		return json.Unmarshal(raw, &entry)
	})
	return entry, err
}

// Put records md5/size/name for fileUniqueID and rewrites the JSON backup
// file from a snapshot of the whole bucket.
func (s *StickerIndex) Put(entry StickerEntry) error {
	entry.RecordedAt = time.Now().Unix()
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal sticker entry: %w", err)
	}
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(stickerBucket).Put([]byte(entry.FileUniqueID), data)
	}); err != nil {
		return fmt.Errorf("write sticker entry: %w", err)
	}
	return s.rewriteJSON()
}

func (s *StickerIndex) rewriteJSON() error {
	var entries []StickerEntry
	if err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(stickerBucket).ForEach(func(_, v []byte) error {
			var e StickerEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, e)
			return nil
		})
	}); err != nil {
		return fmt.Errorf("snapshot sticker index: %w", err)
	}
	return writeJSONFile(s.jsonPath, entries)
}

// Close closes the underlying bbolt database.
func (s *StickerIndex) Close() error { return s.db.Close() }

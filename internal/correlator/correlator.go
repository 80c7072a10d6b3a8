// Package correlator implements the Message-ID Correlator (component E):
// an append-only, daily-sharded, bidirectional index between Telegram
// message ids and WeChat message ids.
package correlator

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// ErrCorrelationMiss is returned by any lookup that finds no matching
// record in the retention window.
var ErrCorrelationMiss = errors.New("correlator: no matching record")

// retentionDays is the lookup window named in §3/§4.5.
const retentionDays = 3

// lockRetries/lockDelay bound the per-shard file lock contention, per the
// resource model's "5 attempts, 100ms" cross-thread safety note.
const (
	lockRetries = 5
	lockDelay   = 100 * time.Millisecond
)

// Record is one MsgIdMapping entry.
type Record struct {
	TgMsgID       int64  `json:"tg_msg_id"`
	TelethonMsgID int64  `json:"telethon_msg_id"`
	FromWxid      string `json:"from_wxid"`
	ToWxid        string `json:"to_wxid"`
	WxMsgID       int64  `json:"wx_msg_id"`
	ClientMsgID   string `json:"client_msg_id"`
	CreateTime    int64  `json:"create_time"`
	Content       string `json:"content"`
}

// Correlator serializes writes through an in-memory shard for the current
// UTC day and append-only JSON files on disk, one per day, each guarded by
// an exclusive file lock.
type Correlator struct {
	dir string

	mu      sync.RWMutex
	day     string
	records []Record // current UTC day, loaded/reloaded lazily
}

// New creates a Correlator rooted at dir (spec.md's msgid/ directory),
// creating the directory if it doesn't exist.
func New(dir string) (*Correlator, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create correlator directory: %w", err)
	}
	c := &Correlator{dir: dir}
	if err := c.ensureDay(time.Now().UTC()); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Correlator) shardPath(day string) string {
	return filepath.Join(c.dir, day+".json")
}

func dayString(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// ensureDay loads the shard for t's UTC day into memory if it isn't
// already the cached day.
func (c *Correlator) ensureDay(t time.Time) error {
	day := dayString(t)

	c.mu.RLock()
	loaded := c.day == day
	c.mu.RUnlock()
	if loaded {
		return nil
	}

	recs, err := c.readShard(day)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.day = day
	c.records = recs
	c.mu.Unlock()
	return nil
}

func (c *Correlator) readShard(day string) ([]Record, error) {
	data, err := os.ReadFile(c.shardPath(day))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read shard %s: %w", day, err)
	}
	var recs []Record
	if len(data) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("decode shard %s: %w", day, err)
	}
	return recs, nil
}

// lockShard acquires an exclusive lock on day's shard file, retrying per
// the resource model before giving up.
func (c *Correlator) lockShard(day string) (*flock.Flock, error) {
	fl := flock.New(c.shardPath(day) + ".lock")
	var locked bool
	var err error
	for i := 0; i < lockRetries; i++ {
		locked, err = fl.TryLock()
		if err != nil {
			return nil, fmt.Errorf("lock shard %s: %w", day, err)
		}
		if locked {
			return fl, nil
		}
		time.Sleep(lockDelay)
	}
	return nil, fmt.Errorf("lock shard %s: exhausted %d attempts", day, lockRetries)
}

// Put inserts or updates rec, keyed by tg_msg_id, in the current UTC day's
// shard. Writes go synchronously to the in-memory cache and the shard
// file under an exclusive lock, matching the append-only-with-in-place-
// update invariant.
func (c *Correlator) Put(rec Record) error {
	now := time.Now().UTC()
	if err := c.ensureDay(now); err != nil {
		return err
	}
	day := dayString(now)

	fl, err := c.lockShard(day)
	if err != nil {
		return err
	}
	defer fl.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	replaced := false
	for i := range c.records {
		if c.records[i].TgMsgID == rec.TgMsgID {
			c.records[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		c.records = append(c.records, rec)
	}

	data, err := json.Marshal(c.records)
	if err != nil {
		return fmt.Errorf("marshal shard %s: %w", day, err)
	}
	if err := os.WriteFile(c.shardPath(day), data, 0o644); err != nil {
		return fmt.Errorf("write shard %s: %w", day, err)
	}
	return nil
}

// windowDays returns the daily shard records covering the retention
// window, current day first, using the in-memory cache for today.
func (c *Correlator) windowDays() ([][]Record, error) {
	now := time.Now().UTC()
	if err := c.ensureDay(now); err != nil {
		return nil, err
	}

	out := make([][]Record, 0, retentionDays)
	c.mu.RLock()
	out = append(out, c.records)
	c.mu.RUnlock()

	for i := 1; i < retentionDays; i++ {
		day := dayString(now.AddDate(0, 0, -i))
		recs, err := c.readShard(day)
		if err != nil {
			return nil, err
		}
		out = append(out, recs)
	}
	return out, nil
}

// TGToWeChat returns the full record for a bot-API Telegram message id —
// the revocation path's primary lookup.
func (c *Correlator) TGToWeChat(tgMsgID int64) (Record, error) {
	days, err := c.windowDays()
	if err != nil {
		return Record{}, err
	}
	for _, shard := range days {
		for _, r := range shard {
			if r.TgMsgID == tgMsgID {
				return r, nil
			}
		}
	}
	return Record{}, ErrCorrelationMiss
}

// WeChatToTG returns only the Telegram message id for a WeChat message id
// — the reply-thread resolution path.
func (c *Correlator) WeChatToTG(wxMsgID int64) (int64, error) {
	days, err := c.windowDays()
	if err != nil {
		return 0, err
	}
	for _, shard := range days {
		for _, r := range shard {
			if r.WxMsgID == wxMsgID {
				return r.TgMsgID, nil
			}
		}
	}
	return 0, ErrCorrelationMiss
}

// TelethonToWeChat returns the full record for a user-session message id
// — used by user-client-originated revocations.
func (c *Correlator) TelethonToWeChat(telethonMsgID int64) (Record, error) {
	days, err := c.windowDays()
	if err != nil {
		return Record{}, err
	}
	for _, shard := range days {
		for _, r := range shard {
			if r.TelethonMsgID == telethonMsgID {
				return r, nil
			}
		}
	}
	return Record{}, ErrCorrelationMiss
}

// ByFromWxid returns every Telegram message id in the window originating
// from fromWxid. Not used on the hot path; provided for completeness
// (e.g. future bulk operations).
func (c *Correlator) ByFromWxid(fromWxid string) ([]int64, error) {
	days, err := c.windowDays()
	if err != nil {
		return nil, err
	}
	var out []int64
	for _, shard := range days {
		for _, r := range shard {
			if r.FromWxid == fromWxid {
				out = append(out, r.TgMsgID)
			}
		}
	}
	return out, nil
}

// Sweep deletes shard files (and lock files) older than the retention
// window. Intended to run once per day from a background goroutine.
func (c *Correlator) Sweep() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("read correlator directory: %w", err)
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		day := name
		for _, suffix := range []string{".json", ".json.lock"} {
			day = trimSuffix(day, suffix)
		}
		t, err := time.Parse("2006-01-02", day)
		if err != nil {
			continue
		}
		if t.Before(cutoff) {
			_ = os.Remove(filepath.Join(c.dir, name))
		}
	}
	return nil
}

func trimSuffix(s, suffix string) string {
	if len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix {
		return s[:len(s)-len(suffix)]
	}
	return s
}

package registry

import (
	"path/filepath"
	"testing"
)

func TestStickerIndex_PutAndGet(t *testing.T) {
	dir := t.TempDir()
	idx, err := OpenStickerIndex(filepath.Join(dir, "sticker.db"), filepath.Join(dir, "sticker.json"))
	if err != nil {
		t.Fatalf("OpenStickerIndex: %v", err)
	}
	defer idx.Close()

	entry := StickerEntry{FileUniqueID: "fu-1", MD5: "abc", Size: 12345, Name: "cool sticker"}
	if err := idx.Put(entry); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := idx.Get("fu-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.MD5 != "abc" || got.Size != 12345 {
		t.Fatalf("unexpected entry: %+v", got)
	}
}

func TestStickerIndex_GetNotFound(t *testing.T) {
	dir := t.TempDir()
	idx, err := OpenStickerIndex(filepath.Join(dir, "sticker.db"), filepath.Join(dir, "sticker.json"))
	if err != nil {
		t.Fatalf("OpenStickerIndex: %v", err)
	}
	defer idx.Close()

	if _, err := idx.Get("missing"); err != ErrStickerNotFound {
		t.Fatalf("expected ErrStickerNotFound, got %v", err)
	}
}

func TestStickerIndex_RehydratesFromJSON(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sticker.db")
	jsonPath := filepath.Join(dir, "sticker.json")

	idx, err := OpenStickerIndex(dbPath, jsonPath)
	if err != nil {
		t.Fatalf("OpenStickerIndex: %v", err)
	}
	if err := idx.Put(StickerEntry{FileUniqueID: "fu-2", MD5: "def", Size: 999}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	idx.Close()

	reopened, err := OpenStickerIndex(filepath.Join(dir, "sticker2.db"), jsonPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get("fu-2")
	if err != nil {
		t.Fatalf("Get after rehydrate: %v", err)
	}
	if got.MD5 != "def" {
		t.Fatalf("unexpected entry after rehydrate: %+v", got)
	}
}

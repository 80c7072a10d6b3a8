package registry

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestContactStore_Get(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"wxid", "name", "chat_id", "is_group", "is_receive", "avatar_url", "wx_name", "created_at", "updated_at"}).
		AddRow("u1", "Alice", int64(-100123), 0, 1, "https://avatar", "Alice (WX)", now, now)
	mock.ExpectQuery("SELECT .* FROM contact WHERE wxid = ?").WithArgs("u1").WillReturnRows(rows)

	s := &ContactStore{db: db}
	c, err := s.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if c.Name != "Alice" || c.ChatID != -100123 || c.IsGroup || !c.IsReceive {
		t.Fatalf("unexpected contact: %+v", c)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestContactStore_GetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT .* FROM contact WHERE wxid = ?").WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"wxid", "name", "chat_id", "is_group", "is_receive", "avatar_url", "wx_name", "created_at", "updated_at"}))

	s := &ContactStore{db: db}
	_, err = s.Get(context.Background(), "missing")
	if err != ErrContactNotFound {
		t.Fatalf("expected ErrContactNotFound, got %v", err)
	}
}

func TestContactUpdate_Toggle(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"wxid", "name", "chat_id", "is_group", "is_receive", "avatar_url", "wx_name", "created_at", "updated_at"}).
		AddRow("u1", "Alice", int64(-100123), 0, 1, "", "", now, now)
	mock.ExpectQuery("SELECT .* FROM contact WHERE chat_id = ?").WithArgs(int64(-100123)).WillReturnRows(rows)
	mock.ExpectExec("INSERT INTO contact").WillReturnResult(sqlmock.NewResult(0, 1))

	s := &ContactStore{db: db}
	err = s.UpdateByChatID(context.Background(), -100123, ContactUpdate{IsReceive: ToggleUpdate()})
	if err != nil {
		t.Fatalf("UpdateByChatID: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrContactNotFound is returned by lookups that find no matching row.
var ErrContactNotFound = errors.New("registry: contact not found")

// Contact is one row of the contact table, matching the Contact type
// exactly: wxid primary key, chat_id sentinel for "not yet bound".
type Contact struct {
	Wxid      string
	Name      string
	ChatID    int64
	IsGroup   bool
	IsReceive bool
	AvatarURL string
	WxName    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Bound reports whether the contact has a Telegram group assigned.
func (c *Contact) Bound() bool {
	return c.ChatID != UnboundChatID
}

// ContactStore provides the operations named for the Contact Registry:
// get, get_by_chat_id, search_by_name, save, delete, delete_by_chat_id,
// update_by_chat_id.
type ContactStore struct {
	db *sql.DB
}

const contactColumns = `wxid, name, chat_id, is_group, is_receive, avatar_url, wx_name, created_at, updated_at`

func scanContact(scanner interface{ Scan(...interface{}) error }, c *Contact) error {
	var isGroup, isReceive int
	if err := scanner.Scan(&c.Wxid, &c.Name, &c.ChatID, &isGroup, &isReceive,
		&c.AvatarURL, &c.WxName, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return err
	}
	c.IsGroup = isGroup != 0
	c.IsReceive = isReceive != 0
	return nil
}

// Get looks up a contact by wxid.
func (s *ContactStore) Get(ctx context.Context, wxid string) (*Contact, error) {
	c := &Contact{}
	err := scanContact(s.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contact WHERE wxid = ?`, wxid), c)
	if err == sql.ErrNoRows {
		return nil, ErrContactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return c, nil
}

// GetByChatID looks up a contact by its bound Telegram chat id.
func (s *ContactStore) GetByChatID(ctx context.Context, chatID int64) (*Contact, error) {
	c := &Contact{}
	err := scanContact(s.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contact WHERE chat_id = ?`, chatID), c)
	if err == sql.ErrNoRows {
		return nil, ErrContactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get contact by chat id: %w", err)
	}
	return c, nil
}

// SearchByName returns contacts whose name contains substring, ordered by
// name. An empty substring returns every contact.
func (s *ContactStore) SearchByName(ctx context.Context, substring string) ([]*Contact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+contactColumns+` FROM contact WHERE name LIKE ? ESCAPE '\' ORDER BY name`,
		"%"+strings.ReplaceAll(substring, "%", "\\%")+"%")
	if err != nil {
		return nil, fmt.Errorf("search contacts: %w", err)
	}
	defer rows.Close()

	var out []*Contact
	for rows.Next() {
		c := &Contact{}
		if err := scanContact(rows, c); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Save inserts or replaces a contact row (insert-or-replace per spec).
func (s *ContactStore) Save(ctx context.Context, c *Contact) error {
	now := time.Now().UTC()
	if c.ChatID == 0 {
		c.ChatID = UnboundChatID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contact (wxid, name, chat_id, is_group, is_receive, avatar_url, wx_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (wxid) DO UPDATE SET
			name = excluded.name,
			chat_id = excluded.chat_id,
			is_group = excluded.is_group,
			is_receive = excluded.is_receive,
			avatar_url = excluded.avatar_url,
			wx_name = excluded.wx_name,
			updated_at = excluded.updated_at
	`, c.Wxid, c.Name, c.ChatID, boolInt(c.IsGroup), boolInt(c.IsReceive), c.AvatarURL, c.WxName, now, now)
	if err != nil {
		return fmt.Errorf("save contact: %w", err)
	}
	return nil
}

// Delete hard-deletes a contact by wxid.
func (s *ContactStore) Delete(ctx context.Context, wxid string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM contact WHERE wxid = ?", wxid)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	return nil
}

// DeleteByChatID hard-deletes a contact by its bound chat id.
func (s *ContactStore) DeleteByChatID(ctx context.Context, chatID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM contact WHERE chat_id = ?", chatID)
	if err != nil {
		return fmt.Errorf("delete contact by chat id: %w", err)
	}
	return nil
}

// ContactUpdate is a partial update applied by UpdateByChatID. A nil field
// is left untouched. IsReceive takes a BoolUpdate, which carries either an
// explicit value (BoolValue) or a toggle of the stored value (ToggleUpdate).
type ContactUpdate struct {
	Name      *string
	AvatarURL *string
	IsReceive *BoolUpdate
}

// BoolUpdate carries either an explicit boolean or a toggle instruction.
type BoolUpdate struct {
	Toggle bool
	Value  bool
}

// ToggleUpdate returns a BoolUpdate that flips whatever value is currently
// stored.
func ToggleUpdate() *BoolUpdate { return &BoolUpdate{Toggle: true} }

// BoolValue returns a BoolUpdate pinned to an explicit value.
func BoolValue(v bool) *BoolUpdate { return &BoolUpdate{Value: v} }

// UpdateByChatID applies a partial update to the contact bound to chatID.
func (s *ContactStore) UpdateByChatID(ctx context.Context, chatID int64, u ContactUpdate) error {
	c, err := s.GetByChatID(ctx, chatID)
	if err != nil {
		return err
	}
	if u.Name != nil {
		c.Name = *u.Name
	}
	if u.AvatarURL != nil {
		c.AvatarURL = *u.AvatarURL
	}
	if u.IsReceive != nil {
		if u.IsReceive.Toggle {
			c.IsReceive = !c.IsReceive
		} else {
			c.IsReceive = u.IsReceive.Value
		}
	}
	return s.Save(ctx, c)
}

// Stats is the {total, groups, personal, bound, receiving} contract.
type Stats struct {
	Total     int
	Groups    int
	Personal  int
	Bound     int
	Receiving int
}

// Statistics computes the registry's summary counters.
func (s *ContactStore) Statistics(ctx context.Context) (Stats, error) {
	var st Stats
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			SUM(CASE WHEN is_group = 1 THEN 1 ELSE 0 END),
			SUM(CASE WHEN is_group = 0 THEN 1 ELSE 0 END),
			SUM(CASE WHEN chat_id != ? THEN 1 ELSE 0 END),
			SUM(CASE WHEN is_receive = 1 THEN 1 ELSE 0 END)
		FROM contact
	`, UnboundChatID)
	var groups, personal, bound, receiving sql.NullInt64
	if err := row.Scan(&st.Total, &groups, &personal, &bound, &receiving); err != nil {
		return Stats{}, fmt.Errorf("contact statistics: %w", err)
	}
	st.Groups = int(groups.Int64)
	st.Personal = int(personal.Int64)
	st.Bound = int(bound.Int64)
	st.Receiving = int(receiving.Int64)
	return st, nil
}

// ExportRow is the JSON shape used by import/export, matching the field
// names named in §4.4 exactly.
type ExportRow struct {
	WxID      string `json:"wxId"`
	ChatID    int64  `json:"chatId"`
	IsGroup   bool   `json:"isGroup"`
	IsReceive bool   `json:"isReceive"`
	AvatarLink string `json:"avatarLink"`
	WxName    string `json:"wxName"`
}

// Export returns every contact in the array-of-objects seed/backup shape.
func (s *ContactStore) Export(ctx context.Context) ([]ExportRow, error) {
	contacts, err := s.SearchByName(ctx, "")
	if err != nil {
		return nil, err
	}
	out := make([]ExportRow, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, ExportRow{
			WxID: c.Wxid, ChatID: c.ChatID, IsGroup: c.IsGroup,
			IsReceive: c.IsReceive, AvatarLink: c.AvatarURL, WxName: c.WxName,
		})
	}
	return out, nil
}

// Import upserts every row of an export/seed payload.
func (s *ContactStore) Import(ctx context.Context, rows []ExportRow) error {
	for _, r := range rows {
		c := &Contact{
			Wxid: r.WxID, Name: r.WxName, ChatID: r.ChatID, IsGroup: r.IsGroup,
			IsReceive: r.IsReceive, AvatarURL: r.AvatarLink, WxName: r.WxName,
		}
		if err := s.Save(ctx, c); err != nil {
			return fmt.Errorf("import contact %s: %w", r.WxID, err)
		}
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

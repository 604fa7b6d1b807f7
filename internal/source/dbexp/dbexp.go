// Package dbexp reads a chat archive stored as a SQLite database.  The
// schema is the generic archive layout: workspace, users, channels,
// channel_members, dm_groups, dm_group_members, messages, files, reactions.
//
// Unlike the file-based exports, the database orders messages with a single
// indexed query, so the message iterator streams without a merge step.
package dbexp

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/chatport/chatport/internal/source"
)

// Archive is the source.Source over one archive database.
type Archive struct {
	db *sqlx.DB
	lg *slog.Logger
}

type Option func(*Archive)

// WithLogger sets the logger.
func WithLogger(lg *slog.Logger) Option {
	return func(a *Archive) {
		if lg != nil {
			a.lg = lg
		}
	}
}

// Open opens the database read-only and verifies the schema.
func Open(ctx context.Context, path string, opt ...Option) (*Archive, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("database archive: %w", err)
	}
	a := &Archive{db: db, lg: slog.Default()}
	for _, o := range opt {
		o(a)
	}
	if err := a.verify(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// verify checks the tables the reader depends on exist.
func (a *Archive) verify(ctx context.Context) error {
	required := []string{"workspace", "users", "channels", "messages"}
	var have []string
	if err := a.db.SelectContext(ctx, &have,
		`SELECT name FROM sqlite_master WHERE type = 'table'`); err != nil {
		return fmt.Errorf("database archive: %w", err)
	}
	haveSet := make(map[string]bool, len(have))
	for _, t := range have {
		haveSet[t] = true
	}
	var missing []string
	for _, t := range required {
		if !haveSet[t] {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("database archive: not an archive, missing tables: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (a *Archive) Close() error { return a.db.Close() }

func (a *Archive) Name() string { return "database archive" }

func (a *Archive) Realm(ctx context.Context) (source.RealmInfo, error) {
	var row struct {
		Name      string `db:"name"`
		Subdomain string `db:"subdomain"`
		CreatedAt int64  `db:"created_at"`
	}
	err := a.db.GetContext(ctx, &row,
		`SELECT name, subdomain, created_at FROM workspace LIMIT 1`)
	if err == sql.ErrNoRows {
		return source.RealmInfo{}, source.ErrNotFound
	}
	if err != nil {
		return source.RealmInfo{}, err
	}
	return source.RealmInfo{Name: row.Name, Subdomain: row.Subdomain, CreatedAt: row.CreatedAt}, nil
}

func (a *Archive) Users(ctx context.Context) ([]source.User, error) {
	var rows []struct {
		ID        string `db:"id"`
		Email     string `db:"email"`
		Name      string `db:"name"`
		Role      string `db:"role"`
		IsBot     bool   `db:"is_bot"`
		Timezone  string `db:"timezone"`
		JoinedAt  int64  `db:"joined_at"`
		AvatarURL string `db:"avatar_url"`
	}
	if err := a.db.SelectContext(ctx, &rows,
		`SELECT id, email, name, role, is_bot, timezone, joined_at, avatar_url
		   FROM users ORDER BY joined_at, id`); err != nil {
		return nil, err
	}
	out := make([]source.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, source.User{
			ID:        r.ID,
			Email:     r.Email,
			FullName:  r.Name,
			Role:      roleOf(r.Role),
			IsBot:     r.IsBot,
			Timezone:  r.Timezone,
			JoinedAt:  r.JoinedAt,
			AvatarURL: r.AvatarURL,
		})
	}
	return out, nil
}

func roleOf(role string) source.Role {
	switch role {
	case "owner":
		return source.RoleOwner
	case "admin":
		return source.RoleAdmin
	case "guest":
		return source.RoleGuest
	default:
		return source.RoleMember
	}
}

func (a *Archive) Channels(ctx context.Context) ([]source.Channel, error) {
	var rows []struct {
		ID        string `db:"id"`
		Name      string `db:"name"`
		Purpose   string `db:"purpose"`
		Private   bool   `db:"private"`
		Archived  bool   `db:"archived"`
		CreatedAt int64  `db:"created_at"`
	}
	if err := a.db.SelectContext(ctx, &rows,
		`SELECT id, name, purpose, private, archived, created_at
		   FROM channels ORDER BY created_at, id`); err != nil {
		return nil, err
	}
	members, err := a.members(ctx, "channel_members", "channel_id")
	if err != nil {
		return nil, err
	}
	out := make([]source.Channel, 0, len(rows))
	for _, r := range rows {
		out = append(out, source.Channel{
			ID:        r.ID,
			Name:      r.Name,
			Purpose:   r.Purpose,
			Private:   r.Private,
			Archived:  r.Archived,
			CreatedAt: r.CreatedAt,
			Members:   members[r.ID],
		})
	}
	return out, nil
}

func (a *Archive) Groups(ctx context.Context) ([]source.Group, error) {
	var ids []string
	err := a.db.SelectContext(ctx, &ids, `SELECT id FROM dm_groups ORDER BY id`)
	if err != nil {
		if isNoTable(err) {
			return nil, source.ErrNotSupported
		}
		return nil, err
	}
	if len(ids) == 0 {
		return nil, source.ErrNotFound
	}
	members, err := a.members(ctx, "dm_group_members", "group_id")
	if err != nil {
		return nil, err
	}
	out := make([]source.Group, 0, len(ids))
	for _, id := range ids {
		out = append(out, source.Group{ID: id, Members: members[id]})
	}
	return out, nil
}

// members loads a membership join table into owner id -> user ids.
func (a *Archive) members(ctx context.Context, table, ownerCol string) (map[string][]string, error) {
	var rows []struct {
		Owner string `db:"owner"`
		User  string `db:"user_id"`
	}
	q := fmt.Sprintf(`SELECT %s AS owner, user_id FROM %s ORDER BY %s, user_id`, ownerCol, table, ownerCol)
	if err := a.db.SelectContext(ctx, &rows, q); err != nil {
		if isNoTable(err) {
			return map[string][]string{}, nil
		}
		return nil, err
	}
	m := make(map[string][]string)
	for _, r := range rows {
		m[r.Owner] = append(m[r.Owner], r.User)
	}
	return m, nil
}

func (a *Archive) CustomEmoji(ctx context.Context) (map[string]string, error) {
	var rows []struct {
		Name string `db:"name"`
		URL  string `db:"url"`
	}
	if err := a.db.SelectContext(ctx, &rows, `SELECT name, url FROM custom_emoji`); err != nil {
		if isNoTable(err) {
			return nil, source.ErrNotSupported
		}
		return nil, err
	}
	if len(rows) == 0 {
		return nil, source.ErrNotFound
	}
	m := make(map[string]string, len(rows))
	for _, r := range rows {
		m[r.Name] = r.URL
	}
	return m, nil
}

// messageRow is one row of the messages table.
type messageRow struct {
	ID       int64  `db:"id"`
	DestKind string `db:"dest_kind"` // stream, personal, group
	DestID   string `db:"dest_id"`
	SenderID string `db:"sender_id"`
	TS       int64  `db:"ts"`
	Text     string `db:"text"`
	Topic    string `db:"topic"`
}

// Messages streams the messages table in timestamp order.  Files and
// reactions are small relative to the message body and are preloaded into
// per-message maps.
func (a *Archive) Messages(ctx context.Context) (iter.Seq2[*source.Message, error], error) {
	files, err := a.loadFiles(ctx)
	if err != nil {
		return nil, err
	}
	reactions, err := a.loadReactions(ctx)
	if err != nil {
		return nil, err
	}
	return func(yield func(*source.Message, error) bool) {
		rows, err := a.db.QueryxContext(ctx,
			`SELECT id, dest_kind, dest_id, sender_id, ts, text, topic
			   FROM messages ORDER BY ts, id`)
		if err != nil {
			yield(nil, err)
			return
		}
		defer rows.Close()
		for rows.Next() {
			var r messageRow
			if err := rows.StructScan(&r); err != nil {
				yield(nil, err)
				return
			}
			m, err := convRow(&r)
			if err != nil {
				yield(nil, err)
				return
			}
			m.Files = files[r.ID]
			m.Reactions = reactions[r.ID]
			if !yield(m, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}, nil
}

func convRow(r *messageRow) (*source.Message, error) {
	var kind source.DestKind
	switch r.DestKind {
	case "stream":
		kind = source.ToStream
	case "personal":
		kind = source.ToPersonal
	case "group":
		kind = source.ToGroup
	default:
		return nil, fmt.Errorf("message %d: unexpected dest_kind %q", r.ID, r.DestKind)
	}
	return &source.Message{
		Dest:     source.Dest{Kind: kind, ID: r.DestID},
		SenderID: r.SenderID,
		TS:       r.TS,
		Text:     r.Text,
		Topic:    r.Topic,
	}, nil
}

func (a *Archive) loadFiles(ctx context.Context) (map[int64][]source.FileRef, error) {
	var rows []struct {
		MessageID int64  `db:"message_id"`
		ID        string `db:"id"`
		Name      string `db:"name"`
		URL       string `db:"url"`
		LocalPath string `db:"local_path"`
		Size      int64  `db:"size"`
		IsImage   bool   `db:"is_image"`
	}
	err := a.db.SelectContext(ctx, &rows,
		`SELECT message_id, id, name, url, local_path, size, is_image
		   FROM files ORDER BY message_id, id`)
	if err != nil {
		if isNoTable(err) {
			return map[int64][]source.FileRef{}, nil
		}
		return nil, err
	}
	m := make(map[int64][]source.FileRef)
	for _, r := range rows {
		m[r.MessageID] = append(m[r.MessageID], source.FileRef{
			ID:        r.ID,
			Name:      r.Name,
			URL:       r.URL,
			LocalPath: r.LocalPath,
			Size:      r.Size,
			IsImage:   r.IsImage,
		})
	}
	return m, nil
}

func (a *Archive) loadReactions(ctx context.Context) (map[int64][]source.Reaction, error) {
	var rows []struct {
		MessageID int64  `db:"message_id"`
		Name      string `db:"name"`
		UserID    string `db:"user_id"`
	}
	err := a.db.SelectContext(ctx, &rows,
		`SELECT message_id, name, user_id FROM reactions ORDER BY message_id, name, user_id`)
	if err != nil {
		if isNoTable(err) {
			return map[int64][]source.Reaction{}, nil
		}
		return nil, err
	}
	m := make(map[int64][]source.Reaction)
	for _, r := range rows {
		rr := m[r.MessageID]
		if n := len(rr); n > 0 && rr[n-1].Name == r.Name {
			rr[n-1].Users = append(rr[n-1].Users, r.UserID)
		} else {
			rr = append(rr, source.Reaction{Name: r.Name, Users: []string{r.UserID}})
		}
		m[r.MessageID] = rr
	}
	return m, nil
}

// isNoTable detects the sqlite "no such table" error; optional tables are
// allowed to be absent from older archives.
func isNoTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

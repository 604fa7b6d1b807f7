// Package slackexp reads an unpacked Slack export directory: users.json,
// channels.json, the optional groups/mpims/dms index files, and one
// subdirectory of day files per conversation.
package slackexp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rusq/slack"
	"golang.org/x/sync/errgroup"

	"github.com/chatport/chatport/internal/osext"
	"github.com/chatport/chatport/internal/source"
)

// uploadsDir is the bundled-files directory some export tools add; standard
// Slack exports carry download URLs instead.
const uploadsDir = "__uploads"

// Export is the source.Source over one export directory.
type Export struct {
	root string
	lg   *slog.Logger

	loadOnce sync.Once
	loadErr  error
	idx      index

	chanName map[string]string   // conversation id -> directory name
	dmOf     map[string][]string // dm id -> member user ids
	bundled  bool                // __uploads present
}

// dm is one direct message entry of dms.json.
type dm struct {
	ID      string   `json:"id"`
	Created int64    `json:"created"`
	Members []string `json:"members"`
}

// index mirrors the export's top level json files.
type index struct {
	Users    []slack.User
	Channels []slack.Channel
	Groups   []slack.Channel
	MPIMs    []slack.Channel
	DMs      []dm
}

type Option func(*Export)

// WithLogger sets the logger.
func WithLogger(lg *slog.Logger) Option {
	return func(e *Export) {
		if lg != nil {
			e.lg = lg
		}
	}
}

// Open validates the export directory.  Parsing is deferred until first use.
func Open(root string, opt ...Option) (*Export, error) {
	if err := osext.DirExists(root); err != nil {
		return nil, fmt.Errorf("slack export: %w", err)
	}
	if _, err := os.Stat(filepath.Join(root, "users.json")); err != nil {
		return nil, fmt.Errorf("slack export: not an export directory, missing users.json: %w", err)
	}
	e := &Export{
		root:     root,
		lg:       slog.Default(),
		chanName: make(map[string]string),
		dmOf:     make(map[string][]string),
	}
	for _, o := range opt {
		o(e)
	}
	return e, nil
}

func (e *Export) Name() string { return "Slack" }

// Root returns the export directory, for local attachment resolution.
func (e *Export) Root() string { return e.root }

// load reads the index files.  They are independent, so they load in
// parallel.
func (e *Export) load() error {
	e.loadOnce.Do(func() {
		var eg errgroup.Group
		eg.Go(func() error { return e.readJSON("users.json", &e.idx.Users, true) })
		eg.Go(func() error { return e.readJSON("channels.json", &e.idx.Channels, true) })
		eg.Go(func() error { return e.readJSON("groups.json", &e.idx.Groups, false) })
		eg.Go(func() error { return e.readJSON("mpims.json", &e.idx.MPIMs, false) })
		eg.Go(func() error { return e.readJSON("dms.json", &e.idx.DMs, false) })
		if e.loadErr = eg.Wait(); e.loadErr != nil {
			return
		}
		for _, ch := range e.idx.Channels {
			e.chanName[ch.ID] = nvl(ch.Name, ch.ID)
		}
		for _, ch := range e.idx.Groups {
			e.chanName[ch.ID] = nvl(ch.Name, ch.ID)
		}
		for _, ch := range e.idx.MPIMs {
			e.chanName[ch.ID] = nvl(ch.Name, ch.ID)
		}
		for _, d := range e.idx.DMs {
			e.chanName[d.ID] = d.ID // DM directories are named by id
			e.dmOf[d.ID] = d.Members
		}
		if _, err := os.Stat(filepath.Join(e.root, uploadsDir)); err == nil {
			e.bundled = true
		}
	})
	return e.loadErr
}

func (e *Export) readJSON(name string, v any, required bool) error {
	data, err := os.ReadFile(filepath.Join(e.root, name))
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	return nil
}

// Realm synthesises workspace info from the directory name: exports carry no
// team record.
func (e *Export) Realm(ctx context.Context) (source.RealmInfo, error) {
	if err := e.load(); err != nil {
		return source.RealmInfo{}, err
	}
	name := filepath.Base(e.root)
	var created int64
	for _, ch := range e.idx.Channels {
		if c := int64(ch.Created); created == 0 || (c > 0 && c < created) {
			created = c
		}
	}
	return source.RealmInfo{
		Name:      name,
		Subdomain: subdomain(name),
		CreatedAt: created,
	}, nil
}

func (e *Export) Users(ctx context.Context) ([]source.User, error) {
	if err := e.load(); err != nil {
		return nil, err
	}
	users := make([]source.User, 0, len(e.idx.Users))
	for _, u := range e.idx.Users {
		users = append(users, source.User{
			ID:        u.ID,
			Email:     u.Profile.Email,
			FullName:  nvl(u.RealName, u.Name),
			Role:      roleOf(&u),
			IsBot:     u.IsBot,
			Timezone:  u.TZ,
			AvatarURL: u.Profile.Image512,
		})
	}
	return users, nil
}

// roleOf maps the slack permission flags.  Restricted ("single-channel" and
// "multi-channel guest") accounts map to guests.
func roleOf(u *slack.User) source.Role {
	switch {
	case u.IsPrimaryOwner, u.IsOwner:
		return source.RoleOwner
	case u.IsAdmin:
		return source.RoleAdmin
	case u.IsRestricted, u.IsUltraRestricted:
		return source.RoleGuest
	default:
		return source.RoleMember
	}
}

// Channels returns public channels plus private ones (groups.json).
func (e *Export) Channels(ctx context.Context) ([]source.Channel, error) {
	if err := e.load(); err != nil {
		return nil, err
	}
	var out []source.Channel
	for _, ch := range e.idx.Channels {
		out = append(out, convChannel(&ch, false))
	}
	for _, ch := range e.idx.Groups {
		out = append(out, convChannel(&ch, true))
	}
	return out, nil
}

func convChannel(ch *slack.Channel, private bool) source.Channel {
	return source.Channel{
		ID:        ch.ID,
		Name:      nvl(ch.Name, ch.ID),
		Purpose:   ch.Purpose.Value,
		Private:   private || ch.IsPrivate,
		Archived:  ch.IsArchived,
		CreatedAt: int64(ch.Created),
		Members:   ch.Members,
	}
}

func (e *Export) Groups(ctx context.Context) ([]source.Group, error) {
	if err := e.load(); err != nil {
		return nil, err
	}
	if len(e.idx.MPIMs) == 0 {
		return nil, source.ErrNotFound
	}
	out := make([]source.Group, 0, len(e.idx.MPIMs))
	for _, ch := range e.idx.MPIMs {
		out = append(out, source.Group{ID: ch.ID, Members: ch.Members})
	}
	return out, nil
}

// CustomEmoji is not part of the Slack export format.
func (e *Export) CustomEmoji(ctx context.Context) (map[string]string, error) {
	return nil, source.ErrNotSupported
}

// Messages merges the per-conversation day-file streams into one globally
// time-ordered iterator.  Each call re-walks the files, so the iterator is
// restartable.
func (e *Export) Messages(ctx context.Context) (iter.Seq2[*source.Message, error], error) {
	if err := e.load(); err != nil {
		return nil, err
	}
	var seqs []iter.Seq2[*source.Message, error]
	add := func(id string, dest source.Dest) {
		dir := filepath.Join(e.root, e.chanName[id])
		if _, err := os.Stat(dir); err != nil {
			// a conversation with no directory simply has no history.
			return
		}
		seqs = append(seqs, e.conversation(ctx, dir, dest))
	}
	for _, ch := range e.idx.Channels {
		add(ch.ID, source.Dest{Kind: source.ToStream, ID: ch.ID})
	}
	for _, ch := range e.idx.Groups {
		add(ch.ID, source.Dest{Kind: source.ToStream, ID: ch.ID})
	}
	for _, ch := range e.idx.MPIMs {
		add(ch.ID, source.Dest{Kind: source.ToGroup, ID: ch.ID})
	}
	for _, d := range e.idx.DMs {
		add(d.ID, source.Dest{Kind: source.ToPersonal, ID: d.ID})
	}
	return source.Merge(seqs...), nil
}

// conversation yields one conversation's messages in timestamp order.  Day
// files sort lexically into chronological order; rows within one file are
// sorted before yielding.
func (e *Export) conversation(ctx context.Context, dir string, dest source.Dest) iter.Seq2[*source.Message, error] {
	return func(yield func(*source.Message, error) bool) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			yield(nil, err)
			return
		}
		names := make([]string, 0, len(entries))
		for _, de := range entries {
			if de.IsDir() || filepath.Ext(de.Name()) != ".json" {
				continue
			}
			names = append(names, de.Name())
		}
		sort.Strings(names)
		for _, name := range names {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			mm, err := e.dayFile(filepath.Join(dir, name), dest)
			if err != nil {
				var jsonErr *json.SyntaxError
				if errors.As(err, &jsonErr) {
					e.lg.Warn("skipping broken file", "path", name, "err", err)
					continue
				}
				yield(nil, err)
				return
			}
			for _, m := range mm {
				if !yield(m, nil) {
					return
				}
			}
		}
	}
}

// exportMessage is slack.Msg plus the export-only fields.
type exportMessage struct {
	slack.Msg

	UserTeam   string `json:"user_team,omitempty"`
	SourceTeam string `json:"source_team,omitempty"`
}

func (e *Export) dayFile(path string, dest source.Dest) ([]*source.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []exportMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	var out []*source.Message
	for i := range rows {
		m := e.convMessage(&rows[i], dest)
		if m == nil {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TS < out[j].TS })
	return out, nil
}

// system subtypes that carry no conversational content.
var skipSubtypes = map[string]bool{
	"channel_join":      true,
	"channel_leave":     true,
	"channel_name":      true,
	"channel_topic":     true,
	"channel_purpose":   true,
	"channel_archive":   true,
	"channel_unarchive": true,
	"group_join":        true,
	"group_leave":       true,
	"bot_add":           true,
	"bot_remove":        true,
}

func (e *Export) convMessage(row *exportMessage, dest source.Dest) *source.Message {
	if row.User == "" || skipSubtypes[row.SubType] {
		return nil
	}
	m := &source.Message{
		Dest:     e.resolveDest(dest, row.User),
		SenderID: row.User,
		TS:       parseTS(row.Timestamp),
		Text:     normalizeText(row.Text),
	}
	for _, f := range row.Files {
		fr := source.FileRef{
			ID:      f.ID,
			Name:    nvl(f.Name, f.ID),
			Size:    int64(f.Size),
			IsImage: strings.HasPrefix(f.Mimetype, "image/"),
		}
		if e.bundled {
			fr.LocalPath = uploadsDir + "/" + f.ID + "/" + fr.Name
		} else {
			fr.URL = nvl(f.URLPrivateDownload, f.URLPrivate)
		}
		m.Files = append(m.Files, fr)
	}
	for _, r := range row.Reactions {
		m.Reactions = append(m.Reactions, source.Reaction{Name: r.Name, Users: r.Users})
	}
	return m
}

// resolveDest turns a DM destination into the counterparty's user id.  A
// message to yourself stays addressed to the sender.
func (e *Export) resolveDest(dest source.Dest, sender string) source.Dest {
	if dest.Kind != source.ToPersonal {
		return dest
	}
	members := e.dmOf[dest.ID]
	for _, m := range members {
		if m != sender {
			return source.Dest{Kind: source.ToPersonal, ID: m}
		}
	}
	return source.Dest{Kind: source.ToPersonal, ID: sender}
}

// parseTS converts a slack "seconds.fraction" timestamp to epoch seconds.
func parseTS(ts string) int64 {
	sec, _, _ := strings.Cut(ts, ".")
	var n int64
	for _, c := range sec {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int64(c-'0')
	}
	return n
}

func nvl(s string, alt string) string {
	if s != "" {
		return s
	}
	return alt
}

func subdomain(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case 'a' <= r && r <= 'z', '0' <= r && r <= '9':
			sb.WriteRune(r)
		case r == ' ', r == '_', r == '.':
			sb.WriteByte('-')
		}
	}
	return strings.Trim(sb.String(), "-")
}

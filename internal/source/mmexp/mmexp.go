// Package mmexp reads a Mattermost bulk export: one JSONL file where every
// line is a typed record (team, channel, user, post, direct_channel,
// direct_post, emoji).
//
// The bulk format carries no stable ids, so usernames and channel names act
// as the source identifiers; direct channels are identified by their sorted
// member list.
package mmexp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chatport/chatport/internal/source"
)

// line is one decoded JSONL record.  Only the envelope of the matching type
// is populated.
type line struct {
	Type          string         `json:"type"`
	Team          *team          `json:"team,omitempty"`
	Channel       *channel       `json:"channel,omitempty"`
	User          *user          `json:"user,omitempty"`
	Post          *post          `json:"post,omitempty"`
	DirectChannel *directChannel `json:"direct_channel,omitempty"`
	DirectPost    *directPost    `json:"direct_post,omitempty"`
	Emoji         *emoji         `json:"emoji,omitempty"`
}

type team struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
}

type channel struct {
	Team        string `json:"team"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Type        string `json:"type"` // O public, P private
	Header      string `json:"header"`
	Purpose     string `json:"purpose"`
}

type user struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
	Roles    string `json:"roles"`
	Teams    []struct {
		Name     string `json:"name"`
		Channels []struct {
			Name string `json:"name"`
		} `json:"channels"`
	} `json:"teams"`
}

type attachment struct {
	Path string `json:"path"`
}

type reply struct {
	User        string       `json:"user"`
	Message     string       `json:"message"`
	CreateAt    int64        `json:"create_at"`
	Attachments []attachment `json:"attachments"`
}

type reaction struct {
	User      string `json:"user"`
	EmojiName string `json:"emoji_name"`
}

type post struct {
	Team        string       `json:"team"`
	Channel     string       `json:"channel"`
	User        string       `json:"user"`
	Message     string       `json:"message"`
	CreateAt    int64        `json:"create_at"` // milliseconds
	Replies     []reply      `json:"replies"`
	Attachments []attachment `json:"attachments"`
	Reactions   []reaction   `json:"reactions"`
}

type directChannel struct {
	Members []string `json:"members"`
}

type directPost struct {
	ChannelMembers []string     `json:"channel_members"`
	User           string       `json:"user"`
	Message        string       `json:"message"`
	CreateAt       int64        `json:"create_at"`
	Replies        []reply      `json:"replies"`
	Attachments    []attachment `json:"attachments"`
	Reactions      []reaction   `json:"reactions"`
}

type emoji struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

// Export is the source.Source over one bulk export file.
type Export struct {
	path string
	lg   *slog.Logger

	team     team
	channels []channel
	users    []user
	directs  []directChannel
	emoji    map[string]string
	loaded   bool
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

// Open reads the non-post records up front; posts are re-streamed on every
// Messages call.
func Open(path string, opt ...Option) (*Export, error) {
	e := &Export{
		path:  path,
		lg:    slog.Default(),
		emoji: make(map[string]string),
	}
	for _, o := range opt {
		o(e)
	}
	if err := e.scan(func(l *line) error {
		switch l.Type {
		case "team":
			if l.Team != nil {
				e.team = *l.Team
			}
		case "channel":
			if l.Channel != nil {
				e.channels = append(e.channels, *l.Channel)
			}
		case "user":
			if l.User != nil {
				e.users = append(e.users, *l.User)
			}
		case "direct_channel":
			if l.DirectChannel != nil {
				e.directs = append(e.directs, *l.DirectChannel)
			}
		case "emoji":
			if l.Emoji != nil {
				e.emoji[l.Emoji.Name] = l.Emoji.Image
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	e.loaded = true
	return e, nil
}

// scan streams the JSONL file through fn.
func (e *Export) scan(fn func(*line) error) error {
	f, err := os.Open(e.path)
	if err != nil {
		return fmt.Errorf("mattermost export: %w", err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 1<<20), 16<<20) // posts with replies run long
	lineNo := 0
	for sc.Scan() {
		lineNo++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var l line
		if err := json.Unmarshal([]byte(text), &l); err != nil {
			return fmt.Errorf("mattermost export: line %d: %w", lineNo, err)
		}
		if err := fn(&l); err != nil {
			return err
		}
	}
	return sc.Err()
}

func (e *Export) Name() string { return "Mattermost" }

// Root returns the directory of the export file: attachment paths are
// relative to it.
func (e *Export) Root() string { return filepath.Dir(e.path) }

func (e *Export) Realm(ctx context.Context) (source.RealmInfo, error) {
	name := e.team.DisplayName
	if name == "" {
		name = e.team.Name
	}
	return source.RealmInfo{Name: name, Subdomain: e.team.Name}, nil
}

func (e *Export) Users(ctx context.Context) ([]source.User, error) {
	out := make([]source.User, 0, len(e.users))
	for _, u := range e.users {
		name := u.Nickname
		if name == "" {
			name = u.Username
		}
		out = append(out, source.User{
			ID:       u.Username,
			Email:    u.Email,
			FullName: name,
			Role:     roleOf(u.Roles),
		})
	}
	return out, nil
}

func roleOf(roles string) source.Role {
	switch {
	case strings.Contains(roles, "system_admin"):
		return source.RoleAdmin
	case strings.Contains(roles, "system_guest"):
		return source.RoleGuest
	default:
		return source.RoleMember
	}
}

func (e *Export) Channels(ctx context.Context) ([]source.Channel, error) {
	members := e.channelMembers()
	out := make([]source.Channel, 0, len(e.channels))
	for _, ch := range e.channels {
		out = append(out, source.Channel{
			ID:      ch.Name,
			Name:    displayName(ch),
			Purpose: ch.Purpose,
			Private: ch.Type == "P",
			Members: members[ch.Name],
		})
	}
	return out, nil
}

func displayName(ch channel) string {
	if ch.DisplayName != "" {
		return ch.DisplayName
	}
	return ch.Name
}

// channelMembers inverts the per-user team/channel membership lists.
func (e *Export) channelMembers() map[string][]string {
	m := make(map[string][]string)
	for _, u := range e.users {
		for _, t := range u.Teams {
			for _, ch := range t.Channels {
				m[ch.Name] = append(m[ch.Name], u.Username)
			}
		}
	}
	return m
}

// Groups returns the multi-member direct channels.  Two-member ones are
// personal conversations, not groups.
func (e *Export) Groups(ctx context.Context) ([]source.Group, error) {
	var out []source.Group
	for _, dc := range e.directs {
		if len(dc.Members) <= 2 {
			continue
		}
		out = append(out, source.Group{ID: directID(dc.Members), Members: dc.Members})
	}
	if len(out) == 0 {
		return nil, source.ErrNotFound
	}
	return out, nil
}

func (e *Export) CustomEmoji(ctx context.Context) (map[string]string, error) {
	if len(e.emoji) == 0 {
		return nil, source.ErrNotFound
	}
	return e.emoji, nil
}

// directID is the stable identifier of a direct channel: its sorted member
// list.
func directID(members []string) string {
	mm := append([]string(nil), members...)
	sort.Strings(mm)
	return strings.Join(mm, ",")
}

// Messages loads all posts, flattens replies into the thread's topic, sorts
// globally and returns a slice-backed iterator.  The bulk format interleaves
// posts in no guaranteed order, so a streaming merge is not possible.
func (e *Export) Messages(ctx context.Context) (iter.Seq2[*source.Message, error], error) {
	var all []*source.Message
	err := e.scan(func(l *line) error {
		switch l.Type {
		case "post":
			if l.Post == nil {
				return nil
			}
			p := l.Post
			dest := source.Dest{Kind: source.ToStream, ID: p.Channel}
			all = append(all, e.conv(dest, p.User, p.Message, p.CreateAt, p.Attachments, p.Reactions))
			for _, rp := range p.Replies {
				all = append(all, e.conv(dest, rp.User, rp.Message, rp.CreateAt, rp.Attachments, nil))
			}
		case "direct_post":
			if l.DirectPost == nil {
				return nil
			}
			p := l.DirectPost
			dest := e.directDest(p.ChannelMembers, p.User)
			all = append(all, e.conv(dest, p.User, p.Message, p.CreateAt, p.Attachments, p.Reactions))
			for _, rp := range p.Replies {
				all = append(all, e.conv(dest, rp.User, rp.Message, rp.CreateAt, rp.Attachments, nil))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].TS < all[j].TS })
	return source.SliceSeq(all), nil
}

func (e *Export) directDest(members []string, sender string) source.Dest {
	if len(members) > 2 {
		return source.Dest{Kind: source.ToGroup, ID: directID(members)}
	}
	for _, m := range members {
		if m != sender {
			return source.Dest{Kind: source.ToPersonal, ID: m}
		}
	}
	return source.Dest{Kind: source.ToPersonal, ID: sender}
}

func (e *Export) conv(dest source.Dest, sender, text string, createAt int64, atts []attachment, reacts []reaction) *source.Message {
	m := &source.Message{
		Dest:     dest,
		SenderID: sender,
		TS:       createAt / 1000,
		Text:     text,
	}
	for _, a := range atts {
		name := filepath.Base(a.Path)
		m.Files = append(m.Files, source.FileRef{
			ID:        a.Path,
			Name:      name,
			LocalPath: a.Path,
			IsImage:   isImageName(name),
		})
	}
	byEmoji := make(map[string][]string)
	var order []string
	for _, r := range reacts {
		if len(byEmoji[r.EmojiName]) == 0 {
			order = append(order, r.EmojiName)
		}
		byEmoji[r.EmojiName] = append(byEmoji[r.EmojiName], r.User)
	}
	for _, name := range order {
		m.Reactions = append(m.Reactions, source.Reaction{Name: name, Users: byEmoji[name]})
	}
	return m
}

func isImageName(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp":
		return true
	}
	return false
}

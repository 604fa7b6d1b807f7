// Copyright (c) 2025-2026 The chatport Authors and Contributors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package convert orchestrates a whole conversion run: roster and channel
// conversion, the recipient/subscription graph, idle classification, the
// chunked message pipeline, attachment and media relocation, and the final
// tarball.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/rusq/fsadapter"
	"github.com/schollz/progressbar/v3"

	"github.com/chatport/chatport/internal/config"
	"github.com/chatport/chatport/internal/downloader"
	"github.com/chatport/chatport/internal/emit"
	"github.com/chatport/chatport/internal/emojidef"
	"github.com/chatport/chatport/internal/graph"
	"github.com/chatport/chatport/internal/idle"
	"github.com/chatport/chatport/internal/ids"
	"github.com/chatport/chatport/internal/osext"
	"github.com/chatport/chatport/internal/pipeline"
	"github.com/chatport/chatport/internal/source"
	"github.com/chatport/chatport/internal/uploads"
	"github.com/chatport/chatport/internal/zerver"
)

// Converter drives one conversion run.  Zero value is not usable, use New.
type Converter struct {
	src    source.Source
	outDir string
	cfg    config.Params

	getter   downloader.Getter
	lg       *slog.Logger
	progress bool
	now      func() time.Time
}

type Option func(*Converter)

// WithConfig overrides the default configuration.
func WithConfig(cfg config.Params) Option {
	return func(c *Converter) {
		c.cfg = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(lg *slog.Logger) Option {
	return func(c *Converter) {
		if lg != nil {
			c.lg = lg
		}
	}
}

// WithGetter overrides the HTTP fetcher used for remote files.
func WithGetter(g downloader.Getter) Option {
	return func(c *Converter) {
		if g != nil {
			c.getter = g
		}
	}
}

// WithProgress enables the terminal progress bar.
func WithProgress(b bool) Option {
	return func(c *Converter) {
		c.progress = b
	}
}

// WithNow overrides the reference time, for tests.
func WithNow(fn func() time.Time) Option {
	return func(c *Converter) {
		if fn != nil {
			c.now = fn
		}
	}
}

func New(src source.Source, outDir string, opt ...Option) *Converter {
	c := &Converter{
		src:    src,
		outDir: outDir,
		cfg:    config.Default(),
		getter: &downloader.HTTPGetter{},
		lg:     slog.Default(),
		now:    time.Now,
	}
	for _, o := range opt {
		o(c)
	}
	return c
}

// run carries the mutable state of one conversion.
type run struct {
	seq       *ids.Sequencer
	realmID   int
	realmInfo source.RealmInfo

	userMap   *ids.Mapper[string]
	streamMap *ids.Mapper[string]
	groupMap  *ids.Mapper[string]

	users    []source.User // sorted, mirror dummies appended
	profiles []zerver.UserProfile
	streams  []*zerver.Stream
	groups   []graph.Group
	graph    *graph.Result

	scan       *idle.Stats
	idleSet    map[int]bool
	realmEmoji []zerver.RealmEmojiRecord
	emojiNames []string
}

// Convert executes the whole run.  The output directory must be empty: a
// partial tree from a killed run cannot be resumed into and must be
// discarded first.
func (c *Converter) Convert(ctx context.Context) error {
	if err := osext.EmptyOrCreate(c.outDir); err != nil {
		return fmt.Errorf("output directory %s: %w", c.outDir, err)
	}
	fsa := fsadapter.NewDirectory(c.outDir)

	r := &run{
		seq:       ids.NewSequencer(),
		userMap:   ids.NewMapper[string](),
		streamMap: ids.NewMapper[string](),
		groupMap:  ids.NewMapper[string](),
		idleSet:   make(map[int]bool),
	}

	info, err := c.src.Realm(ctx)
	if err != nil {
		return fmt.Errorf("reading workspace info: %w", err)
	}
	r.realmInfo = info
	r.realmID = r.seq.Next("realm")

	c.lg.Info("converting users", "source", c.src.Name())
	if err := c.convertUsers(ctx, r); err != nil {
		return err
	}

	c.lg.Info("scanning messages for idle classification")
	if err := c.classify(ctx, r); err != nil {
		return err
	}

	c.lg.Info("converting streams")
	subs := graph.NewSubscriberHandler()
	if err := c.convertChannels(ctx, r, subs); err != nil {
		return err
	}
	if err := c.convertGroups(ctx, r, subs); err != nil {
		return err
	}

	streamPtrs := r.streams
	userIDs := make([]int, len(r.profiles))
	for i, p := range r.profiles {
		userIDs[i] = p.ID
	}
	g, err := graph.Build(r.seq, userIDs, streamPtrs, r.groups, subs)
	if err != nil {
		return fmt.Errorf("building recipient graph: %w", err)
	}
	r.graph = g

	// media pool: avatars, emoji images and remote attachments all go
	// through one bounded worker pool.
	dl := downloader.New(c.getter, fsa,
		downloader.Workers(c.cfg.Convert.Workers),
		downloader.Retries(c.cfg.Convert.Retries),
		downloader.WithLogger(c.lg))
	dl.Start(ctx)
	defer dl.Stop()

	if err := c.convertEmoji(ctx, r, dl, fsa); err != nil {
		return err
	}
	avatarRecords := c.convertAvatars(r, dl)

	c.lg.Info("converting messages", "total", r.scan.Total)
	ex := uploads.NewExtractor(uploads.NewFSStorage(fsa, "uploads"), r.realmID, r.seq, c.srcRoot(),
		uploads.WithLogger(c.lg),
		uploads.WithDownloader(func(url, trgpath string) {
			if err := dl.Download(path.Join("uploads", trgpath), url); err != nil {
				c.lg.Warn("failed to queue download", "url", url, "err", err)
			}
		}))
	stats, err := c.convertMessages(ctx, r, ex, fsa)
	if err != nil {
		return err
	}

	// inject the post-pass user fields.
	for i := range r.profiles {
		p := &r.profiles[i]
		p.LongTermIdle = r.idleSet[p.ID]
		if last, ok := stats.LastActive[p.ID]; ok {
			lastCopy := last
			p.LastActiveMessageID = &lastCopy
		}
	}

	c.lg.Info("writing realm data")
	if err := c.writeRealm(fsa, r); err != nil {
		return err
	}
	if err := emit.WriteAttachments(fsa, ex.Attachments()); err != nil {
		return err
	}
	if err := emit.WriteUploadRecords(fsa, ex.Records()); err != nil {
		return err
	}
	if err := emit.WriteAvatarRecords(fsa, avatarRecords); err != nil {
		return err
	}

	c.lg.Info("waiting for downloads to complete")
	dl.Stop()
	if n := dl.Failed(); n > 0 {
		c.lg.Warn("some files could not be downloaded", "count", n)
	}

	tarball := c.outDir + ".tar.gz"
	c.lg.Info("archiving", "path", tarball)
	if err := emit.Tarball(c.outDir, tarball); err != nil {
		return err
	}

	c.lg.Info("conversion complete",
		"output", tarball,
		"users", len(r.profiles),
		"streams", len(r.streams),
		"messages", stats.Messages,
		"usermessages", stats.UserMessages,
		"skipped", stats.Skipped)
	return nil
}

// convertUsers maps the roster into user profiles.  Owners sort first so
// their ids come out lowest; the rest keep roster order.
func (c *Converter) convertUsers(ctx context.Context, r *run) error {
	users, err := c.src.Users(ctx)
	if err != nil {
		return fmt.Errorf("reading users: %w", err)
	}
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].Role == source.RoleOwner && users[j].Role != source.RoleOwner
	})
	r.users = users
	for _, u := range users {
		id := r.userMap.Get(u.ID)
		role, err := roleOf(u)
		if err != nil {
			return err
		}
		p, err := zerver.NewUserProfile(zerver.UserParams{
			ID:         id,
			Email:      emailOf(u),
			FullName:   u.FullName,
			Role:       role,
			IsBot:      u.IsBot,
			Timezone:   u.Timezone,
			DateJoined: u.JoinedAt,
		})
		if err != nil {
			return err
		}
		r.profiles = append(r.profiles, p)
	}
	return nil
}

// classify runs the idle scan pass and synthesises mirror dummy profiles
// for senders absent from the roster.
func (c *Converter) classify(ctx context.Context, r *run) error {
	msgs, err := c.src.Messages(ctx)
	if err != nil {
		return fmt.Errorf("opening message stream: %w", err)
	}
	cl := idle.New(
		idle.WithWindow(c.cfg.Idle.Window()),
		idle.WithThreshold(c.cfg.Idle.Threshold),
		idle.WithNow(c.now),
	)
	scan, err := cl.Scan(msgs)
	if err != nil {
		return fmt.Errorf("idle classification: %w", err)
	}
	r.scan = scan

	// mirror dummies: the sender existed, the roster no longer has them.
	for _, srcID := range sortedKeys(scan.Senders) {
		if r.userMap.Has(srcID) {
			continue
		}
		id := r.userMap.Get(srcID)
		p, err := zerver.NewUserProfile(zerver.UserParams{
			ID:            id,
			Email:         fmt.Sprintf("mirror-dummy-%s@%s", strings.ToLower(srcID), emailDomain),
			FullName:      srcID,
			Role:          zerver.RoleMember,
			IsMirrorDummy: true,
		})
		if err != nil {
			return err
		}
		r.profiles = append(r.profiles, p)
		r.users = append(r.users, source.User{ID: srcID, FullName: srcID})
		c.lg.Debug("synthesised mirror dummy", "source_id", srcID, "id", id)
	}

	// final idle classification in target id space.
	for _, u := range r.users {
		id := r.userMap.Get(u.ID)
		if !scan.Active[u.ID] {
			r.idleSet[id] = true
		}
	}
	return nil
}

func (c *Converter) convertChannels(ctx context.Context, r *run, subs *graph.SubscriberHandler) error {
	channels, err := c.src.Channels(ctx)
	if err != nil {
		return fmt.Errorf("reading channels: %w", err)
	}
	for _, ch := range channels {
		id := r.streamMap.Get(ch.ID)
		st := zerver.NewStream(id, ch.Name, ch.Purpose, ch.Private, ch.Archived, ch.CreatedAt)
		r.streams = append(r.streams, &st)

		members := make([]int, 0, len(ch.Members))
		for _, m := range ch.Members {
			if r.userMap.Has(m) {
				members = append(members, r.userMap.Get(m))
			}
		}
		subs.SetStreamInfo(id, members...)
	}
	return nil
}

func (c *Converter) convertGroups(ctx context.Context, r *run, subs *graph.SubscriberHandler) error {
	groups, err := c.src.Groups(ctx)
	if err != nil {
		if errors.Is(err, source.ErrNotSupported) || errors.Is(err, source.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("reading groups: %w", err)
	}
	for _, g := range groups {
		id := r.groupMap.Get(g.ID)
		members := make([]int, 0, len(g.Members))
		for _, m := range g.Members {
			if r.userMap.Has(m) {
				members = append(members, r.userMap.Get(m))
			}
		}
		subs.SetGroupInfo(id, members...)
		r.groups = append(r.groups, graph.Group{ID: id, MsgCount: r.scan.GroupMsgCount[g.ID]})
	}
	return nil
}

// convertEmoji registers custom emoji and queues their images.
func (c *Converter) convertEmoji(ctx context.Context, r *run, dl *downloader.Client, fsa fsadapter.FS) error {
	em, err := c.src.CustomEmoji(ctx)
	if err != nil {
		if errors.Is(err, source.ErrNotSupported) || errors.Is(err, source.ErrNotFound) {
			return emit.WriteEmojiRecords(fsa, nil)
		}
		return fmt.Errorf("reading custom emoji: %w", err)
	}
	var records []emit.EmojiRecord
	for _, name := range sortedMapKeys(em) {
		uri := em[name]
		if strings.HasPrefix(uri, "alias:") {
			continue
		}
		fileName := name + ".png"
		r.realmEmoji = append(r.realmEmoji, zerver.NewRealmEmoji(r.seq.Next("realmemoji"), r.realmID, name, fileName))
		r.emojiNames = append(r.emojiNames, name)

		imgPath := fmt.Sprintf("%d/emoji/images/%s", r.realmID, fileName)
		records = append(records, emit.EmojiRecord{
			Name:     name,
			Path:     imgPath,
			S3Path:   imgPath,
			FileName: fileName,
			RealmID:  r.realmID,
		})
		trg := path.Join("emoji", imgPath)
		if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
			if err := dl.Download(trg, uri); err != nil {
				c.lg.Warn("failed to queue emoji download", "name", name, "err", err)
			}
		} else if err := c.copyLocal(fsa, uri, trg); err != nil {
			c.lg.Warn("failed to copy emoji image", "name", name, "path", uri, "err", err)
		}
	}
	// write the records now; the pool fills in the binaries.
	return emit.WriteEmojiRecords(fsa, records)
}

// convertAvatars queues avatar downloads and returns the records.
func (c *Converter) convertAvatars(r *run, dl *downloader.Client) []emit.AvatarRecord {
	var records []emit.AvatarRecord
	for _, u := range r.users {
		if u.AvatarURL == "" {
			continue
		}
		id := r.userMap.Get(u.ID)
		avPath := fmt.Sprintf("%d/%d.png", r.realmID, id)
		records = append(records, emit.AvatarRecord{
			Path:        avPath,
			S3Path:      avPath,
			RealmID:     r.realmID,
			UserProfile: id,
			ContentType: "image/png",
		})
		if err := dl.Download(path.Join("avatars", avPath), u.AvatarURL); err != nil {
			c.lg.Warn("failed to queue avatar download", "user", u.ID, "err", err)
		}
	}
	return records
}

func (c *Converter) convertMessages(ctx context.Context, r *run, ex *uploads.Extractor, fsa fsadapter.FS) (*pipeline.Stats, error) {
	msgs, err := c.src.Messages(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening message stream: %w", err)
	}
	if c.progress {
		bar := progressbar.Default(int64(r.scan.Total), "converting")
		msgs = withTick(msgs, func() { _ = bar.Add(1) })
	}

	userName := make(map[string]string, len(r.users))
	userID := make(map[string]int, len(r.users))
	for _, u := range r.users {
		userName[u.ID] = u.FullName
		userID[u.ID] = r.userMap.Get(u.ID)
	}
	streamName := make(map[string]string)
	streamID := make(map[string]int)
	channels, err := c.src.Channels(ctx)
	if err != nil {
		return nil, err
	}
	for _, ch := range channels {
		streamName[ch.ID] = ch.Name
		streamID[ch.ID] = r.streamMap.Get(ch.ID)
	}
	groupID := make(map[string]int)
	if groups, err := c.src.Groups(ctx); err == nil {
		for _, g := range groups {
			groupID[g.ID] = r.groupMap.Get(g.ID)
		}
	}

	p := pipeline.New(r.seq, r.graph,
		pipeline.Maps{Users: userID, Streams: streamID, Groups: groupID},
		pipeline.NewMentionRewriter(userName, userID, streamName),
		ex,
		emojidef.NewResolver(r.emojiNames),
		emit.NewMessageWriter(fsa),
		fmt.Sprintf("imported from %s", c.src.Name()),
		pipeline.WithChunkSize(c.cfg.Convert.ChunkSize),
		pipeline.WithLongTermIdle(r.idleSet),
		pipeline.WithLogger(c.lg),
	)
	return p.Run(ctx, msgs)
}

func (c *Converter) writeRealm(fsa fsadapter.FS, r *run) error {
	streams := make([]zerver.Stream, len(r.streams))
	for i, st := range r.streams {
		streams[i] = *st
	}
	bundle := &emit.RealmBundle{
		Realm: []zerver.Realm{zerver.NewRealm(
			r.realmID, r.realmInfo.Name, r.realmInfo.Subdomain, c.src.Name(), r.realmInfo.CreatedAt)},
		UserProfiles:  r.profiles,
		Streams:       streams,
		Recipients:    r.graph.Recipients,
		Subscriptions: r.graph.Subscriptions,
		Huddles:       r.graph.Huddles,
		RealmEmoji:    r.realmEmoji,
	}
	return emit.WriteRealm(fsa, bundle)
}

// copyLocal copies a file bundled with the export into the output tree.
func (c *Converter) copyLocal(fsa fsadapter.FS, src, trg string) error {
	if !strings.HasPrefix(src, "/") {
		src = c.srcRoot() + "/" + src
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := fsa.Create(trg)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

// srcRoot returns the export bundle root for local attachment resolution.
func (c *Converter) srcRoot() string {
	if rooted, ok := c.src.(interface{ Root() string }); ok {
		return rooted.Root()
	}
	return "."
}

const emailDomain = "imported.invalid"

func emailOf(u source.User) string {
	if u.Email != "" {
		return u.Email
	}
	return fmt.Sprintf("%s@%s", strings.ToLower(u.ID), emailDomain)
}

// roleOf maps the source role to the target role value, failing fast on an
// unknown value so a broken platform mapper surfaces immediately.
func roleOf(u source.User) (int, error) {
	switch u.Role {
	case source.RoleOwner:
		return zerver.RoleOwner, nil
	case source.RoleAdmin:
		return zerver.RoleAdmin, nil
	case source.RoleMember:
		return zerver.RoleMember, nil
	case source.RoleGuest:
		return zerver.RoleGuest, nil
	default:
		return 0, fmt.Errorf("user %s: unexpected role value %d", u.ID, u.Role)
	}
}

// withTick calls fn for every message yielded.
func withTick(seq iter.Seq2[*source.Message, error], fn func()) iter.Seq2[*source.Message, error] {
	return func(yield func(*source.Message, error) bool) {
		for m, err := range seq {
			if err == nil {
				fn()
			}
			if !yield(m, err) {
				return
			}
		}
	}
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedMapKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

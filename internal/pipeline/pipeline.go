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

// Package pipeline converts the merged source message stream into batched
// message, delivery, and reaction records, bounding peak memory by chunk
// size.  Chunk boundaries are a serialisation device only; nothing spans
// them.
package pipeline

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/chatport/chatport/internal/emojidef"
	"github.com/chatport/chatport/internal/graph"
	"github.com/chatport/chatport/internal/ids"
	"github.com/chatport/chatport/internal/source"
	"github.com/chatport/chatport/internal/uploads"
	"github.com/chatport/chatport/internal/zerver"
)

// DefaultChunkSize is the number of messages per output file.
const DefaultChunkSize = 1000

// Chunk is the content of one messages-NNNNNN.json file.
type Chunk struct {
	Messages     []zerver.Message     `json:"zerver_message"`
	UserMessages []zerver.UserMessage `json:"zerver_usermessage"`
	Reactions    []zerver.Reaction    `json:"zerver_reaction"`
}

// ChunkWriter persists one chunk.  Implemented by the emit package.
type ChunkWriter interface {
	WriteChunk(n int, chunk *Chunk) error
}

// Maps carries the source-to-target id mappings the pipeline needs to
// resolve senders and destinations.
type Maps struct {
	Users   map[string]int // source user id -> target user id
	Streams map[string]int // source channel id -> target stream id
	Groups  map[string]int // source group id -> target group id
}

// Pipeline is the batched message converter.  Construct with New, run once.
type Pipeline struct {
	seq       *ids.Sequencer
	graph     *graph.Result
	maps      Maps
	rewriter  *MentionRewriter
	extractor *uploads.Extractor
	emoji     *emojidef.Resolver
	idle      map[int]bool // target user id -> long-term idle
	writer    ChunkWriter

	topic     string // default topic for stream messages
	chunkSize int
	lg        *slog.Logger
}

type Option func(*Pipeline)

// WithChunkSize overrides the messages-per-file count.
func WithChunkSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.chunkSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(lg *slog.Logger) Option {
	return func(p *Pipeline) {
		if lg != nil {
			p.lg = lg
		}
	}
}

// WithLongTermIdle marks the given target user ids as long-term idle.
func WithLongTermIdle(idle map[int]bool) Option {
	return func(p *Pipeline) {
		if idle != nil {
			p.idle = idle
		}
	}
}

func New(seq *ids.Sequencer, g *graph.Result, maps Maps, rw *MentionRewriter, ex *uploads.Extractor, em *emojidef.Resolver, w ChunkWriter, topic string, opt ...Option) *Pipeline {
	p := &Pipeline{
		seq:       seq,
		graph:     g,
		maps:      maps,
		rewriter:  rw,
		extractor: ex,
		emoji:     em,
		idle:      make(map[int]bool),
		writer:    w,
		topic:     topic,
		chunkSize: DefaultChunkSize,
		lg:        slog.Default(),
	}
	for _, o := range opt {
		o(p)
	}
	return p
}

// Stats is the outcome of a pipeline run.
type Stats struct {
	Messages     int
	UserMessages int
	Reactions    int
	Skipped      int
	Chunks       int
	// LastActive maps a target user id to the id of the last message they
	// sent, injected into the user profiles after the run.
	LastActive map[int]int
}

// Run drains the message stream.  An empty stream is a no-op with zero
// output files.  Per-message data problems are logged and skipped; unknown
// destinations abort, since they mean the id graph is incomplete and
// continuing would corrupt it.
func (p *Pipeline) Run(ctx context.Context, msgs iter.Seq2[*source.Message, error]) (*Stats, error) {
	stats := &Stats{LastActive: make(map[int]int)}
	chunk := &Chunk{}

	flush := func() error {
		if len(chunk.Messages) == 0 {
			return nil
		}
		stats.Chunks++
		if err := p.writer.WriteChunk(stats.Chunks, chunk); err != nil {
			return fmt.Errorf("writing chunk %d: %w", stats.Chunks, err)
		}
		p.lg.Debug("chunk written", "n", stats.Chunks, "messages", len(chunk.Messages))
		chunk = &Chunk{}
		return nil
	}

	for m, err := range msgs {
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !m.HasBody() {
			p.lg.Warn("message has no text representation, skipping", "sender", m.SenderID, "ts", m.TS)
			stats.Skipped++
			continue
		}
		if err := p.one(m, chunk, stats); err != nil {
			return nil, err
		}
		if len(chunk.Messages) >= p.chunkSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return stats, nil
}

// one converts a single message into the chunk.
func (p *Pipeline) one(m *source.Message, chunk *Chunk, stats *Stats) error {
	senderID, ok := p.maps.Users[m.SenderID]
	if !ok {
		return fmt.Errorf("message at ts %d: unknown sender %q", m.TS, m.SenderID)
	}
	recipientID, private, err := p.recipientOf(m.Dest)
	if err != nil {
		return err
	}

	// message ids are allocated in stream order, so they increase
	// monotonically with time.
	msgID := p.seq.Next("message")

	content, mentioned, wildcard := p.rewriter.Rewrite(m.Text)
	wildcard = wildcard || m.Wildcard
	mentionedSet := make(map[int]bool, len(mentioned)+len(m.Mentions))
	for _, id := range mentioned {
		mentionedSet[id] = true
	}
	for _, src := range m.Mentions {
		if id, ok := p.maps.Users[src]; ok {
			mentionedSet[id] = true
		}
	}

	ext := p.extractor.Extract(m, msgID, senderID)
	if ext.Suffix != "" {
		if content == "" {
			content = ext.Suffix
		} else {
			content += "\n" + ext.Suffix
		}
	}

	topic := ""
	if m.Dest.Kind == source.ToStream {
		topic = m.Topic
		if topic == "" {
			topic = p.topic
		}
	}

	msg, err := zerver.NewMessage(zerver.MessageParams{
		ID:            msgID,
		SenderID:      senderID,
		RecipientID:   recipientID,
		Topic:         topic,
		Content:       content,
		DateSent:      m.TS,
		HasAttachment: ext.HasAttachment,
		HasImage:      ext.HasImage,
		HasLink:       ext.HasLink || hasLink(content),
	})
	if err != nil {
		// HasBody guarantees content; this only fires on a logic error
		// upstream, and one bad message must not abort the rest.
		p.lg.Warn("dropping unbuildable message", "ts", m.TS, "err", err)
		stats.Skipped++
		return nil
	}
	chunk.Messages = append(chunk.Messages, msg)
	stats.Messages++
	stats.LastActive[senderID] = msgID

	p.reactions(m, msgID, chunk, stats)
	p.fanout(msg, senderID, private, mentionedSet, wildcard, chunk, stats)
	return nil
}

// recipientOf resolves the destination union to a recipient id.
func (p *Pipeline) recipientOf(d source.Dest) (recipient int, private bool, err error) {
	switch d.Kind {
	case source.ToStream:
		if sid, ok := p.maps.Streams[d.ID]; ok {
			if rid, ok := p.graph.StreamRecipient[sid]; ok {
				return rid, false, nil
			}
		}
	case source.ToPersonal:
		if uid, ok := p.maps.Users[d.ID]; ok {
			if rid, ok := p.graph.UserRecipient[uid]; ok {
				return rid, true, nil
			}
		}
	case source.ToGroup:
		if gid, ok := p.maps.Groups[d.ID]; ok {
			if rid, ok := p.graph.GroupRecipient[gid]; ok {
				return rid, true, nil
			}
		}
	}
	return 0, false, fmt.Errorf("unknown message destination %v %q", d.Kind, d.ID)
}

// reactions builds reaction records, silently dropping unresolvable emoji
// and reactions from unknown users.
func (p *Pipeline) reactions(m *source.Message, msgID int, chunk *Chunk, stats *Stats) {
	for _, r := range m.Reactions {
		resolved, ok := p.emoji.Resolve(r.Name)
		if !ok {
			continue
		}
		for _, src := range r.Users {
			uid, ok := p.maps.Users[src]
			if !ok {
				continue
			}
			chunk.Reactions = append(chunk.Reactions,
				zerver.NewReaction(p.seq.Next("reaction"), msgID, uid, resolved.Name, resolved.Code, resolved.Kind))
			stats.Reactions++
		}
	}
}

// fanout creates the delivery records for every subscriber of the recipient.
// Long-term idle subscribers are skipped unless mentioned: a mention must be
// visible regardless of idle status.  The sender always gets a copy.
func (p *Pipeline) fanout(msg zerver.Message, senderID int, private bool, mentioned map[int]bool, wildcard bool, chunk *Chunk, stats *Stats) {
	subscribers := p.graph.Subscribers[msg.Recipient]
	seen := make(map[int]bool, len(subscribers)+1)
	deliver := func(uid int) {
		if seen[uid] {
			return
		}
		seen[uid] = true
		isMentioned := mentioned[uid] || wildcard
		if p.idle[uid] && !isMentioned && uid != senderID {
			return
		}
		flags := zerver.FlagRead
		if private {
			flags |= zerver.FlagIsPrivate
		}
		if mentioned[uid] {
			flags |= zerver.FlagMentioned
		}
		if wildcard {
			flags |= zerver.FlagWildcardMentioned
		}
		chunk.UserMessages = append(chunk.UserMessages,
			zerver.NewUserMessage(p.seq.Next("usermessage"), uid, msg.ID, flags))
		stats.UserMessages++
	}
	deliver(senderID)
	for _, uid := range subscribers {
		deliver(uid)
	}
}

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

package graph

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/chatport/chatport/internal/ids"
	"github.com/chatport/chatport/internal/zerver"
)

// ErrAmbiguousGroup is returned when two non-empty direct message groups have
// the identical membership set.  Merging them would interleave two separate
// histories, and dropping either would lose messages, so the conversion must
// abort rather than guess.
var ErrAmbiguousGroup = errors.New("duplicate direct message group with messages on both sides: not implemented")

// Group is one direct message group to be wired into the graph.  MsgCount is
// the number of messages addressed to the group in the whole export; it
// decides the duplicate-membership merge policy.
type Group struct {
	ID       int
	MsgCount int
}

// Result is the complete recipient/subscription graph for one realm.
type Result struct {
	Recipients    []zerver.Recipient
	Subscriptions []zerver.Subscription
	Huddles       []zerver.Huddle

	// UserRecipient maps a user id to the id of their PERSONAL recipient.
	UserRecipient map[int]int
	// StreamRecipient maps a stream id to its STREAM recipient id.
	StreamRecipient map[int]int
	// GroupRecipient maps a group id to its HUDDLE recipient id.  A group
	// merged away as an empty duplicate maps to the survivor's recipient.
	GroupRecipient map[int]int
	// Subscribers maps a recipient id to the sorted user ids subscribed to
	// it.  The message pipeline fans delivery records out over these.
	Subscribers map[int][]int
}

// Build produces the full graph.  Construction order is fixed: personal
// recipients first, then streams, then groups.  Later stages build
// receiver-to-recipient maps that assume this ordering.
//
// A stream with no recorded subscribers is marked deactivated in place.
func Build(seq *ids.Sequencer, userIDs []int, streams []*zerver.Stream, groups []Group, subs *SubscriberHandler) (*Result, error) {
	res := &Result{
		UserRecipient:   make(map[int]int),
		StreamRecipient: make(map[int]int),
		GroupRecipient:  make(map[int]int),
		Subscribers:     make(map[int][]int),
	}

	// 1. one PERSONAL recipient and one self-subscription per user.
	for _, uid := range userIDs {
		r, err := zerver.NewRecipient(seq.Next("recipient"), zerver.RTPersonal, uid)
		if err != nil {
			return nil, err
		}
		res.Recipients = append(res.Recipients, r)
		res.UserRecipient[uid] = r.ID
		res.Subscriptions = append(res.Subscriptions, zerver.NewSubscription(seq.Next("subscription"), r.ID, uid))
		res.Subscribers[r.ID] = []int{uid}
	}

	// 2. one STREAM recipient per stream, subscriptions from the recorded
	//    member set.  Empty member set deactivates the stream.
	for _, st := range streams {
		r, err := zerver.NewRecipient(seq.Next("recipient"), zerver.RTStream, st.ID)
		if err != nil {
			return nil, err
		}
		res.Recipients = append(res.Recipients, r)
		res.StreamRecipient[st.ID] = r.ID

		members := subs.StreamUsers(st.ID)
		if len(members) == 0 {
			st.Deactivated = true
			continue
		}
		for _, uid := range members {
			res.Subscriptions = append(res.Subscriptions, zerver.NewSubscription(seq.Next("subscription"), r.ID, uid))
		}
		res.Subscribers[r.ID] = members
	}

	// 3. groups, deduplicated by membership set.  Whichever side of a
	//    duplicate pair is empty gets folded into the other; only two
	//    histories for the same member set are unresolvable.
	byMembers := make(map[string]Group) // membership hash -> surviving group
	for _, g := range groups {
		members := subs.GroupUsers(g.ID)
		if len(members) <= 2 {
			return nil, fmt.Errorf("group %d: has %d members, expected more than 2", g.ID, len(members))
		}
		key := memberHash(members)
		if prev, ok := byMembers[key]; ok {
			if prev.MsgCount > 0 && g.MsgCount > 0 {
				return nil, fmt.Errorf("group %d and %d: %w", prev.ID, g.ID, ErrAmbiguousGroup)
			}
			// at most one side has messages: keep the first group's
			// recipient and carry the combined count forward.
			res.GroupRecipient[g.ID] = res.GroupRecipient[prev.ID]
			prev.MsgCount += g.MsgCount
			byMembers[key] = prev
			continue
		}
		byMembers[key] = g

		res.Huddles = append(res.Huddles, zerver.Huddle{ID: g.ID})
		r, err := zerver.NewRecipient(seq.Next("recipient"), zerver.RTHuddle, g.ID)
		if err != nil {
			return nil, err
		}
		res.Recipients = append(res.Recipients, r)
		res.GroupRecipient[g.ID] = r.ID
		for _, uid := range members {
			res.Subscriptions = append(res.Subscriptions, zerver.NewSubscription(seq.Next("subscription"), r.ID, uid))
		}
		res.Subscribers[r.ID] = members
	}

	return res, nil
}

// memberHash is the canonical key of a membership set.
func memberHash(members []int) string {
	var sb strings.Builder
	for i, m := range members {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(m))
	}
	return sb.String()
}

// Package graph builds the recipient/subscription graph connecting users,
// streams and direct message groups.  It owns the two invariants the importer
// depends on: exactly one PERSONAL recipient per user, exactly one STREAM
// recipient per stream, and no duplicate (recipient, user) subscriptions.
package graph

import "sort"

// SubscriberHandler accumulates the member sets of streams and direct message
// groups independently of the order in which recipients and subscriptions are
// later constructed.  Each destination kind has its own typed setter, so a
// caller cannot register the same id under two kinds by accident.
type SubscriberHandler struct {
	streams map[int]map[int]struct{}
	groups  map[int]map[int]struct{}
}

func NewSubscriberHandler() *SubscriberHandler {
	return &SubscriberHandler{
		streams: make(map[int]map[int]struct{}),
		groups:  make(map[int]map[int]struct{}),
	}
}

// SetStreamInfo records the member set of one stream, replacing any previous
// set for the same id.
func (s *SubscriberHandler) SetStreamInfo(streamID int, users ...int) {
	s.streams[streamID] = toSet(users)
}

// SetGroupInfo records the member set of one direct message group.
func (s *SubscriberHandler) SetGroupInfo(groupID int, users ...int) {
	s.groups[groupID] = toSet(users)
}

// StreamUsers returns the sorted member list of the stream, or nil if no
// membership was ever recorded.  Callers treat nil as "no known subscribers"
// and deactivate the stream.
func (s *SubscriberHandler) StreamUsers(streamID int) []int {
	return toSorted(s.streams[streamID])
}

// GroupUsers returns the sorted member list of the group, or nil.
func (s *SubscriberHandler) GroupUsers(groupID int) []int {
	return toSorted(s.groups[groupID])
}

func toSet(users []int) map[int]struct{} {
	set := make(map[int]struct{}, len(users))
	for _, u := range users {
		set[u] = struct{}{}
	}
	return set
}

func toSorted(set map[int]struct{}) []int {
	if len(set) == 0 {
		return nil
	}
	out := make([]int, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	sort.Ints(out)
	return out
}

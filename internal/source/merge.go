package source

import (
	"container/heap"
	"iter"
)

// Merge combines several per-channel message iterators, each already sorted
// by timestamp, into one globally time-ordered iterator.  Platforms that
// store one file per channel (or per channel per day) need this to satisfy
// the Source.Messages ordering contract: downstream message ids must increase
// monotonically with time across all channels.
//
// Ties are broken by input order, so the merge is stable with respect to the
// order the iterators are passed in.
func Merge(seqs ...iter.Seq2[*Message, error]) iter.Seq2[*Message, error] {
	return func(yield func(*Message, error) bool) {
		h := make(mergeHeap, 0, len(seqs))
		pulls := make([]func() (*Message, error, bool), len(seqs))
		stops := make([]func(), len(seqs))
		defer func() {
			for _, stop := range stops {
				if stop != nil {
					stop()
				}
			}
		}()

		for i, seq := range seqs {
			next, stop := iter.Pull2(seq)
			pulls[i], stops[i] = next, stop
			m, err, ok := next()
			if !ok {
				continue
			}
			if err != nil {
				yield(nil, err)
				return
			}
			h = append(h, mergeItem{msg: m, src: i})
		}
		heap.Init(&h)

		for h.Len() > 0 {
			top := h[0]
			if !yield(top.msg, nil) {
				return
			}
			m, err, ok := pulls[top.src]()
			switch {
			case err != nil:
				yield(nil, err)
				return
			case ok:
				h[0] = mergeItem{msg: m, src: top.src}
				heap.Fix(&h, 0)
			default:
				heap.Pop(&h)
			}
		}
	}
}

type mergeItem struct {
	msg *Message
	src int
}

type mergeHeap []mergeItem

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	if h[i].msg.TS != h[j].msg.TS {
		return h[i].msg.TS < h[j].msg.TS
	}
	return h[i].src < h[j].src
}
func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x any) { *h = append(*h, x.(mergeItem)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// SliceSeq adapts a pre-sorted slice of messages into an iterator.  Used by
// sources whose channels are small enough to hold in memory one at a time,
// and by tests.
func SliceSeq(mm []*Message) iter.Seq2[*Message, error] {
	return func(yield func(*Message, error) bool) {
		for _, m := range mm {
			if !yield(m, nil) {
				return
			}
		}
	}
}

// Package idle classifies users as long-term idle so the pipeline can skip
// materialising delivery records for them.  A user escapes the idle set by
// either having sent a message within the recency window, or by having sent
// more than the count threshold overall.
package idle

import (
	"iter"
	"time"

	"github.com/chatport/chatport/internal/source"
)

// Defaults match the behaviour observed to keep first-login latency sane on
// real imports; both are configuration, not algorithmic constants.
const (
	DefaultWindow    = 60 * time.Second
	DefaultThreshold = 10
)

// Classifier performs the single streaming pass over all messages.  The
// recency flag is set incrementally as a user's first qualifying message is
// seen; the count-based override resolves only after the stream is exhausted,
// so the final decision is made once, in Scan's return.
type Classifier struct {
	window    time.Duration
	threshold int
	now       func() time.Time
}

type Option func(*Classifier)

// WithWindow sets the recency window.
func WithWindow(d time.Duration) Option {
	return func(c *Classifier) {
		if d > 0 {
			c.window = d
		}
	}
}

// WithThreshold sets the sent-message count above which a user is considered
// active regardless of recency.
func WithThreshold(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.threshold = n
		}
	}
}

// WithNow overrides the reference time, for tests.
func WithNow(fn func() time.Time) Option {
	return func(c *Classifier) {
		if fn != nil {
			c.now = fn
		}
	}
}

func New(opt ...Option) *Classifier {
	c := &Classifier{
		window:    DefaultWindow,
		threshold: DefaultThreshold,
		now:       time.Now,
	}
	for _, o := range opt {
		o(c)
	}
	return c
}

// Stats is the outcome of one classification pass.
type Stats struct {
	// Active holds the source user ids that are NOT long-term idle.
	Active map[string]bool
	// Senders holds every user id seen as a message sender, whether active
	// or not.  The converter uses it to synthesise mirror dummy profiles for
	// senders missing from the roster.
	Senders map[string]bool
	// GroupMsgCount counts messages per direct message group id, consumed by
	// the graph builder's duplicate-group policy.
	GroupMsgCount map[string]int
	// Total is the number of messages scanned.
	Total int
}

// Scan consumes the message stream once and returns the classification.
// Messages without a usable body are counted as sent (the sender clearly
// existed) but are otherwise ignored, mirroring the pipeline's skip.
func (c *Classifier) Scan(msgs iter.Seq2[*source.Message, error]) (*Stats, error) {
	st := &Stats{
		Active:        make(map[string]bool),
		Senders:       make(map[string]bool),
		GroupMsgCount: make(map[string]int),
	}
	counts := make(map[string]int)
	cutoff := c.now().Add(-c.window).Unix()

	for m, err := range msgs {
		if err != nil {
			return nil, err
		}
		st.Total++
		st.Senders[m.SenderID] = true
		counts[m.SenderID]++
		if m.TS >= cutoff {
			st.Active[m.SenderID] = true
		}
		if m.Dest.Kind == source.ToGroup {
			st.GroupMsgCount[m.Dest.ID]++
		}
	}

	// count override: prolific senders stay materialised even if their last
	// message is ancient.
	for uid, n := range counts {
		if n > c.threshold {
			st.Active[uid] = true
		}
	}
	return st, nil
}

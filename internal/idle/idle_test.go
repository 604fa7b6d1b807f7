package idle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatport/chatport/internal/source"
)

var refTime = time.Unix(1700000000, 0)

func classifier(opt ...Option) *Classifier {
	opt = append(opt, WithNow(func() time.Time { return refTime }))
	return New(opt...)
}

func fromUser(uid string, ts int64) *source.Message {
	return &source.Message{
		Dest:     source.Dest{Kind: source.ToStream, ID: "C1"},
		SenderID: uid,
		TS:       ts,
		Text:     "hi",
	}
}

func TestClassifier_Scan(t *testing.T) {
	old := refTime.Add(-24 * time.Hour).Unix()
	recent := refTime.Add(-10 * time.Second).Unix()

	t.Run("count override beats staleness", func(t *testing.T) {
		// user X sends 11 old messages, user Y one recent message.  X is
		// active via the count override, Y via recency, and a user who sent
		// nothing is not active.
		var mm []*source.Message
		for i := 0; i < 11; i++ {
			mm = append(mm, fromUser("X", old))
		}
		mm = append(mm, fromUser("Y", recent))

		st, err := classifier().Scan(source.SliceSeq(mm))
		require.NoError(t, err)
		assert.True(t, st.Active["X"])
		assert.True(t, st.Active["Y"])
		assert.False(t, st.Active["Z"], "silent co-subscriber must stay idle")
	})
	t.Run("at threshold stays idle", func(t *testing.T) {
		var mm []*source.Message
		for i := 0; i < 10; i++ {
			mm = append(mm, fromUser("X", old))
		}
		st, err := classifier().Scan(source.SliceSeq(mm))
		require.NoError(t, err)
		assert.False(t, st.Active["X"], "exactly threshold messages is not over it")
	})
	t.Run("senders and group counts collected", func(t *testing.T) {
		mm := []*source.Message{
			fromUser("A", old),
			{Dest: source.Dest{Kind: source.ToGroup, ID: "G1"}, SenderID: "B", TS: old, Text: "x"},
			{Dest: source.Dest{Kind: source.ToGroup, ID: "G1"}, SenderID: "A", TS: old, Text: "y"},
		}
		st, err := classifier().Scan(source.SliceSeq(mm))
		require.NoError(t, err)
		assert.Equal(t, map[string]bool{"A": true, "B": true}, st.Senders)
		assert.Equal(t, 2, st.GroupMsgCount["G1"])
		assert.Equal(t, 3, st.Total)
	})
	t.Run("custom window", func(t *testing.T) {
		weekAgo := refTime.Add(-7 * 24 * time.Hour).Unix()
		st, err := classifier(WithWindow(30 * 24 * time.Hour)).Scan(source.SliceSeq([]*source.Message{fromUser("W", weekAgo)}))
		require.NoError(t, err)
		assert.True(t, st.Active["W"])
	})
}

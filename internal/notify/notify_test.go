package notify

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_EmitOrder(t *testing.T) {
	n := NewNotifier()
	var order []string
	n.Subscribe(func(e Event) { order = append(order, "first:"+string(e.Kind)) })
	n.Subscribe(func(e Event) { order = append(order, "second:"+string(e.Kind)) })
	n.Subscribe(nil)

	at := time.Unix(1700000000, 0)
	n.Emit(FeedPriceChange("ratchet", uint256.NewInt(1), uint256.NewInt(2), at), EpochTriggered("ratchet", at))

	assert.Equal(t, 2, n.ListenerCount())
	assert.Equal(t, []string{
		"first:FeedPriceChange",
		"second:FeedPriceChange",
		"first:EpochTriggered",
		"second:EpochTriggered",
	}, order)
}

func TestNotifier_AssignsIDs(t *testing.T) {
	n := NewNotifier()
	rec := NewRecorder(n)

	n.Emit(EpochTriggered("twap", time.Unix(1, 0)), Event{ID: "fixed", Kind: KindPriceChange})

	events := rec.Events()
	require.Len(t, events, 2)
	assert.NotEmpty(t, events[0].ID)
	assert.Equal(t, "fixed", events[1].ID)
}

func TestNotifier_NilSafe(t *testing.T) {
	var n *Notifier
	assert.NotPanics(t, func() { n.Emit(EpochTriggered("x", time.Now())) })
}

func TestEventConstructors_CopyValues(t *testing.T) {
	old, next := uint256.NewInt(10), uint256.NewInt(20)
	e := PriceChange("fixed", old, next, time.Unix(1, 0))

	old.SetUint64(0)
	next.SetUint64(0)

	assert.Equal(t, uint64(10), e.Old.Uint64())
	assert.Equal(t, uint64(20), e.New.Uint64())

	last := LastGoodPriceUpdated("daily", uint256.NewInt(7), time.Unix(1, 0))
	assert.Nil(t, last.Old)
	assert.Equal(t, KindLastGoodPriceUpdated, last.Kind)
}

func TestEvent_Record(t *testing.T) {
	e := OracleBroken("twap", uint256.NewInt(120), uint256.NewInt(33403), time.Unix(5, 0))
	e.ID = "abc"

	r := e.Record()
	assert.Equal(t, "abc", r.ID)
	assert.Equal(t, KindOracleBroken, r.Kind)
	assert.Equal(t, "120", r.Old)
	assert.Equal(t, "33403", r.New)

	r = EpochTriggered("twap", time.Unix(5, 0)).Record()
	assert.Empty(t, r.Old)
	assert.Empty(t, r.New)
}

func TestRecorder(t *testing.T) {
	n := NewNotifier()
	rec := NewRecorder(n)
	at := time.Unix(1, 0)

	n.Emit(
		FeedPriceChange("r", uint256.NewInt(1), uint256.NewInt(2), at),
		PriceChange("r", uint256.NewInt(1), uint256.NewInt(2), at),
		FeedPriceChange("r", uint256.NewInt(2), uint256.NewInt(1), at),
	)

	assert.Equal(t, []Kind{KindFeedPriceChange, KindPriceChange, KindFeedPriceChange}, rec.Kinds())
	assert.Len(t, rec.OfKind(KindFeedPriceChange), 2)
	assert.Empty(t, rec.OfKind(KindEpochTriggered))

	rec.Reset()
	assert.Empty(t, rec.Events())
}

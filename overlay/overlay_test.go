package overlay_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vechain/bpmt/felt"
	"github.com/vechain/bpmt/overlay"
)

func TestRecordPriorOnce(t *testing.T) {
	o := overlay.New()
	calls := 0
	load := func() (felt.Felt, bool, error) {
		calls++
		return felt.FromUint64(7), true, nil
	}
	assert.NoError(t, o.RecordPriorOnce("k", load))
	assert.NoError(t, o.RecordPriorOnce("k", load))
	assert.Equal(t, 1, calls)
}

func TestSetValueAndTombstone(t *testing.T) {
	o := overlay.New()
	o.SetValue("a", felt.FromUint64(1))
	o.SetTombstone("b")

	pa, ok := o.GetPending("a")
	assert.True(t, ok)
	assert.False(t, pa.Tombstone)

	pb, ok := o.GetPending("b")
	assert.True(t, ok)
	assert.True(t, pb.Tombstone)
}

func TestJournalOrderAndAbort(t *testing.T) {
	o := overlay.New()
	load := func() (felt.Felt, bool, error) { return felt.Zero, false, nil }
	assert.NoError(t, o.RecordPriorOnce("a", load))
	assert.NoError(t, o.RecordPriorOnce("b", load))
	assert.NoError(t, o.RecordPriorOnce("c", load))

	var seen []string
	o.Journal(func(key string, _ overlay.PriorEntry, _ overlay.PendingEntry, _ bool) bool {
		seen = append(seen, key)
		return key != "b"
	})
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestUnreachableHashes(t *testing.T) {
	o := overlay.New()
	h := felt.FromUint64(99)
	o.MarkUnreachable(h)
	got := o.UnreachableHashes()
	assert.Len(t, got, 1)
	assert.True(t, got[0].Equal(h))
}

func TestResetClears(t *testing.T) {
	o := overlay.New()
	load := func() (felt.Felt, bool, error) { return felt.Zero, false, nil }
	_ = o.RecordPriorOnce("a", load)
	o.SetValue("a", felt.One)
	o.MarkUnreachable(felt.FromUint64(1))

	o.Reset()
	assert.True(t, o.Empty())
	assert.Len(t, o.UnreachableHashes(), 0)
}

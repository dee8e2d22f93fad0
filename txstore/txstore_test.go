package txstore

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/lunfardo314/ledgerchat/global"
	"github.com/lunfardo314/ledgerchat/ledger"
	"github.com/stretchr/testify/require"
)

func fixedClock(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestJournalInMemory(t *testing.T) {
	j := NewInMemory(global.NewDefault())
	j.now = fixedClock(time.Unix(1_700_000_000, 0))

	id1 := j.Submitted("createAccount", []any{"alice", "here", "QmA"}, "0x01")
	id2 := j.Submitted("sendFriendRequest", []any{"0xbb"}, "0x02")
	id3 := j.Submitted("buyNFT", []any{uint64(1), "100"}, "0x03")
	require.NotEmpty(t, id1)
	require.NotEqual(t, id1, id2)

	j.Completed(id1, &ledger.Receipt{TxHash: "0x01", Success: true, BlockNumber: 7}, nil)
	j.Completed(id2, nil, global.Errorf(global.KindTransactionReverted, "sendFriendRequest", "already sent"))

	recs := j.Records(0)
	require.Len(t, recs, 3)
	require.Equal(t, id3, recs[0].ID)
	require.Equal(t, id1, recs[2].ID)

	rec, ok := j.Get(id1)
	require.True(t, ok)
	require.Equal(t, StatusConfirmed, rec.Status)
	require.EqualValues(t, 7, rec.Block)
	require.Equal(t, "createAccount", rec.Op)
	require.Len(t, rec.Args, 3)

	rec, ok = j.Get(id2)
	require.True(t, ok)
	require.Equal(t, StatusFailed, rec.Status)
	require.Equal(t, "TransactionReverted", rec.ErrorKind)
	require.Contains(t, rec.Error, "already sent")

	pending := j.Pending()
	require.Len(t, pending, 1)
	require.Equal(t, "0x03", pending[0].TxHash)

	require.Len(t, j.Records(2), 2)

	_, ok = j.Get("zz")
	require.False(t, ok)
	// unknown ids are ignored
	j.Completed("00", nil, errors.New("x"))
	j.Completed("", nil, nil)
}

func TestJournalPersistent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "journal")

	j, closeFun, err := OpenBadger(global.NewDefault(), dir)
	require.NoError(t, err)
	id := j.Submitted("createPost", []any{"hello", ""}, "0xabc")
	j.Completed(id, &ledger.Receipt{TxHash: "0xabc", Success: true, BlockNumber: 3}, nil)
	closeFun()

	j, closeFun, err = OpenBadger(global.NewDefault(), dir)
	require.NoError(t, err)
	defer closeFun()

	recs := j.Records(0)
	require.Len(t, recs, 1)
	require.Equal(t, id, recs[0].ID)
	require.Equal(t, StatusConfirmed, recs[0].Status)
}

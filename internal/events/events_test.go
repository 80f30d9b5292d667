package events

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/jackchuma/tokenbank/internal/contracts"
	"github.com/jackchuma/tokenbank/internal/metrics"
	"github.com/jackchuma/tokenbank/internal/state"
	"github.com/jackchuma/tokenbank/internal/test/fakechain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	marketAddr = common.HexToAddress("0xcf7ed3acca5a467e9e704c703e8d87f634fb0fc9")
	nftAddr    = common.HexToAddress("0x9fe46736679d2d9a65f0992f2272de9f3c7fa6e0")
	seller     = common.HexToAddress("0x70997970c51812dc3a010c7d01b50e0d17dc79c8")
	buyer      = common.HexToAddress("0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc")
)

func eventLog(t *testing.T, name string, topics []common.Hash, data ...interface{}) types.Log {
	t.Helper()
	ev := contracts.NFTMarketABI.Events[name]
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	require.NoError(t, err)
	return types.Log{
		Address: marketAddr,
		Topics:  append([]common.Hash{ev.ID}, topics...),
		Data:    packed,
	}
}

func listedLog(t *testing.T, id int64) types.Log {
	return eventLog(t, "NFTListed",
		[]common.Hash{common.BigToHash(big.NewInt(id)), common.BytesToHash(seller.Bytes()), common.BytesToHash(nftAddr.Bytes())},
		big.NewInt(id*10), big.NewInt(500))
}

func soldLog(t *testing.T, id int64) types.Log {
	return eventLog(t, "NFTSold",
		[]common.Hash{common.BigToHash(big.NewInt(id)), common.BytesToHash(buyer.Bytes()), common.BytesToHash(seller.Bytes())},
		nftAddr, big.NewInt(id*10), big.NewInt(500))
}

func cancelledLog(t *testing.T, id int64) types.Log {
	return eventLog(t, "NFTListingCancelled", []common.Hash{common.BigToHash(big.NewInt(id))})
}

func TestDecode(t *testing.T) {
	d := NewDecoder()

	r, err := d.Decode(listedLog(t, 3))
	require.NoError(t, err)
	listed, ok := r.(*Listed)
	require.True(t, ok)
	assert.Equal(t, big.NewInt(3), listed.ListingID)
	assert.Equal(t, seller, listed.Seller)
	assert.Equal(t, nftAddr, listed.NFTContract)
	assert.Equal(t, big.NewInt(30), listed.TokenID)
	assert.Equal(t, big.NewInt(500), listed.Price)

	r, err = d.Decode(soldLog(t, 3))
	require.NoError(t, err)
	sold := r.(*Sold)
	assert.Equal(t, buyer, sold.Buyer)
	assert.Equal(t, seller, sold.Seller)
	assert.Equal(t, nftAddr, sold.NFTContract)
	assert.Equal(t, KindSold, sold.Kind())

	r, err = d.Decode(cancelledLog(t, 4))
	require.NoError(t, err)
	assert.Equal(t, KindCancelled, r.Kind())
	assert.Equal(t, big.NewInt(4), r.Base().ListingID)

	_, err = d.Decode(types.Log{Topics: []common.Hash{common.HexToHash("0x01")}})
	assert.ErrorIs(t, err, ErrUnknownEvent)
	_, err = d.Decode(types.Log{})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestFeedNewestFirstAndCapacity(t *testing.T) {
	f := NewFeed(2)
	for i := int64(1); i <= 3; i++ {
		f.Add(&Listed{Meta: Meta{ListingID: big.NewInt(i)}})
	}
	f.Add(&Cancelled{Meta: Meta{ListingID: big.NewInt(1)}})

	snap := f.Snapshot()
	require.Len(t, snap.Listed, 2)
	assert.Equal(t, big.NewInt(3), snap.Listed[0].ListingID)
	assert.Equal(t, big.NewInt(2), snap.Listed[1].ListingID)
	assert.Len(t, snap.Cancelled, 1)
	assert.Empty(t, snap.Sold)
	assert.Equal(t, 3, snap.Len())

	// snapshots are copies
	snap.Listed[0] = nil
	assert.NotNil(t, f.Snapshot().Listed[0])

	f.Clear()
	assert.Zero(t, f.Snapshot().Len())
}

func TestFeedUnbounded(t *testing.T) {
	f := NewFeed(0)
	for i := int64(1); i <= 50; i++ {
		f.Add(&Sold{Meta: Meta{ListingID: big.NewInt(i)}})
	}
	assert.Len(t, f.Snapshot().Sold, 50)
}

func newWatcher(t *testing.T) (*fakechain.Chain, *Watcher, *metrics.Metrics) {
	t.Helper()
	chain := fakechain.New(31337)
	m := metrics.New()
	w := NewWatcher(chain, state.NewCachingReader(chain), marketAddr, 1, 10*time.Millisecond, NewFeed(10), m)
	return chain, w, m
}

func TestWatcherPoll(t *testing.T) {
	ctx := context.Background()
	chain, w, _ := newWatcher(t)

	chain.AddLog(listedLog(t, 1))
	chain.Advance(12 * time.Second)
	sold := chain.AddLog(soldLog(t, 1))
	other := listedLog(t, 9)
	other.Address = common.HexToAddress("0x01")
	chain.AddLog(other)

	n, err := w.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	snap := w.Feed().Snapshot()
	require.Len(t, snap.Listed, 1)
	require.Len(t, snap.Sold, 1)
	assert.Equal(t, sold.TxHash, snap.Sold[0].TxHash)
	assert.Equal(t, sold.BlockNumber, snap.Sold[0].BlockNumber)
	assert.Equal(t, 12*time.Second, snap.Sold[0].Timestamp.Sub(snap.Listed[0].Timestamp))

	// already consumed
	n, err = w.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	chain.AddLog(cancelledLog(t, 1))
	n, err = w.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, w.Feed().Snapshot().Cancelled, 1)
}

func TestWatcherRetriesAfterFailure(t *testing.T) {
	ctx := context.Background()
	chain, w, _ := newWatcher(t)
	chain.AddLog(listedLog(t, 1))

	chain.FilterErr = errors.New("connection reset")
	_, err := w.Poll(ctx)
	require.Error(t, err)
	assert.Zero(t, w.Feed().Snapshot().Len())

	n, err := w.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWatcherRun(t *testing.T) {
	chain, w, m := newWatcher(t)
	chain.FilterErr = errors.New("connection reset")
	chain.AddLog(listedLog(t, 1))
	chain.AddLog(soldLog(t, 1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		return w.Feed().Snapshot().Len() == 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var observed float64
	for _, mf := range families {
		if mf.GetName() == "tokenbank_market_events_observed_total" {
			for _, metric := range mf.GetMetric() {
				observed += metric.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 2.0, observed)
}

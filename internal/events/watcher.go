package events

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/jackchuma/tokenbank/internal/metrics"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Backend is the node surface the watcher polls.
type Backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// BlockTimes resolves block timestamps. *state.CachingReader implements it.
type BlockTimes interface {
	BlockTime(ctx context.Context, number uint64) (uint64, error)
}

// Watcher polls the market for events and appends them to a feed. Failed
// polls are logged and retried on the next tick.
type Watcher struct {
	backend  Backend
	times    BlockTimes
	decoder  *Decoder
	feed     *Feed
	market   common.Address
	interval time.Duration
	next     uint64
	metrics  *metrics.Metrics
	log      *logrus.Entry
}

// NewWatcher starts at block from. A zero from starts at the current head.
func NewWatcher(backend Backend, times BlockTimes, market common.Address, from uint64, interval time.Duration, feed *Feed, m *metrics.Metrics) *Watcher {
	return &Watcher{
		backend:  backend,
		times:    times,
		decoder:  NewDecoder(),
		feed:     feed,
		market:   market,
		interval: interval,
		next:     from,
		metrics:  m,
		log:      logrus.WithFields(logrus.Fields{"component": "events", "market": market.Hex()}),
	}
}

func (w *Watcher) Feed() *Feed {
	return w.feed
}

// Run polls until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	w.log.WithField("interval", w.interval).Info("Watching market events")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.Poll(ctx); err != nil && ctx.Err() == nil {
			w.log.WithError(err).Warn("Failed to poll market events")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll fetches logs up to the current head and returns how many records were
// added. On error nothing is consumed.
func (w *Watcher) Poll(ctx context.Context) (int, error) {
	head, err := w.backend.BlockNumber(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get block number")
	}
	if w.next == 0 {
		w.next = head
	}
	if head < w.next {
		return 0, nil
	}

	logs, err := w.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(w.next),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{w.market},
		Topics:    w.decoder.Topics(),
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to filter logs")
	}

	records := make([]Record, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		r, err := w.decoder.Decode(l)
		if err != nil {
			w.log.WithError(err).WithField("tx", l.TxHash.Hex()).Warn("Skipping undecodable log")
			continue
		}
		ts, err := w.times.BlockTime(ctx, l.BlockNumber)
		if err != nil {
			return 0, err
		}
		r.Base().Timestamp = time.Unix(int64(ts), 0).UTC()
		records = append(records, r)
	}

	for _, r := range records {
		w.feed.Add(r)
		w.metrics.EventObserved(string(r.Kind()))
		w.log.WithFields(logrus.Fields{
			"kind":    r.Kind(),
			"listing": r.Base().ListingID,
			"block":   r.Base().BlockNumber,
		}).Debug("Market event")
	}
	w.next = head + 1
	return len(records), nil
}

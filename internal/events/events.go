// Package events decodes market logs into display records and keeps an
// in-memory feed of them.
package events

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/jackchuma/tokenbank/internal/contracts"
	"github.com/pkg/errors"
)

// Kind is the event type, also used as the metrics label.
type Kind string

const (
	KindListed    Kind = "listed"
	KindSold      Kind = "sold"
	KindCancelled Kind = "cancelled"
)

var eventNames = map[Kind]string{
	KindListed:    "NFTListed",
	KindSold:      "NFTSold",
	KindCancelled: "NFTListingCancelled",
}

// ErrUnknownEvent is returned for logs that are not market events.
var ErrUnknownEvent = errors.New("unknown event")

// Meta locates a record on chain.
type Meta struct {
	ListingID   *big.Int    `json:"listingId"`
	BlockNumber uint64      `json:"blockNumber"`
	TxHash      common.Hash `json:"txHash"`
	LogIndex    uint        `json:"logIndex"`
	Timestamp   time.Time   `json:"timestamp"`
}

// Record is one of Listed, Sold or Cancelled.
type Record interface {
	Kind() Kind
	Base() *Meta
}

type Listed struct {
	Meta
	Seller      common.Address `json:"seller"`
	NFTContract common.Address `json:"nftContract"`
	TokenID     *big.Int       `json:"tokenId"`
	Price       *big.Int       `json:"price"`
}

type Sold struct {
	Meta
	Buyer       common.Address `json:"buyer"`
	Seller      common.Address `json:"seller"`
	NFTContract common.Address `json:"nftContract"`
	TokenID     *big.Int       `json:"tokenId"`
	Price       *big.Int       `json:"price"`
}

type Cancelled struct {
	Meta
}

func (*Listed) Kind() Kind    { return KindListed }
func (*Sold) Kind() Kind      { return KindSold }
func (*Cancelled) Kind() Kind { return KindCancelled }

func (l *Listed) Base() *Meta    { return &l.Meta }
func (s *Sold) Base() *Meta      { return &s.Meta }
func (c *Cancelled) Base() *Meta { return &c.Meta }

// Decoder turns market logs into records.
type Decoder struct {
	abi   abi.ABI
	kinds map[common.Hash]Kind
}

func NewDecoder() *Decoder {
	d := &Decoder{abi: contracts.NFTMarketABI, kinds: make(map[common.Hash]Kind)}
	for kind, name := range eventNames {
		d.kinds[d.abi.Events[name].ID] = kind
	}
	return d
}

// Topics is the topic0 filter matching every market event.
func (d *Decoder) Topics() [][]common.Hash {
	ids := make([]common.Hash, 0, len(d.kinds))
	for _, kind := range []Kind{KindListed, KindSold, KindCancelled} {
		ids = append(ids, d.abi.Events[eventNames[kind]].ID)
	}
	return [][]common.Hash{ids}
}

func (d *Decoder) unpack(name string, l types.Log) (map[string]interface{}, error) {
	ev := d.abi.Events[name]
	fields := make(map[string]interface{})
	if len(l.Data) > 0 {
		if err := d.abi.UnpackIntoMap(fields, name, l.Data); err != nil {
			return nil, errors.Wrapf(err, "failed to unpack %s data", name)
		}
	}

	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if err := abi.ParseTopicsIntoMap(fields, indexed, l.Topics[1:]); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s topics", name)
	}
	return fields, nil
}

// Decode decodes l. The timestamp is left zero.
func (d *Decoder) Decode(l types.Log) (Record, error) {
	if len(l.Topics) == 0 {
		return nil, ErrUnknownEvent
	}
	kind, ok := d.kinds[l.Topics[0]]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownEvent, "topic %s", l.Topics[0].Hex())
	}

	fields, err := d.unpack(eventNames[kind], l)
	if err != nil {
		return nil, err
	}
	meta := Meta{
		ListingID:   fields["listingId"].(*big.Int),
		BlockNumber: l.BlockNumber,
		TxHash:      l.TxHash,
		LogIndex:    l.Index,
	}

	switch kind {
	case KindListed:
		return &Listed{
			Meta:        meta,
			Seller:      fields["seller"].(common.Address),
			NFTContract: fields["nftContract"].(common.Address),
			TokenID:     fields["tokenId"].(*big.Int),
			Price:       fields["price"].(*big.Int),
		}, nil
	case KindSold:
		return &Sold{
			Meta:        meta,
			Buyer:       fields["buyer"].(common.Address),
			Seller:      fields["seller"].(common.Address),
			NFTContract: fields["nftContract"].(common.Address),
			TokenID:     fields["tokenId"].(*big.Int),
			Price:       fields["price"].(*big.Int),
		}, nil
	default:
		return &Cancelled{Meta: meta}, nil
	}
}

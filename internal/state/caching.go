package state

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jackchuma/tokenbank/internal/contracts"
	"github.com/pkg/errors"
)

// Backend is what the reader needs from a node.
type Backend interface {
	contracts.Caller
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

type cacheEntry struct {
	address common.Address
	value   interface{}
}

// CachingReader serves contract reads, caching the results of methods whose
// values never change after deployment (decimals, name, domain...) and block
// timestamps. Everything else, nonces and balances included, goes to the node.
type CachingReader struct {
	backend   Backend
	cache     *sync.Map
	immutable map[[4]byte]bool
}

// DefaultImmutable are the selectors cached by NewCachingReader.
func DefaultImmutable() [][4]byte {
	var selectors [][4]byte
	for _, m := range []string{"name", "symbol", "decimals", "eip712Domain", "DOMAIN_SEPARATOR"} {
		var sel [4]byte
		copy(sel[:], contracts.PermitTokenABI.Methods[m].ID)
		selectors = append(selectors, sel)
	}
	return selectors
}

// NewCachingReader wraps backend.
func NewCachingReader(backend Backend, selectors ...[4]byte) *CachingReader {
	if len(selectors) == 0 {
		selectors = DefaultImmutable()
	}
	r := &CachingReader{
		backend:   backend,
		cache:     &sync.Map{},
		immutable: make(map[[4]byte]bool, len(selectors)),
	}
	for _, s := range selectors {
		r.immutable[s] = true
	}
	return r
}

func (r *CachingReader) cacheable(msg ethereum.CallMsg, blockNumber *big.Int) bool {
	if msg.To == nil || len(msg.Data) < 4 || blockNumber != nil {
		return false
	}
	var sel [4]byte
	copy(sel[:], msg.Data[:4])
	return r.immutable[sel]
}

// CallContract implements contracts.Caller.
func (r *CachingReader) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if !r.cacheable(msg, blockNumber) {
		return r.backend.CallContract(ctx, msg, blockNumber)
	}

	cacheKey := getCallCacheKey(*msg.To, msg.Data)

	if out, ok := r.cache.Load(cacheKey); ok {
		return common.CopyBytes(out.(cacheEntry).value.([]byte)), nil
	}

	out, err := r.backend.CallContract(ctx, msg, blockNumber)
	if err != nil {
		return nil, err
	}
	// an empty result means no code at the address, which may yet change
	if len(out) > 0 {
		r.cache.Store(cacheKey, cacheEntry{address: *msg.To, value: common.CopyBytes(out)})
	}
	return out, nil
}

// HeaderByNumber passes through to the backend.
func (r *CachingReader) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return r.backend.HeaderByNumber(ctx, number)
}

// BlockTime returns the timestamp of block number.
func (r *CachingReader) BlockTime(ctx context.Context, number uint64) (uint64, error) {
	cacheKey := getHeaderCacheKey(number)

	if t, ok := r.cache.Load(cacheKey); ok {
		return t.(cacheEntry).value.(uint64), nil
	}

	header, err := r.backend.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, errors.Wrapf(err, "failed to fetch header %d", number)
	}
	r.cache.Store(cacheKey, cacheEntry{value: header.Time})
	return header.Time, nil
}

// Invalidate drops every cached read of address.
func (r *CachingReader) Invalidate(address common.Address) {
	r.cache.Range(func(key, value interface{}) bool {
		if value.(cacheEntry).address == address {
			r.cache.Delete(key)
		}
		return true
	})
}

func getCallCacheKey(addr common.Address, data []byte) common.Hash {
	return crypto.Keccak256Hash(addr.Bytes(), data)
}

func getHeaderCacheKey(number uint64) common.Hash {
	return crypto.Keccak256Hash(new(big.Int).SetUint64(number).Bytes(), []byte("header"))
}

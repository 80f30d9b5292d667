// Package fakechain is an in-memory chain backend for tests. Contracts are
// registered as ABI method handlers; transactions are mined one per block as
// soon as they are sent.
package fakechain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Call is one method invocation. Handlers must only mutate state when Commit
// is set; calls and gas estimation run them with Commit unset.
type Call struct {
	Chain   *Chain
	From    common.Address
	To      common.Address
	Method  string
	Args    []interface{}
	Commit  bool
	logs    []*types.Log
	parsed  abi.ABI
	Context context.Context
}

// Emit records an event when the call commits.
func (c *Call) Emit(event string, topics []common.Hash, data ...interface{}) error {
	ev, ok := c.parsed.Events[event]
	if !ok {
		return fmt.Errorf("unknown event %s", event)
	}
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		return err
	}
	c.logs = append(c.logs, &types.Log{
		Address: c.To,
		Topics:  append([]common.Hash{ev.ID}, topics...),
		Data:    packed,
	})
	return nil
}

// Handler implements a contract method.
type Handler func(c *Call) ([]interface{}, error)

type contract struct {
	abi      abi.ABI
	handlers map[string]Handler
}

// RevertError is returned for reverted calls. It carries Error(string) data
// the way a node does.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string { return "execution reverted: " + e.Reason }

func (e *RevertError) ErrorData() interface{} {
	stringType, _ := abi.NewType("string", "", nil)
	packed, _ := abi.Arguments{{Type: stringType}}.Pack(e.Reason)
	selector := crypto.Keccak256([]byte("Error(string)"))[:4]
	return hexutil.Encode(append(selector, packed...))
}

// Revert builds a handler error.
func Revert(format string, args ...interface{}) error {
	return &RevertError{Reason: fmt.Sprintf(format, args...)}
}

// Chain is the fake backend.
type Chain struct {
	mu sync.Mutex

	chainID   *big.Int
	head      uint64
	time      uint64
	baseFee   *big.Int
	contracts map[common.Address]*contract
	nonces    map[common.Address]uint64
	receipts  map[common.Hash]*types.Receipt
	headers   map[uint64]*types.Header
	logs      []types.Log

	// Injected failures, consumed by the next matching call.
	CallErr   error
	FilterErr error
	SendErr   error

	Sent []*types.Transaction
}

// New returns a chain at block 1 whose clock starts at now.
func New(chainID int64) *Chain {
	c := &Chain{
		chainID:   big.NewInt(chainID),
		time:      uint64(time.Now().Unix()),
		baseFee:   big.NewInt(1_000_000_000),
		contracts: make(map[common.Address]*contract),
		nonces:    make(map[common.Address]uint64),
		receipts:  make(map[common.Hash]*types.Receipt),
		headers:   make(map[uint64]*types.Header),
	}
	c.mine()
	return c
}

func (c *Chain) mine() *types.Header {
	c.head++
	h := &types.Header{
		Number: new(big.Int).SetUint64(c.head),
		Time:   c.time,
	}
	if c.baseFee != nil {
		h.BaseFee = new(big.Int).Set(c.baseFee)
	}
	c.headers[c.head] = h
	return h
}

// SetBaseFee changes the base fee of the head and of later blocks. nil gives
// pre-London headers.
func (c *Chain) SetBaseFee(fee *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseFee = fee
	c.headers[c.head].BaseFee = fee
}

// Register installs handlers for a contract at address.
func (c *Chain) Register(address common.Address, parsed abi.ABI, handlers map[string]Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contracts[address] = &contract{abi: parsed, handlers: handlers}
}

// Handle adds or replaces one handler.
func (c *Chain) Handle(address common.Address, method string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contracts[address].handlers[method] = h
}

// Now is the timestamp of the next block.
func (c *Chain) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.time
}

// Advance moves the chain clock forward.
func (c *Chain) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.time += uint64(d.Seconds())
}

// Mine seals an empty block.
func (c *Chain) Mine() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mine().Number.Uint64()
}

// AddLog mines a block containing log.
func (c *Chain) AddLog(l types.Log) types.Log {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.mine()
	l.BlockNumber = h.Number.Uint64()
	l.BlockHash = h.Hash()
	if l.TxHash == (common.Hash{}) {
		l.TxHash = crypto.Keccak256Hash(h.Number.Bytes(), []byte{byte(len(c.logs))})
	}
	l.Index = uint(len(c.logs))
	c.logs = append(c.logs, l)
	return l
}

func (c *Chain) invoke(ctx context.Context, from common.Address, to *common.Address, data []byte, commit bool) ([]byte, *Call, error) {
	if to == nil {
		return nil, nil, fmt.Errorf("contract creation is not supported")
	}
	ct, ok := c.contracts[*to]
	if !ok {
		return nil, nil, nil
	}
	if len(data) < 4 {
		return nil, nil, Revert("missing selector")
	}
	method, err := ct.abi.MethodById(data[:4])
	if err != nil {
		return nil, nil, Revert("unknown selector 0x%x", data[:4])
	}
	h, ok := ct.handlers[method.Name]
	if !ok {
		return nil, nil, Revert("%s not implemented", method.Name)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, err
	}

	call := &Call{
		Chain:   c,
		From:    from,
		To:      *to,
		Method:  method.Name,
		Args:    args,
		Commit:  commit,
		parsed:  ct.abi,
		Context: ctx,
	}
	out, err := h(call)
	if err != nil {
		return nil, call, err
	}
	packed, err := method.Outputs.Pack(out...)
	if err != nil {
		return nil, call, err
	}
	return packed, call, nil
}

// Invoke runs a method from a handler of another contract, with the same
// commit mode, as a nested call.
func (c *Call) Invoke(to common.Address, data []byte) error {
	_, nested, err := c.Chain.invoke(c.Context, c.To, &to, data, c.Commit)
	if nested != nil {
		c.logs = append(c.logs, nested.logs...)
	}
	return err
}

func (c *Chain) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.chainID), nil
}

func (c *Chain) BlockNumber(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head, nil
}

func (c *Chain) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.CallErr; err != nil {
		c.CallErr = nil
		return nil, err
	}
	out, _, err := c.invoke(ctx, msg.From, msg.To, msg.Data, false)
	return out, err
}

func (c *Chain) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, _, err := c.invoke(ctx, msg.From, msg.To, msg.Data, false); err != nil {
		return 0, err
	}
	return 100_000, nil
}

func (c *Chain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonces[account], nil
}

func (c *Chain) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000), nil
}

func (c *Chain) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.head
	if number != nil {
		n = number.Uint64()
	}
	h, ok := c.headers[n]
	if !ok {
		return nil, ethereum.NotFound
	}
	return types.CopyHeader(h), nil
}

// SendTransaction mines tx in its own block. A reverting handler produces a
// failed receipt, not an error.
func (c *Chain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.SendErr; err != nil {
		c.SendErr = nil
		return err
	}

	from, err := types.Sender(types.LatestSignerForChainID(c.chainID), tx)
	if err != nil {
		return err
	}
	if tx.Nonce() != c.nonces[from] {
		return fmt.Errorf("nonce too low: have %d, want %d", tx.Nonce(), c.nonces[from])
	}
	c.nonces[from]++
	c.Sent = append(c.Sent, tx)

	_, call, callErr := c.invoke(ctx, from, tx.To(), tx.Data(), true)

	h := c.mine()
	receipt := &types.Receipt{
		Type:              tx.Type(),
		Status:            types.ReceiptStatusSuccessful,
		TxHash:            tx.Hash(),
		BlockNumber:       h.Number,
		BlockHash:         h.Hash(),
		GasUsed:           21_000,
		CumulativeGasUsed: 21_000,
		EffectiveGasPrice: tx.GasTipCap(),
	}
	if h.BaseFee != nil {
		receipt.EffectiveGasPrice = new(big.Int).Add(h.BaseFee, tx.GasTipCap())
	}
	if callErr != nil {
		receipt.Status = types.ReceiptStatusFailed
	} else if call != nil {
		for _, l := range call.logs {
			l.BlockNumber = h.Number.Uint64()
			l.BlockHash = h.Hash()
			l.TxHash = tx.Hash()
			l.Index = uint(len(c.logs))
			c.logs = append(c.logs, *l)
			receipt.Logs = append(receipt.Logs, l)
		}
	}
	c.receipts[tx.Hash()] = receipt
	return nil
}

func (c *Chain) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (c *Chain) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.FilterErr; err != nil {
		c.FilterErr = nil
		return nil, err
	}

	var out []types.Log
	for _, l := range c.logs {
		if q.FromBlock != nil && l.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if q.ToBlock != nil && l.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		if len(q.Addresses) > 0 && !containsAddress(q.Addresses, l.Address) {
			continue
		}
		if len(q.Topics) > 0 && len(q.Topics[0]) > 0 && !containsHash(q.Topics[0], l.Topics[0]) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func containsAddress(list []common.Address, a common.Address) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}

func containsHash(list []common.Hash, h common.Hash) bool {
	for _, x := range list {
		if x == h {
			return true
		}
	}
	return false
}

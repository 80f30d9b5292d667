package command

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackchuma/tokenbank/internal/config"
	"github.com/jackchuma/tokenbank/internal/contracts"
	"github.com/jackchuma/tokenbank/internal/market"
	"github.com/jackchuma/tokenbank/internal/metrics"
	"github.com/jackchuma/tokenbank/internal/observability"
	"github.com/jackchuma/tokenbank/internal/permit"
	"github.com/jackchuma/tokenbank/internal/state"
	"github.com/jackchuma/tokenbank/internal/template"
	"github.com/jackchuma/tokenbank/internal/transaction"
	"github.com/jackchuma/tokenbank/internal/wallet"
	"github.com/pkg/errors"
)

// env is everything a command needs once the node (and maybe the wallet) is
// connected. It is built per invocation and closed when the command returns.
type env struct {
	cfg      *config.Configuration
	session  *wallet.Session
	reader   *state.CachingReader
	registry *config.Registry
	addrs    config.Addresses
	names    template.Names
	metrics  *metrics.Metrics
}

func loadConfig() (*config.Configuration, error) {
	cfg, err := config.LoadGlobal(configFile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}
	if err := observability.ConfigureLogging(&cfg.Logging); err != nil {
		return nil, errors.Wrap(err, "failed to configure logging")
	}
	return cfg, nil
}

func connect(ctx context.Context, withSigner bool) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return connectWith(ctx, cfg, withSigner)
}

func connectWith(ctx context.Context, cfg *config.Configuration, withSigner bool) (*env, error) {
	registry, err := config.LoadRegistry()
	if err != nil {
		return nil, err
	}

	session, err := wallet.Connect(ctx, cfg, withSigner)
	if err != nil {
		return nil, err
	}

	id := session.ChainID.Int64()
	addrs := registry.Addresses(id, cfg.Contracts)
	name := registry.ChainName(id)
	if name == "" {
		name = session.Chain.Name
	}

	return &env{
		cfg:      cfg,
		session:  session,
		reader:   state.NewCachingReader(session.Client),
		registry: registry,
		addrs:    addrs,
		names:    template.Names{Chain: name, Addresses: addrs},
		metrics:  metrics.New(),
	}, nil
}

func (e *env) close() {
	e.session.Close()
}

func (e *env) account() common.Address {
	return e.session.Wallet.Address()
}

func (e *env) sender() *transaction.Sender {
	return transaction.NewSender(e.session.Client, e.session.Wallet, e.session.ChainID, e.cfg.ReceiptTimeout)
}

// token returns the plain token, or the permit token when permitToken is set.
func (e *env) token(permitToken bool) (*contracts.Token, error) {
	if permitToken {
		if err := config.Require(map[string]common.Address{"permit token": e.addrs.PermitToken}); err != nil {
			return nil, err
		}
		return contracts.NewToken(e.addrs.PermitToken, e.reader), nil
	}
	if err := config.Require(map[string]common.Address{"token": e.addrs.Token}); err != nil {
		return nil, err
	}
	return contracts.NewToken(e.addrs.Token, e.reader), nil
}

func (e *env) bank(permitBank bool) (*contracts.Bank, error) {
	addr, name := e.addrs.Bank, "bank"
	if permitBank {
		addr, name = e.addrs.PermitBank, "permit bank"
	}
	if err := config.Require(map[string]common.Address{name: addr}); err != nil {
		return nil, err
	}
	return contracts.NewBank(addr, e.reader), nil
}

// permitFlow builds the signature flow for the permit token. The registry's
// domain is offered as a fallback; the flow only uses it when not strict.
func (e *env) permitFlow() (*permit.Flow, *contracts.Token, error) {
	token, err := e.token(true)
	if err != nil {
		return nil, nil, err
	}

	cfg := permit.Config{
		Token:        token,
		TokenAddress: token.Address,
		Signer:       e.session.Wallet,
		Strict:       e.cfg.DomainStrict,
		Metrics:      e.metrics,
	}
	if d, ok := e.registry.FallbackDomain(e.session.ChainID.Int64(), token.Address); ok {
		cfg.Fallback = &d
	}
	return permit.NewFlow(cfg), token, nil
}

func (e *env) submitter() (*permit.Submitter, error) {
	token, err := e.token(true)
	if err != nil {
		return nil, err
	}
	bank, err := e.bank(true)
	if err != nil {
		return nil, err
	}
	return &permit.Submitter{Token: token, Bank: bank, Sender: e.sender(), Metrics: e.metrics}, nil
}

func (e *env) marketClient() (*market.Client, error) {
	if err := config.Require(map[string]common.Address{"nft": e.addrs.NFT, "market": e.addrs.Market}); err != nil {
		return nil, err
	}
	return market.NewClient(
		contracts.NewMarket(e.addrs.Market, e.reader),
		contracts.NewNFT(e.addrs.NFT, e.reader),
		e.sender(),
		e.metrics,
	), nil
}

// operator signs whitelist permits with the connected wallet.
func (e *env) operator() (*market.PermitBuyFlow, error) {
	if err := config.Require(map[string]common.Address{"market": e.addrs.Market}); err != nil {
		return nil, err
	}
	d, ok := e.registry.FallbackDomain(e.session.ChainID.Int64(), e.addrs.Market)
	if !ok {
		d = config.Domain{Name: "NFTMarket", Version: "1"}
	}
	return &market.PermitBuyFlow{
		Signer:  e.session.Wallet,
		Market:  e.addrs.Market,
		Domain:  d,
		Metrics: e.metrics,
	}, nil
}

// owner resolves an optional address argument, defaulting to the wallet.
func (e *env) owner(args []string, i int) (common.Address, error) {
	if len(args) > i {
		return permit.ParseAddress("address", args[i])
	}
	if e.session.Wallet == nil {
		return common.Address{}, errors.New("no address given and no wallet configured")
	}
	return e.account(), nil
}

func (e *env) txURL(hash common.Hash) string {
	return e.session.Chain.TxURL(hash.Hex())
}

func (e *env) chainID() *big.Int {
	return e.session.ChainID
}

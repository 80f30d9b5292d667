package config

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackchuma/tokenbank/config"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Domain is the EIP-712 name/version pair a verifying contract is expected to
// report.
type Domain struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// Contracts lists the deployment of one chain.
type Contracts struct {
	Token       string `yaml:"token"`
	Bank        string `yaml:"bank"`
	PermitToken string `yaml:"permit_token"`
	PermitBank  string `yaml:"permit_bank"`
	NFT         string `yaml:"nft"`
	Market      string `yaml:"market"`
}

// Chain is a registry entry.
type Chain struct {
	Name      string            `yaml:"name"`
	Contracts Contracts         `yaml:"contracts"`
	Domains   map[string]Domain `yaml:"domains"`
}

// Registry maps chain ids to deployments.
type Registry struct {
	Chains map[string]Chain `yaml:"chains"`
}

// Addresses are the resolved contract addresses for the connected chain.
type Addresses struct {
	Token       common.Address
	Bank        common.Address
	PermitToken common.Address
	PermitBank  common.Address
	NFT         common.Address
	Market      common.Address
}

// LoadRegistry parses the embedded registry.
func LoadRegistry() (*Registry, error) {
	return ParseRegistry(config.EmbeddedConfigFile)
}

// ParseRegistry parses a registry document.
func ParseRegistry(data []byte) (*Registry, error) {
	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, errors.Wrap(err, "error parsing contract registry")
	}

	for id, chain := range reg.Chains {
		for _, addr := range []string{
			chain.Contracts.Token, chain.Contracts.Bank,
			chain.Contracts.PermitToken, chain.Contracts.PermitBank,
			chain.Contracts.NFT, chain.Contracts.Market,
		} {
			if addr != "" && !common.IsHexAddress(addr) {
				return nil, errors.Errorf("chain %s: invalid address %q", id, addr)
			}
		}

		// keys are compared lower-case
		domains := make(map[string]Domain, len(chain.Domains))
		for addr, d := range chain.Domains {
			domains[strings.ToLower(addr)] = d
		}
		chain.Domains = domains
		reg.Chains[id] = chain
	}

	return &reg, nil
}

func (r *Registry) chain(chainID int64) (Chain, bool) {
	chain, ok := r.Chains[strconv.FormatInt(chainID, 10)]
	return chain, ok
}

// ChainName returns the registry name of a chain, or "" when unknown.
func (r *Registry) ChainName(chainID int64) string {
	chain, _ := r.chain(chainID)
	return chain.Name
}

// Addresses resolves the deployment for chainID, applying env overrides.
// Contracts that are neither in the registry nor overridden stay zero.
func (r *Registry) Addresses(chainID int64, overrides ContractsConfig) Addresses {
	chain, _ := r.chain(chainID)

	pick := func(override, registered string) common.Address {
		if override != "" {
			return common.HexToAddress(override)
		}
		if registered != "" {
			return common.HexToAddress(registered)
		}
		return common.Address{}
	}

	return Addresses{
		Token:       pick(overrides.Token, chain.Contracts.Token),
		Bank:        pick(overrides.Bank, chain.Contracts.Bank),
		PermitToken: pick(overrides.PermitToken, chain.Contracts.PermitToken),
		PermitBank:  pick(overrides.PermitBank, chain.Contracts.PermitBank),
		NFT:         pick(overrides.NFT, chain.Contracts.NFT),
		Market:      pick(overrides.Market, chain.Contracts.Market),
	}
}

// FallbackDomain returns the registered domain for a verifying contract.
func (r *Registry) FallbackDomain(chainID int64, verifyingContract common.Address) (Domain, bool) {
	chain, ok := r.chain(chainID)
	if !ok {
		return Domain{}, false
	}
	d, ok := chain.Domains[strings.ToLower(verifyingContract.Hex())]
	return d, ok
}

// Require returns an error naming the first zero address among the given
// contracts.
func Require(named map[string]common.Address) error {
	for name, addr := range named {
		if addr == (common.Address{}) {
			return errors.Errorf("no %s contract configured for this chain", name)
		}
	}
	return nil
}

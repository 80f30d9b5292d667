package fakechain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackchuma/tokenbank/internal/contracts"
	"github.com/jackchuma/tokenbank/internal/eip712"
)

// NFT simulates a mintable ERC721.
type NFT struct {
	Address  common.Address
	owners   map[string]common.Address
	uris     map[string]string
	approved map[string]common.Address
	next     int64
}

func NewNFT(chain *Chain, address common.Address) *NFT {
	n := &NFT{
		Address:  address,
		owners:   make(map[string]common.Address),
		uris:     make(map[string]string),
		approved: make(map[string]common.Address),
		next:     1,
	}

	chain.Register(address, contracts.ERC721ABI, map[string]Handler{
		"mint": func(c *Call) ([]interface{}, error) {
			id := big.NewInt(n.next)
			if c.Commit {
				n.owners[id.String()] = c.Args[0].(common.Address)
				n.uris[id.String()] = c.Args[1].(string)
				n.next++
			}
			return []interface{}{id}, nil
		},
		"ownerOf": func(c *Call) ([]interface{}, error) {
			owner, ok := n.owners[c.Args[0].(*big.Int).String()]
			if !ok {
				return nil, Revert("ERC721: invalid token ID")
			}
			return []interface{}{owner}, nil
		},
		"tokenURI": func(c *Call) ([]interface{}, error) {
			return []interface{}{n.uris[c.Args[0].(*big.Int).String()]}, nil
		},
		"balanceOf": func(c *Call) ([]interface{}, error) {
			count := int64(0)
			for _, o := range n.owners {
				if o == c.Args[0].(common.Address) {
					count++
				}
			}
			return []interface{}{big.NewInt(count)}, nil
		},
		"getApproved": func(c *Call) ([]interface{}, error) {
			return []interface{}{n.approved[c.Args[0].(*big.Int).String()]}, nil
		},
		"approve": func(c *Call) ([]interface{}, error) {
			id := c.Args[1].(*big.Int).String()
			if n.owners[id] != c.From {
				return nil, Revert("ERC721: approve caller is not token owner")
			}
			if c.Commit {
				n.approved[id] = c.Args[0].(common.Address)
			}
			return nil, nil
		},
	})
	return n
}

// Owner returns the owner of tokenID.
func (n *NFT) Owner(tokenID int64) common.Address {
	return n.owners[big.NewInt(tokenID).String()]
}

// Market simulates the NFT market. Whitelist buys must carry a PermitBuy
// signature from Signer.
type Market struct {
	Address  common.Address
	Signer   common.Address
	listings []contracts.Listing
	chain    *Chain
}

func NewMarket(chain *Chain, address common.Address, nft *NFT, token *PermitToken, signer common.Address) *Market {
	m := &Market{Address: address, Signer: signer, chain: chain}

	listing := func(id *big.Int) (*contracts.Listing, error) {
		if id.Sign() <= 0 || id.Cmp(big.NewInt(int64(len(m.listings)))) > 0 {
			return nil, Revert("NFTMarket: listing does not exist")
		}
		return &m.listings[id.Int64()-1], nil
	}

	buy := func(c *Call, id *big.Int) error {
		l, err := listing(id)
		if err != nil {
			return err
		}
		if !l.IsActive {
			return Revert("NFTMarket: listing is not active")
		}
		if err := token.TransferFrom(c, address, c.From, l.Seller, l.Price); err != nil {
			return err
		}
		if c.Commit {
			nft.owners[l.TokenId.String()] = c.From
			l.IsActive = false
			return c.Emit("NFTSold",
				[]common.Hash{common.BigToHash(id), common.BytesToHash(c.From.Bytes()), common.BytesToHash(l.Seller.Bytes())},
				l.NftContract, l.TokenId, l.Price)
		}
		return nil
	}

	active := func(seller *common.Address) []contracts.Listing {
		out := []contracts.Listing{}
		for _, l := range m.listings {
			if l.IsActive && (seller == nil || l.Seller == *seller) {
				out = append(out, l)
			}
		}
		return out
	}

	chain.Register(address, contracts.NFTMarketABI, map[string]Handler{
		"list": func(c *Call) ([]interface{}, error) {
			nftAddr, tokenID := c.Args[0].(common.Address), c.Args[1].(*big.Int)
			if nft.owners[tokenID.String()] != c.From {
				return nil, Revert("NFTMarket: not the owner")
			}
			if nft.approved[tokenID.String()] != address {
				return nil, Revert("NFTMarket: market not approved")
			}
			if c.Commit {
				id := big.NewInt(int64(len(m.listings) + 1))
				l := contracts.Listing{
					ListingId:    id,
					Seller:       c.From,
					NftContract:  nftAddr,
					TokenId:      new(big.Int).Set(tokenID),
					Price:        new(big.Int).Set(c.Args[2].(*big.Int)),
					PaymentToken: c.Args[3].(common.Address),
					IsActive:     true,
				}
				m.listings = append(m.listings, l)
				return nil, c.Emit("NFTListed",
					[]common.Hash{common.BigToHash(id), common.BytesToHash(c.From.Bytes()), common.BytesToHash(nftAddr.Bytes())},
					l.TokenId, l.Price)
			}
			return nil, nil
		},
		"buy": func(c *Call) ([]interface{}, error) {
			return nil, buy(c, c.Args[0].(*big.Int))
		},
		"cancelListing": func(c *Call) ([]interface{}, error) {
			id := c.Args[0].(*big.Int)
			l, err := listing(id)
			if err != nil {
				return nil, err
			}
			if l.Seller != c.From {
				return nil, Revert("NFTMarket: not the seller")
			}
			if c.Commit {
				l.IsActive = false
				return nil, c.Emit("NFTListingCancelled", []common.Hash{common.BigToHash(id)})
			}
			return nil, nil
		},
		"permitBuy": func(c *Call) ([]interface{}, error) {
			id, deadline := c.Args[0].(*big.Int), c.Args[1].(*big.Int)
			if deadline.Cmp(new(big.Int).SetUint64(chain.time)) < 0 {
				return nil, Revert("NFTMarket: signature expired")
			}
			h, err := eip712.Hash(eip712.PermitBuy(m.Domain(), eip712.PermitBuyMessage{
				Buyer: c.From, ListingID: id, Deadline: deadline,
			}))
			if err != nil {
				return nil, err
			}
			sig := eip712.Signature{V: c.Args[2].(uint8), R: c.Args[3].([32]byte), S: c.Args[4].([32]byte)}
			if recovered, err := eip712.Recover(h.Digest, sig); err != nil || recovered != m.Signer {
				return nil, Revert("NFTMarket: invalid whitelist signature")
			}
			return nil, buy(c, id)
		},
		"listings": func(c *Call) ([]interface{}, error) {
			l, err := listing(c.Args[0].(*big.Int))
			if err != nil {
				return nil, err
			}
			return []interface{}{l.ListingId, l.Seller, l.NftContract, l.TokenId, l.Price, l.PaymentToken, l.IsActive}, nil
		},
		"getActiveListings": func(c *Call) ([]interface{}, error) {
			return []interface{}{active(nil)}, nil
		},
		"getSellerActiveListings": func(c *Call) ([]interface{}, error) {
			seller := c.Args[0].(common.Address)
			return []interface{}{active(&seller)}, nil
		},
		"getActiveListingsCount": func(c *Call) ([]interface{}, error) {
			return []interface{}{big.NewInt(int64(len(active(nil))))}, nil
		},
	})
	return m
}

// Domain is the market's whitelist signing domain.
func (m *Market) Domain() eip712.Domain {
	return eip712.Domain{
		Name:              "NFTMarket",
		Version:           "1",
		ChainID:           new(big.Int).Set(m.chain.chainID),
		VerifyingContract: m.Address,
	}
}

// Approve lets the market spend buyer's tokens.
func (m *Market) Approve(token *PermitToken, buyer common.Address, amount *big.Int) {
	m.chain.mu.Lock()
	defer m.chain.mu.Unlock()
	token.allowances[allowanceKey{buyer, m.Address}] = new(big.Int).Set(amount)
}

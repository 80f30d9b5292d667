package contracts

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// The ABIs below cover only the members this client calls or decodes.

const permitTokenABI = `[
{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"nonces","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"DOMAIN_SEPARATOR","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bytes32"}]},
{"type":"function","name":"eip712Domain","stateMutability":"view","inputs":[],"outputs":[
  {"name":"fields","type":"bytes1"},{"name":"name","type":"string"},{"name":"version","type":"string"},
  {"name":"chainId","type":"uint256"},{"name":"verifyingContract","type":"address"},
  {"name":"salt","type":"bytes32"},{"name":"extensions","type":"uint256[]"}]},
{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"permit","stateMutability":"nonpayable","inputs":[
  {"name":"owner","type":"address"},{"name":"spender","type":"address"},{"name":"value","type":"uint256"},
  {"name":"deadline","type":"uint256"},{"name":"v","type":"uint8"},{"name":"r","type":"bytes32"},{"name":"s","type":"bytes32"}],"outputs":[]}
]`

const tokenBankABI = `[
{"type":"function","name":"balances","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"getUserBalance","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"getBankTokenBalance","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"deposit","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
{"type":"function","name":"permitDeposit","stateMutability":"nonpayable","inputs":[
  {"name":"owner","type":"address"},{"name":"value","type":"uint256"},{"name":"deadline","type":"uint256"},
  {"name":"v","type":"uint8"},{"name":"r","type":"bytes32"},{"name":"s","type":"bytes32"}],"outputs":[]}
]`

const nftMarketABI = `[
{"type":"function","name":"list","stateMutability":"nonpayable","inputs":[
  {"name":"nftContract","type":"address"},{"name":"tokenId","type":"uint256"},{"name":"price","type":"uint256"},{"name":"paymentToken","type":"address"}],"outputs":[]},
{"type":"function","name":"buy","stateMutability":"nonpayable","inputs":[{"name":"listingId","type":"uint256"}],"outputs":[]},
{"type":"function","name":"cancelListing","stateMutability":"nonpayable","inputs":[{"name":"listingId","type":"uint256"}],"outputs":[]},
{"type":"function","name":"permitBuy","stateMutability":"nonpayable","inputs":[
  {"name":"listingId","type":"uint256"},{"name":"deadline","type":"uint256"},
  {"name":"v","type":"uint8"},{"name":"r","type":"bytes32"},{"name":"s","type":"bytes32"}],"outputs":[]},
{"type":"function","name":"listings","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[
  {"name":"listingId","type":"uint256"},{"name":"seller","type":"address"},{"name":"nftContract","type":"address"},
  {"name":"tokenId","type":"uint256"},{"name":"price","type":"uint256"},{"name":"paymentToken","type":"address"},{"name":"isActive","type":"bool"}]},
{"type":"function","name":"getActiveListings","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"tuple[]","components":[
  {"name":"listingId","type":"uint256"},{"name":"seller","type":"address"},{"name":"nftContract","type":"address"},
  {"name":"tokenId","type":"uint256"},{"name":"price","type":"uint256"},{"name":"paymentToken","type":"address"},{"name":"isActive","type":"bool"}]}]},
{"type":"function","name":"getSellerActiveListings","stateMutability":"view","inputs":[{"name":"seller","type":"address"}],"outputs":[{"name":"","type":"tuple[]","components":[
  {"name":"listingId","type":"uint256"},{"name":"seller","type":"address"},{"name":"nftContract","type":"address"},
  {"name":"tokenId","type":"uint256"},{"name":"price","type":"uint256"},{"name":"paymentToken","type":"address"},{"name":"isActive","type":"bool"}]}]},
{"type":"function","name":"getActiveListingsCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"event","name":"NFTListed","anonymous":false,"inputs":[
  {"name":"listingId","type":"uint256","indexed":true},{"name":"seller","type":"address","indexed":true},
  {"name":"nftContract","type":"address","indexed":true},{"name":"tokenId","type":"uint256","indexed":false},
  {"name":"price","type":"uint256","indexed":false}]},
{"type":"event","name":"NFTSold","anonymous":false,"inputs":[
  {"name":"listingId","type":"uint256","indexed":true},{"name":"buyer","type":"address","indexed":true},
  {"name":"seller","type":"address","indexed":true},{"name":"nftContract","type":"address","indexed":false},
  {"name":"tokenId","type":"uint256","indexed":false},{"name":"price","type":"uint256","indexed":false}]},
{"type":"event","name":"NFTListingCancelled","anonymous":false,"inputs":[
  {"name":"listingId","type":"uint256","indexed":true}]}
]`

const erc721ABI = `[
{"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"tokenURI","type":"string"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"ownerOf","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"tokenURI","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"getApproved","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]}
]`

var (
	PermitTokenABI = mustParse(permitTokenABI)
	TokenBankABI   = mustParse(tokenBankABI)
	NFTMarketABI   = mustParse(nftMarketABI)
	ERC721ABI      = mustParse(erc721ABI)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

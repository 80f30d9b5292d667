package command

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackchuma/tokenbank/internal/config"
	"github.com/jackchuma/tokenbank/internal/contracts"
	"github.com/jackchuma/tokenbank/internal/eip712"
	"github.com/jackchuma/tokenbank/internal/market"
	"github.com/jackchuma/tokenbank/internal/permit"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func parseID(field, s string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || id.Sign() < 0 {
		return nil, &permit.Error{
			Kind:    permit.KindValidation,
			Code:    "invalid_" + field,
			Message: fmt.Sprintf("%s must be a non-negative integer: %q", field, s),
			Err:     permit.ErrInvalidValue,
		}
	}
	return id, nil
}

type listingReport struct {
	ListingID    string `json:"listingId"`
	Seller       string `json:"seller"`
	NFT          string `json:"nft"`
	TokenID      string `json:"tokenId"`
	Price        string `json:"price"`
	PaymentToken string `json:"paymentToken"`
	Active       bool   `json:"active"`
}

func newListingReport(l contracts.Listing, decimals uint8) listingReport {
	return listingReport{
		ListingID:    l.ListingId.String(),
		Seller:       l.Seller.Hex(),
		NFT:          l.NftContract.Hex(),
		TokenID:      l.TokenId.String(),
		Price:        formatBig(l.Price, decimals),
		PaymentToken: l.PaymentToken.Hex(),
		Active:       l.IsActive,
	}
}

func (l listingReport) markdown() string {
	return fmt.Sprintf("- **#%s** token `%s` of `%s` by `%s` for %s (`%s`), active: %t",
		l.ListingID, l.TokenID, l.NFT, l.Seller, l.Price, l.PaymentToken, l.Active)
}

// ensureAllowance approves the market to pull price from the wallet when the
// current allowance is short.
func ensureAllowance(ctx context.Context, e *env, client *market.Client, l contracts.Listing) error {
	token := contracts.NewToken(l.PaymentToken, e.reader)
	allowance, err := token.Allowance(ctx, e.account(), client.Market.Address)
	if err != nil {
		return err
	}
	if allowance.Cmp(l.Price) >= 0 {
		return nil
	}
	logrus.WithFields(logrus.Fields{"token": l.PaymentToken.Hex(), "price": l.Price}).Info("Approving the market to spend the price")
	data, err := token.PackApprove(client.Market.Address, l.Price)
	if err != nil {
		return err
	}
	_, err = sendAndWait(ctx, e, "approve", token.Address, data)
	return errors.Wrap(err, "approve failed")
}

func nftCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nft",
		Short: "Mint, list and buy NFTs on the market",
	}
	cmd.AddCommand(
		nftMintCmd(),
		nftListCmd(),
		nftBuyCmd(),
		nftCancelCmd(),
		nftInfoCmd(),
		nftPermitSignCmd(),
		nftPermitBuyCmd(),
	)
	return cmd
}

func nftMintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mint <to> <uri>",
		Short: "Mint a token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			to, err := permit.ParseAddress("to", args[0])
			if err != nil {
				return err
			}
			e, err := connect(ctx, true)
			if err != nil {
				return err
			}
			defer e.close()

			client, err := e.marketClient()
			if err != nil {
				return err
			}
			id, sub, err := client.Mint(ctx, to, args[1])
			if err != nil {
				return err
			}
			r := newTxReport(e, sub)
			md := append([]byte(fmt.Sprintf("- **Token ID**: `%s`\n", id)), r.markdown()...)
			return report(cmd, md, map[string]interface{}{"tokenId": id.String(), "tx": r})
		},
	}
}

func nftListCmd() *cobra.Command {
	var paymentToken string
	cmd := &cobra.Command{
		Use:   "list <tokenId> <price>",
		Short: "List a token for sale, approving the market first when needed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tokenID, err := parseID("token_id", args[0])
			if err != nil {
				return err
			}
			e, err := connect(ctx, true)
			if err != nil {
				return err
			}
			defer e.close()

			client, err := e.marketClient()
			if err != nil {
				return err
			}
			payment := e.addrs.PermitToken
			if paymentToken != "" {
				if payment, err = permit.ParseAddress("payment_token", paymentToken); err != nil {
					return err
				}
			}
			decimals, err := contracts.NewToken(payment, e.reader).Decimals(ctx)
			if err != nil {
				return err
			}
			price, err := parseAmount(args[1], decimals)
			if err != nil {
				return err
			}

			sub, err := client.List(ctx, tokenID, price, payment)
			if err != nil {
				return err
			}
			r := newTxReport(e, sub)
			return report(cmd, r.markdown(), r)
		},
	}
	cmd.Flags().StringVar(&paymentToken, "payment-token", "", "ERC-20 the price is paid in, the permit token by default")
	return cmd
}

func nftBuyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "buy <listingId>",
		Short: "Buy an active listing, approving the price first when needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			listingID, err := parseID("listing_id", args[0])
			if err != nil {
				return err
			}
			e, err := connect(ctx, true)
			if err != nil {
				return err
			}
			defer e.close()

			client, err := e.marketClient()
			if err != nil {
				return err
			}
			l, err := client.ActiveListing(ctx, listingID)
			if err != nil {
				return err
			}
			if err := ensureAllowance(ctx, e, client, l); err != nil {
				return err
			}
			sub, err := client.Buy(ctx, listingID)
			if err != nil {
				return err
			}
			r := newTxReport(e, sub)
			return report(cmd, r.markdown(), r)
		},
	}
}

func nftCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <listingId>",
		Short: "Cancel one of your listings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			listingID, err := parseID("listing_id", args[0])
			if err != nil {
				return err
			}
			e, err := connect(ctx, true)
			if err != nil {
				return err
			}
			defer e.close()

			client, err := e.marketClient()
			if err != nil {
				return err
			}
			sub, err := client.CancelListing(ctx, listingID)
			if err != nil {
				return err
			}
			r := newTxReport(e, sub)
			return report(cmd, r.markdown(), r)
		},
	}
}

func nftInfoCmd() *cobra.Command {
	var seller string
	cmd := &cobra.Command{
		Use:   "info [listingId]",
		Short: "Show a listing, or every active listing",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := connect(ctx, false)
			if err != nil {
				return err
			}
			defer e.close()

			if err := config.Require(map[string]common.Address{"market": e.addrs.Market}); err != nil {
				return err
			}
			m := contracts.NewMarket(e.addrs.Market, e.reader)

			var listings []contracts.Listing
			switch {
			case len(args) == 1:
				id, err := parseID("listing_id", args[0])
				if err != nil {
					return err
				}
				l, err := m.Listing(ctx, id)
				if err != nil {
					return err
				}
				listings = append(listings, l)
			case seller != "":
				addr, err := permit.ParseAddress("seller", seller)
				if err != nil {
					return err
				}
				if listings, err = m.SellerActiveListings(ctx, addr); err != nil {
					return err
				}
			default:
				if listings, err = m.ActiveListings(ctx); err != nil {
					return err
				}
			}

			decimals := map[common.Address]uint8{}
			reports := make([]listingReport, 0, len(listings))
			lines := make([]string, 0, len(listings))
			for _, l := range listings {
				d, ok := decimals[l.PaymentToken]
				if !ok {
					if d, err = contracts.NewToken(l.PaymentToken, e.reader).Decimals(ctx); err != nil {
						return err
					}
					decimals[l.PaymentToken] = d
				}
				r := newListingReport(l, d)
				reports = append(reports, r)
				lines = append(lines, r.markdown())
			}
			if len(lines) == 0 {
				lines = append(lines, "No active listings.")
			}
			return report(cmd, []byte(strings.Join(lines, "\n")), reports)
		},
	}
	cmd.Flags().StringVar(&seller, "seller", "", "only show the active listings of this seller")
	return cmd
}

func nftPermitSignCmd() *cobra.Command {
	var deadline string
	cmd := &cobra.Command{
		Use:   "permit-sign <buyer> <listingId>",
		Short: "Sign a whitelist permit as the market operator",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := connect(ctx, true)
			if err != nil {
				return err
			}
			defer e.close()

			operator, err := e.operator()
			if err != nil {
				return err
			}
			if deadline == "" {
				deadline = defaultDeadline(e.cfg.DefaultDeadline)
			}
			w, err := operator.GenerateSignature(ctx, args[0], args[1], deadline)
			if err != nil {
				return err
			}
			md := fmt.Sprintf("- **Buyer**: `%s`\n- **Listing**: `%s`\n- **Deadline**: `%s`\n- **Signer**: `%s`\n- **Digest**: `%s`\n- **Signature**: `%s`",
				w.Buyer.Hex(), w.ListingID, w.Deadline, w.Signer.Hex(), w.Digest.Hex(), w.Signature.Hex())
			return report(cmd, []byte(md), w)
		},
	}
	cmd.Flags().StringVar(&deadline, "deadline", "", "Unix seconds or RFC 3339, now plus TOKENBANK_DEFAULT_DEADLINE by default")
	return cmd
}

func nftPermitBuyCmd() *cobra.Command {
	var deadline, signature string
	cmd := &cobra.Command{
		Use:   "permit-buy <listingId>",
		Short: "Buy a listing with a whitelist permit",
		Long: "With --signature the operator's signature is submitted as is. Without it the connected " +
			"wallet signs the whitelist for itself, which only succeeds when it is the market's operator.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			listingID, err := parseID("listing_id", args[0])
			if err != nil {
				return err
			}
			e, err := connect(ctx, true)
			if err != nil {
				return err
			}
			defer e.close()

			client, err := e.marketClient()
			if err != nil {
				return err
			}
			l, err := client.ActiveListing(ctx, listingID)
			if err != nil {
				return err
			}
			if err := ensureAllowance(ctx, e, client, l); err != nil {
				return err
			}

			var sub *permit.Submission
			if signature == "" {
				operator, err := e.operator()
				if err != nil {
					return err
				}
				if deadline == "" {
					deadline = defaultDeadline(e.cfg.DefaultDeadline)
				}
				sub, err = market.NewBuyWorkflow(operator, client).Run(ctx, market.BuyRequest{
					ListingID: listingID.String(),
					Deadline:  deadline,
				})
				if err != nil {
					return err
				}
			} else {
				if deadline == "" {
					return errors.New("--deadline is required with --signature")
				}
				dl, err := parseID("deadline", deadline)
				if err != nil {
					return err
				}
				sig, err := eip712.SplitSignatureHex(signature)
				if err != nil {
					return err
				}
				if sub, err = client.PermitBuy(ctx, listingID, dl, sig); err != nil {
					return err
				}
			}
			r := newTxReport(e, sub)
			return report(cmd, r.markdown(), r)
		},
	}
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline the whitelist was signed with")
	cmd.Flags().StringVar(&signature, "signature", "", "operator signature, 0x prefixed 65 bytes")
	return cmd
}

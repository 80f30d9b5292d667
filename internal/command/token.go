package command

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackchuma/tokenbank/internal/contracts"
	"github.com/jackchuma/tokenbank/internal/metrics"
	"github.com/jackchuma/tokenbank/internal/permit"
	"github.com/jackchuma/tokenbank/internal/units"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type balanceReport struct {
	Token     string `json:"token"`
	Symbol    string `json:"symbol"`
	Owner     string `json:"owner"`
	Balance   string `json:"balance"`
	Formatted string `json:"formatted"`
	Decimals  uint8  `json:"decimals"`
}

type txReport struct {
	Method string `json:"method"`
	TxHash string `json:"txHash"`
	Block  string `json:"block,omitempty"`
	URL    string `json:"url"`
}

func (r txReport) markdown() []byte {
	return []byte(fmt.Sprintf("- **Method**: `%s`\n- **Transaction**: `%s`\n- **Block**: `%s`\n- **Link**: %s",
		r.Method, r.TxHash, r.Block, r.URL))
}

func newTxReport(e *env, sub *permit.Submission) txReport {
	r := txReport{Method: sub.Method, TxHash: sub.TxHash.Hex(), URL: e.txURL(sub.TxHash)}
	if sub.Receipt != nil && sub.Receipt.BlockNumber != nil {
		r.Block = sub.Receipt.BlockNumber.String()
	}
	return r
}

// parseAmount scales a human amount by decimals and requires it to be
// positive.
func parseAmount(amount string, decimals uint8) (*big.Int, error) {
	v, err := units.ParseUnits(amount, decimals)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid amount %q", amount)
	}
	if err := units.PositiveAmount(v); err != nil {
		return nil, err
	}
	return v.ToBig(), nil
}

// sendAndWait sends one transaction from the wallet and waits for it.
func sendAndWait(ctx context.Context, e *env, method string, to common.Address, data []byte) (*permit.Submission, error) {
	sender := e.sender()
	hash, err := sender.Send(ctx, to, data)
	if err != nil {
		e.metrics.Submitted(method, metrics.OutcomeFailed)
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"method": method, "tx": hash.Hex()}).Info("Transaction sent")

	start := time.Now()
	receipt, err := sender.Wait(ctx, hash)
	e.metrics.ReceiptWait(time.Since(start))
	sub := &permit.Submission{Method: method, TxHash: hash, Receipt: receipt}
	if err != nil {
		e.metrics.Submitted(method, metrics.OutcomeFailed)
		return sub, err
	}
	e.metrics.Submitted(method, metrics.OutcomeConfirmed)
	return sub, nil
}

func readBalance(ctx context.Context, token *contracts.Token, owner common.Address) (balanceReport, error) {
	balance, err := token.BalanceOf(ctx, owner)
	if err != nil {
		return balanceReport{}, err
	}
	decimals, err := token.Decimals(ctx)
	if err != nil {
		return balanceReport{}, err
	}
	symbol, err := token.Symbol(ctx)
	if err != nil {
		return balanceReport{}, err
	}
	return balanceReport{
		Token:     token.Address.Hex(),
		Symbol:    symbol,
		Owner:     owner.Hex(),
		Balance:   balance.String(),
		Formatted: formatBig(balance, decimals),
		Decimals:  decimals,
	}, nil
}

func formatBig(v *big.Int, decimals uint8) string {
	u, overflow := uint256.FromBig(v)
	if overflow {
		return v.String()
	}
	return units.FormatUnits(u, decimals)
}

func balanceCmd() *cobra.Command {
	var usePermit bool
	cmd := &cobra.Command{
		Use:   "balance [address]",
		Short: "Show the token balance of an address, the wallet by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := connect(ctx, len(args) == 0)
			if err != nil {
				return err
			}
			defer e.close()

			owner, err := e.owner(args, 0)
			if err != nil {
				return err
			}
			token, err := e.token(usePermit)
			if err != nil {
				return err
			}
			r, err := readBalance(ctx, token, owner)
			if err != nil {
				return err
			}
			return report(cmd, []byte(fmt.Sprintf("%s %s (`%s`)", r.Formatted, r.Symbol, r.Owner)), r)
		},
	}
	cmd.Flags().BoolVar(&usePermit, "permit", false, "use the permit token")
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Token reads",
	}

	var usePermit bool
	info := &cobra.Command{
		Use:   "info",
		Short: "Show name, symbol, decimals, supply and, for the permit token, the EIP-712 domain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := connect(ctx, false)
			if err != nil {
				return err
			}
			defer e.close()

			token, err := e.token(usePermit)
			if err != nil {
				return err
			}
			info, err := readTokenInfo(ctx, token, usePermit)
			if err != nil {
				return err
			}
			return report(cmd, info.markdown(), info)
		},
	}
	info.Flags().BoolVar(&usePermit, "permit", false, "use the permit token")

	cmd.AddCommand(info)
	return cmd
}

type tokenInfo struct {
	Address         string `json:"address"`
	Name            string `json:"name"`
	Symbol          string `json:"symbol"`
	Decimals        uint8  `json:"decimals"`
	TotalSupply     string `json:"totalSupply"`
	DomainName      string `json:"domainName,omitempty"`
	DomainVersion   string `json:"domainVersion,omitempty"`
	DomainChainID   string `json:"domainChainId,omitempty"`
	DomainSeparator string `json:"domainSeparator,omitempty"`
}

func (t tokenInfo) markdown() []byte {
	lines := []string{
		fmt.Sprintf("- **Address**: `%s`", t.Address),
		fmt.Sprintf("- **Name**: %s", t.Name),
		fmt.Sprintf("- **Symbol**: %s", t.Symbol),
		fmt.Sprintf("- **Decimals**: %d", t.Decimals),
		fmt.Sprintf("- **Total Supply**: `%s`", t.TotalSupply),
	}
	if t.DomainSeparator != "" {
		lines = append(lines,
			fmt.Sprintf("- **Domain**: `%s` version `%s` on chain `%s`", t.DomainName, t.DomainVersion, t.DomainChainID),
			fmt.Sprintf("- **Domain Separator**: `%s`", t.DomainSeparator),
		)
	}
	return []byte(strings.Join(lines, "\n"))
}

func readTokenInfo(ctx context.Context, token *contracts.Token, withDomain bool) (tokenInfo, error) {
	info := tokenInfo{Address: token.Address.Hex()}
	var err error
	if info.Name, err = token.Name(ctx); err != nil {
		return info, err
	}
	if info.Symbol, err = token.Symbol(ctx); err != nil {
		return info, err
	}
	if info.Decimals, err = token.Decimals(ctx); err != nil {
		return info, err
	}
	supply, err := token.TotalSupply(ctx)
	if err != nil {
		return info, err
	}
	info.TotalSupply = formatBig(supply, info.Decimals)

	if !withDomain {
		return info, nil
	}
	domain, err := token.Domain(ctx)
	if err != nil {
		return info, errors.Wrap(err, "failed to read eip712Domain")
	}
	sep, err := token.DomainSeparator(ctx)
	if err != nil {
		return info, errors.Wrap(err, "failed to read DOMAIN_SEPARATOR")
	}
	info.DomainName = domain.Name
	info.DomainVersion = domain.Version
	info.DomainChainID = domain.ChainID.String()
	info.DomainSeparator = sep.Hex()
	return info, nil
}

// tokenWrite is approve and transfer: address argument, amount argument,
// one packed call on the token.
func tokenWrite(use, short, method, field string, pack func(*contracts.Token, common.Address, *big.Int) ([]byte, error)) *cobra.Command {
	var usePermit bool
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			to, err := permit.ParseAddress(field, args[0])
			if err != nil {
				return err
			}

			e, err := connect(ctx, true)
			if err != nil {
				return err
			}
			defer e.close()

			token, err := e.token(usePermit)
			if err != nil {
				return err
			}
			decimals, err := token.Decimals(ctx)
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[1], decimals)
			if err != nil {
				return err
			}
			data, err := pack(token, to, amount)
			if err != nil {
				return err
			}
			sub, err := sendAndWait(ctx, e, method, token.Address, data)
			if err != nil {
				return err
			}
			r := newTxReport(e, sub)
			return report(cmd, r.markdown(), r)
		},
	}
	cmd.Flags().BoolVar(&usePermit, "permit", false, "use the permit token")
	return cmd
}

func approveCmd() *cobra.Command {
	return tokenWrite("approve <spender> <amount>", "Approve a spender", "approve", "spender",
		func(t *contracts.Token, to common.Address, v *big.Int) ([]byte, error) { return t.PackApprove(to, v) })
}

func transferCmd() *cobra.Command {
	return tokenWrite("transfer <to> <amount>", "Transfer tokens", "transfer", "to",
		func(t *contracts.Token, to common.Address, v *big.Int) ([]byte, error) { return t.PackTransfer(to, v) })
}

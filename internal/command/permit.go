package command

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackchuma/tokenbank/internal/config"
	"github.com/jackchuma/tokenbank/internal/permit"
	"github.com/jackchuma/tokenbank/internal/template"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const (
	defaultPrefix = "vvvvvvvv"
	defaultSuffix = "^^^^^^^^"
)

func permitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permit",
		Short: "Sign, verify and submit EIP-2612 permits",
	}
	cmd.AddCommand(permitSignCmd(), permitVerifyCmd(), permitSubmitCmd(), permitDepositCmd())
	return cmd
}

// defaultDeadline is now plus the configured default, in Unix seconds.
func defaultDeadline(d time.Duration) string {
	return strconv.FormatInt(time.Now().Add(d).Unix(), 10)
}

func permitSignCmd() *cobra.Command {
	var owner, spender, value, deadline string
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a permit with the connected wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := connect(ctx, true)
			if err != nil {
				return err
			}
			defer e.close()

			flow, _, err := e.permitFlow()
			if err != nil {
				return err
			}
			data, err := flow.Load(ctx, e.account())
			if err != nil {
				return err
			}

			if deadline == "" {
				deadline = defaultDeadline(e.cfg.DefaultDeadline)
			}
			req, err := signRequest(e.account(), e.addrs.PermitBank, owner, spender, value, deadline)
			if err != nil {
				return err
			}
			res, err := flow.GenerateSignature(ctx, req)
			if err != nil {
				return err
			}

			md, err := template.BuildSignatureReport(e.names, data.Decimals, res)
			if err != nil {
				return err
			}
			r, err := template.NewSignatureReport(e.names, res)
			if err != nil {
				return err
			}
			return report(cmd, md, r)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "token owner, the connected account by default")
	cmd.Flags().StringVar(&spender, "spender", "", "spender to approve, the permit bank by default")
	cmd.Flags().StringVar(&value, "value", "", "amount in token units, e.g. 10 or 0.5")
	cmd.Flags().StringVar(&deadline, "deadline", "", "Unix seconds or RFC 3339, now plus TOKENBANK_DEFAULT_DEADLINE by default")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}

// signRequest fills in the defaults of `permit sign`: the connected account
// as owner and the permit bank as spender.
func signRequest(account, bank common.Address, owner, spender, value, deadline string) (permit.Request, error) {
	if owner == "" {
		owner = account.Hex()
	}
	if spender == "" {
		if err := config.Require(map[string]common.Address{"permit bank": bank}); err != nil {
			return permit.Request{}, err
		}
		spender = bank.Hex()
	}
	return permit.Request{Owner: owner, Spender: spender, Value: value, Deadline: deadline}, nil
}

func permitVerifyCmd() *cobra.Command {
	var prefix, suffix string
	cmd := &cobra.Command{
		Use:   "verify [report.json]",
		Short: "Check that a JSON signature report was signed by its owner",
		Long: "Reads a report written by `permit sign --format json` from the file or stdin. " +
			"When the input contains the prefix and suffix markers only the text between them is used.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) > 0 {
				name = args[0]
			}
			input, err := readInput(cmd.InOrStdin(), name)
			if err != nil {
				return err
			}
			res, err := decodeReport(extract(input, prefix, suffix))
			if err != nil {
				return err
			}
			if err := permit.Verify(res); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signature is valid: signed by %s for %s\n", res.Owner.Hex(), res.Spender.Hex())
			fmt.Fprintf(cmd.OutOrStdout(), "Digest: %s\n", res.Digest.Hex())
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", defaultPrefix, "string that prefixes the report")
	cmd.Flags().StringVar(&suffix, "suffix", defaultSuffix, "string that suffixes the report")
	return cmd
}

func permitSubmitCmd() *cobra.Command {
	var (
		req     permit.SubmitRequest
		deposit bool
	)
	cmd := &cobra.Command{
		Use:   "submit [report.json]",
		Short: "Submit a signed permit, from flags or from a JSON signature report",
		Long: "Without --owner the permit is read from a JSON report (file or stdin). " +
			"With --deposit the permit is consumed by the permit bank's permitDeposit.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := connect(ctx, true)
			if err != nil {
				return err
			}
			defer e.close()

			submitter, err := e.submitter()
			if err != nil {
				return err
			}

			if req.Owner == "" {
				var name string
				if len(args) > 0 {
					name = args[0]
				}
				input, err := readInput(cmd.InOrStdin(), name)
				if err != nil {
					return err
				}
				res, err := decodeReport(extract(input, defaultPrefix, defaultSuffix))
				if err != nil {
					return err
				}
				if res.Domain.VerifyingContract != submitter.Token.Address {
					return errors.Errorf("report was signed for %s, the permit token is %s",
						res.Domain.VerifyingContract.Hex(), submitter.Token.Address.Hex())
				}
				decimals, err := submitter.Token.Decimals(ctx)
				if err != nil {
					return err
				}
				req = submitRequest(res, formatBig(res.Value, decimals))
			}

			var sub *permit.Submission
			if deposit {
				sub, err = submitter.SubmitPermitDeposit(ctx, req)
			} else {
				sub, err = submitter.SubmitPermit(ctx, req)
			}
			if err != nil {
				return err
			}
			r := newTxReport(e, sub)
			return report(cmd, r.markdown(), r)
		},
	}
	cmd.Flags().StringVar(&req.Owner, "owner", "", "permit owner")
	cmd.Flags().StringVar(&req.Spender, "spender", "", "permit spender")
	cmd.Flags().StringVar(&req.Value, "value", "", "amount in token units")
	cmd.Flags().StringVar(&req.Deadline, "deadline", "", "deadline in Unix seconds")
	cmd.Flags().StringVar(&req.V, "v", "", "signature v (27 or 28)")
	cmd.Flags().StringVar(&req.R, "r", "", "signature r, 0x prefixed 32 bytes")
	cmd.Flags().StringVar(&req.S, "s", "", "signature s, 0x prefixed 32 bytes")
	cmd.Flags().BoolVar(&deposit, "deposit", false, "call permitDeposit on the permit bank instead of permit on the token")
	return cmd
}

func submitRequest(res *permit.Result, value string) permit.SubmitRequest {
	return permit.SubmitRequest{
		Owner:    res.Owner.Hex(),
		Spender:  res.Spender.Hex(),
		Value:    value,
		Deadline: res.Deadline.String(),
		V:        strconv.Itoa(int(res.Signature.V)),
		R:        common.Hash(res.Signature.R).Hex(),
		S:        common.Hash(res.Signature.S).Hex(),
	}
}

func permitDepositCmd() *cobra.Command {
	var deadline string
	cmd := &cobra.Command{
		Use:   "deposit <amount>",
		Short: "Sign a permit for the permit bank and deposit with it in one transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := connect(ctx, true)
			if err != nil {
				return err
			}
			defer e.close()

			flow, _, err := e.permitFlow()
			if err != nil {
				return err
			}
			if _, err := flow.Load(ctx, e.account()); err != nil {
				return err
			}
			submitter, err := e.submitter()
			if err != nil {
				return err
			}

			if deadline == "" {
				deadline = defaultDeadline(e.cfg.DefaultDeadline)
			}
			w := permit.NewDepositWorkflow(flow, submitter)
			sub, err := w.Run(ctx, permit.Request{
				Owner:    e.account().Hex(),
				Spender:  submitter.Bank.Address.Hex(),
				Value:    args[0],
				Deadline: deadline,
			})
			if err != nil {
				return err
			}
			r := newTxReport(e, sub)
			return report(cmd, r.markdown(), r)
		},
	}
	cmd.Flags().StringVar(&deadline, "deadline", "", "Unix seconds or RFC 3339, now plus TOKENBANK_DEFAULT_DEADLINE by default")
	return cmd
}

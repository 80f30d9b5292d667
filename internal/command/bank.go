package command

import (
	"fmt"

	"github.com/jackchuma/tokenbank/internal/units"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type bankBalance struct {
	Bank          string `json:"bank"`
	Owner         string `json:"owner"`
	Deposited     string `json:"deposited"`
	TotalDeposits string `json:"totalDeposits"`
}

func bankCmd() *cobra.Command {
	var usePermit bool
	cmd := &cobra.Command{
		Use:   "bank",
		Short: "Deposit to and withdraw from the token bank",
	}
	cmd.PersistentFlags().BoolVar(&usePermit, "permit", false, "use the permit token and permit bank")

	deposit := &cobra.Command{
		Use:   "deposit <amount>",
		Short: "Deposit tokens, approving the bank first when the allowance is short",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := units.CheckAmount(args[0]); err != nil {
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
			bank, err := e.bank(usePermit)
			if err != nil {
				return err
			}
			decimals, err := token.Decimals(ctx)
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[0], decimals)
			if err != nil {
				return err
			}

			allowance, err := token.Allowance(ctx, e.account(), bank.Address)
			if err != nil {
				return err
			}
			if allowance.Cmp(amount) < 0 {
				logrus.WithFields(logrus.Fields{"allowance": allowance, "amount": amount}).Info("Approving the bank")
				data, err := token.PackApprove(bank.Address, amount)
				if err != nil {
					return err
				}
				if _, err := sendAndWait(ctx, e, "approve", token.Address, data); err != nil {
					return errors.Wrap(err, "approve failed")
				}
			}

			data, err := bank.PackDeposit(amount)
			if err != nil {
				return err
			}
			sub, err := sendAndWait(ctx, e, "deposit", bank.Address, data)
			if err != nil {
				return err
			}
			r := newTxReport(e, sub)
			return report(cmd, r.markdown(), r)
		},
	}

	withdraw := &cobra.Command{
		Use:   "withdraw <amount>",
		Short: "Withdraw deposited tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := connect(ctx, true)
			if err != nil {
				return err
			}
			defer e.close()

			token, err := e.token(usePermit)
			if err != nil {
				return err
			}
			bank, err := e.bank(usePermit)
			if err != nil {
				return err
			}
			decimals, err := token.Decimals(ctx)
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[0], decimals)
			if err != nil {
				return err
			}
			data, err := bank.PackWithdraw(amount)
			if err != nil {
				return err
			}
			sub, err := sendAndWait(ctx, e, "withdraw", bank.Address, data)
			if err != nil {
				return err
			}
			r := newTxReport(e, sub)
			return report(cmd, r.markdown(), r)
		},
	}

	balance := &cobra.Command{
		Use:   "balance [address]",
		Short: "Show the deposited balance of an address, the wallet by default",
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
			bank, err := e.bank(usePermit)
			if err != nil {
				return err
			}
			decimals, err := token.Decimals(ctx)
			if err != nil {
				return err
			}
			deposited, err := bank.Balance(ctx, owner)
			if err != nil {
				return err
			}
			total, err := bank.TotalDeposits(ctx)
			if err != nil {
				return err
			}

			r := bankBalance{
				Bank:          bank.Address.Hex(),
				Owner:         owner.Hex(),
				Deposited:     formatBig(deposited, decimals),
				TotalDeposits: formatBig(total, decimals),
			}
			md := fmt.Sprintf("- **Owner**: `%s`\n- **Deposited**: %s\n- **Bank holds**: %s", r.Owner, r.Deposited, r.TotalDeposits)
			return report(cmd, []byte(md), r)
		},
	}

	cmd.AddCommand(deposit, withdraw, balance)
	return cmd
}

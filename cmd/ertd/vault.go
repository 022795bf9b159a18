package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Show the vault or move LP funds",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(func(a *app) error {
			info, err := a.ctl.VaultInfo(cmd.Context())
			if err != nil {
				return err
			}
			a.console.PrintVault(info)
			return nil
		})
	},
}

var vaultDepositCmd = &cobra.Command{
	Use:   "deposit <amount>",
	Short: "Deposit USD into the vault as --as",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmount(args[0])
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			shares, err := a.ctl.Deposit(cmd.Context(), callerAddr, amount)
			if err != nil {
				return err
			}
			fmt.Printf("deposited %s, minted %s shares\n", amount, shares)
			return nil
		})
	},
}

var vaultWithdrawCmd = &cobra.Command{
	Use:   "withdraw <shares>",
	Short: "Burn shares and withdraw their value as --as",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		shares, err := parseAmount(args[0])
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			amount, err := a.ctl.Withdraw(cmd.Context(), callerAddr, shares)
			if err != nil {
				return err
			}
			fmt.Printf("burned %s shares, withdrew %s\n", shares, amount)
			return nil
		})
	},
}

var vaultRedeemCmd = &cobra.Command{
	Use:   "redeem <amount>",
	Short: "Withdraw an exact USD amount as --as",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmount(args[0])
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			shares, err := a.ctl.Redeem(cmd.Context(), callerAddr, amount)
			if err != nil {
				return err
			}
			fmt.Printf("withdrew %s, burned %s shares\n", amount, shares)
			return nil
		})
	},
}

var vaultBalanceCmd = &cobra.Command{
	Use:   "balance <depositor>",
	Short: "Show a depositor's shares and their value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			bal, value, err := a.ctl.Balance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s shares worth %s\n", args[0], bal.Shares, value.StringFixed(6))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(vaultCmd)
	vaultCmd.AddCommand(vaultDepositCmd, vaultWithdrawCmd, vaultRedeemCmd, vaultBalanceCmd)
}

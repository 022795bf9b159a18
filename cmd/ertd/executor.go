package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var executorCmd = &cobra.Command{
	Use:   "executor",
	Short: "Register executors and manage their reputation",
}

var executorRegisterCmd = &cobra.Command{
	Use:   "register <address>",
	Short: "Register an executor at the UNVERIFIED tier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			rec, err := a.ctl.RegisterExecutor(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.console.PrintExecutor(rec)
			return nil
		})
	},
}

var executorShowCmd = &cobra.Command{
	Use:   "show <address>",
	Short: "Show an executor's history and tier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			rec, err := a.ctl.Executor(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.console.PrintExecutor(rec)
			return nil
		})
	},
}

var executorCheckCmd = &cobra.Command{
	Use:   "check <address>",
	Short: "Report whether an executor may mint and the stake it needs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			c, err := a.ctl.CheckExecutor(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			rows := [][2]string{
				{"executor", c.Executor},
				{"registered", fmt.Sprint(c.Registered)},
				{"authorized", fmt.Sprint(c.Authorized)},
				{"tier", c.Tier},
				{"max capital", c.Limits.MaxCapital.String()},
				{"stake", fmt.Sprintf("%d bps", c.Limits.StakeBps)},
				{"max drawdown", fmt.Sprintf("%d bps", c.Limits.MaxDrawdownBps)},
			}
			if c.BanReason != "" {
				rows = append(rows, [2]string{"ban reason", c.BanReason})
			}
			a.console.PrintStatus("EXECUTOR CHECK", rows)

			if requiredFor != "" {
				capital, err := parseAmount(requiredFor)
				if err != nil {
					return err
				}
				stake, err := a.ctl.RequiredStake(cmd.Context(), args[0], capital)
				if err != nil {
					return err
				}
				fmt.Printf("required stake for %s capital: %s\n", capital, stake)
			}
			return nil
		})
	},
}

var requiredFor string

var executorWhitelistCmd = &cobra.Command{
	Use:   "whitelist <address>",
	Short: "Grant ELITE tier (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			rec, err := a.ctl.WhitelistExecutor(cmd.Context(), callerAddr, args[0])
			if err != nil {
				return err
			}
			a.console.PrintExecutor(rec)
			return nil
		})
	},
}

var banReason string

var executorBanCmd = &cobra.Command{
	Use:   "ban <address>",
	Short: "Ban an executor from minting (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			rec, err := a.ctl.BanExecutor(cmd.Context(), callerAddr, args[0], banReason)
			if err != nil {
				return err
			}
			a.console.PrintExecutor(rec)
			return nil
		})
	},
}

var executorUnbanCmd = &cobra.Command{
	Use:   "unban <address>",
	Short: "Lift a ban (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			rec, err := a.ctl.UnbanExecutor(cmd.Context(), callerAddr, args[0])
			if err != nil {
				return err
			}
			a.console.PrintExecutor(rec)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(executorCmd)
	executorCmd.AddCommand(executorRegisterCmd, executorShowCmd, executorCheckCmd,
		executorWhitelistCmd, executorBanCmd, executorUnbanCmd)

	executorCheckCmd.Flags().StringVar(&requiredFor, "capital", "", "also print the stake required for this capital")
	executorBanCmd.Flags().StringVar(&banReason, "reason", "", "ban reason (required)")
	_ = executorBanCmd.MarkFlagRequired("reason")
}

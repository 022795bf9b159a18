package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alejandrodnm/ertvault/internal/application/breaker"
	"github.com/alejandrodnm/ertvault/internal/application/insurance"
)

var breakerCmd = &cobra.Command{
	Use:   "breaker",
	Short: "Inspect or reset the circuit breaker",
}

var breakerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show breaker state and today's loss",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(func(a *app) error {
			st, err := a.ctl.BreakerStatus(cmd.Context())
			if err != nil {
				return err
			}
			printBreaker(a, st)
			return nil
		})
	},
}

var breakerResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Resume risk-increasing operations (admin)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(func(a *app) error {
			st, err := a.ctl.ResetBreaker(cmd.Context(), callerAddr)
			if err != nil {
				return err
			}
			printBreaker(a, st)
			return nil
		})
	},
}

func printBreaker(a *app, st breaker.Status) {
	rows := [][2]string{
		{"state", st.State},
		{"daily loss", st.DailyLossBps.StringFixed(2) + " bps"},
		{"limit", fmt.Sprintf("%d bps", st.MaxDailyLossBps)},
		{"window start", st.WindowStart.Format(time.RFC3339)},
	}
	if st.TrippedAt != nil {
		rows = append(rows,
			[2]string{"tripped at", st.TrippedAt.Format(time.RFC3339)},
			[2]string{"reason", st.TripReason})
	}
	a.console.PrintStatus("CIRCUIT BREAKER", rows)
}

var reserveCmd = &cobra.Command{
	Use:   "reserve",
	Short: "Show the insurance reserve",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(func(a *app) error {
			st, err := a.ctl.ReserveStatus(cmd.Context())
			if err != nil {
				return err
			}
			printReserve(a, st)
			return nil
		})
	},
}

var reserveFundCmd = &cobra.Command{
	Use:   "fund <amount>",
	Short: "Deposit external funds into the reserve as --as",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmount(args[0])
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			st, err := a.ctl.FundReserve(cmd.Context(), callerAddr, amount)
			if err != nil {
				return err
			}
			printReserve(a, st)
			return nil
		})
	},
}

func printReserve(a *app, st insurance.Status) {
	a.console.PrintStatus("INSURANCE RESERVE", [][2]string{
		{"balance", "$" + st.Balance.StringFixed(2)},
		{"target", "$" + st.Target.StringFixed(2)},
		{"coverage", st.Coverage.Shift(2).StringFixed(2) + "%"},
	})
}

var (
	eventsEntity string
	eventsLimit  int
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the ledger audit trail, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(func(a *app) error {
			events, err := a.ctl.Events(cmd.Context(), eventsEntity, eventsLimit)
			if err != nil {
				return err
			}
			a.console.PrintEvents(events)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(breakerCmd, reserveCmd, eventsCmd)
	breakerCmd.AddCommand(breakerStatusCmd, breakerResetCmd)
	reserveCmd.AddCommand(reserveFundCmd)

	eventsCmd.Flags().StringVar(&eventsEntity, "entity", "", `entity key, e.g. "ert:<id>", "vault", "executor:<addr>"`)
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "max events")
}

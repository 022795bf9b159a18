package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alejandrodnm/ertvault/internal/application/positions"
	"github.com/alejandrodnm/ertvault/internal/domain"
)

var ertCmd = &cobra.Command{
	Use:   "ert",
	Short: "Mint, inspect and settle execution rights",
	Long: `Manage execution rights (ERTs).

Examples:
  ertd ert list --status ACTIVE
  ertd ert mint --as 0xexec --capital 10000 --stake 5000 --duration 168h --assets ETH --adapters uniswap
  ertd ert show <id>
  ertd ert estimate <id>
  ertd ert settle <id> --as 0xexec
  ertd ert force-settle <id> --as 0xkeeper`,
}

var ertListStatus string

var ertListCmd = &cobra.Command{
	Use:   "list",
	Short: "List execution rights",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(func(a *app) error {
			erts, err := a.ctl.ListERTs(cmd.Context(), domain.ERTStatus(ertListStatus))
			if err != nil {
				return err
			}
			a.console.PrintERTs(erts)
			return nil
		})
	},
}

var mintFlags struct {
	capital, stake   string
	duration         time.Duration
	leverage         int64
	drawdownBps      int64
	positionBps      int64
	adapters, assets []string
	baseFeeBps       int64
	profitShareBps   int64
}

var ertMintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Mint an execution right owned by --as",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		capital, err := parseAmount(mintFlags.capital)
		if err != nil {
			return err
		}
		stake, err := parseAmount(mintFlags.stake)
		if err != nil {
			return err
		}
		req := domain.MintRequest{
			Owner:        callerAddr,
			CapitalLimit: capital,
			StakeAmount:  stake,
			Duration:     mintFlags.duration,
			Constraints: domain.Constraints{
				MaxLeverage:        mintFlags.leverage,
				MaxDrawdownBps:     mintFlags.drawdownBps,
				MaxPositionSizeBps: mintFlags.positionBps,
				AllowedAdapters:    mintFlags.adapters,
				AllowedAssets:      mintFlags.assets,
			},
			Fees: domain.Fees{BaseFeeAprBps: mintFlags.baseFeeBps, ProfitShareBps: mintFlags.profitShareBps},
		}
		return withApp(func(a *app) error {
			ert, err := a.ctl.MintERT(cmd.Context(), req)
			if err != nil {
				return err
			}
			a.console.PrintERT(ert, nil)
			return nil
		})
	},
}

var ertShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show an execution right with its positions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			v, err := a.ctl.GetERT(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.console.PrintERT(v.ERT, v.Positions)
			if v.Settlement != nil {
				fmt.Printf("\nsettled %s by %s\n", v.Settlement.SettledAt.Format(time.RFC3339), v.Settlement.SettledBy)
				a.console.PrintBreakdown(v.Settlement.Breakdown)
			}
			return nil
		})
	},
}

var ertEstimateCmd = &cobra.Command{
	Use:   "estimate <id>",
	Short: "Estimate the settlement breakdown at current prices",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			b, err := a.ctl.EstimateSettlement(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.console.PrintBreakdown(b)
			return nil
		})
	},
}

var ertSettleCmd = &cobra.Command{
	Use:   "settle <id>",
	Short: "Settle an active execution right (owner or controller)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			// el notifier de consola imprime el desglose
			_, err := a.ctl.Settle(cmd.Context(), callerAddr, args[0])
			return err
		})
	},
}

var ertForceSettleCmd = &cobra.Command{
	Use:   "force-settle <id>",
	Short: "Settle an expired execution right (any caller)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			_, err := a.ctl.ForceSettle(cmd.Context(), callerAddr, args[0])
			return err
		})
	},
}

var ertExpireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Mark every overdue execution right as EXPIRED",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(func(a *app) error {
			n, err := a.ctl.ExpireDue(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("expired %d execution rights\n", n)
			return nil
		})
	},
}

var ertPnlCmd = &cobra.Command{
	Use:   "pnl <id>",
	Short: "Show realized and unrealized PnL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			pnl, err := a.ctl.EstimatePnl(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("realized %s | unrealized %s | total %s\n",
				pnl.Realized.StringFixed(6), pnl.Unrealized.StringFixed(6), pnl.Total().StringFixed(6))
			return nil
		})
	},
}

var openFlags struct {
	adapter, asset, side string
	size, value          string
}

var ertOpenCmd = &cobra.Command{
	Use:   "open <id>",
	Short: "Open a position inside an execution right (owner only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := positions.OpenRequest{
			ERTID:   args[0],
			Adapter: openFlags.adapter,
			Asset:   openFlags.asset,
			Side:    domain.Side(openFlags.side),
		}
		var err error
		if openFlags.size != "" {
			if req.Size, err = parseAmount(openFlags.size); err != nil {
				return err
			}
		}
		if openFlags.value != "" {
			if req.EntryValueUSD, err = parseAmount(openFlags.value); err != nil {
				return err
			}
		}
		return withApp(func(a *app) error {
			pos, err := a.ctl.OpenPosition(cmd.Context(), callerAddr, req)
			if err != nil {
				return err
			}
			fmt.Printf("opened %s %s %s %s @ %s (id %s)\n",
				pos.Side, pos.Size, pos.Asset, pos.Adapter, pos.EntryPrice, pos.ID)
			return nil
		})
	},
}

var ertCloseCmd = &cobra.Command{
	Use:   "close <position-id>",
	Short: "Close a position at the current price",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			pos, err := a.ctl.ClosePosition(cmd.Context(), callerAddr, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("closed %s @ %s, pnl %s\n", pos.ID, pos.ExitPrice, pos.RealizedPnl.StringFixed(6))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(ertCmd)
	ertCmd.AddCommand(ertListCmd, ertMintCmd, ertShowCmd, ertEstimateCmd, ertSettleCmd,
		ertForceSettleCmd, ertExpireCmd, ertPnlCmd, ertOpenCmd, ertCloseCmd)

	ertListCmd.Flags().StringVar(&ertListStatus, "status", "", "ACTIVE | EXPIRED | SETTLED (default all)")

	f := ertMintCmd.Flags()
	f.StringVar(&mintFlags.capital, "capital", "", "capital limit in USD")
	f.StringVar(&mintFlags.stake, "stake", "", "stake amount")
	f.DurationVar(&mintFlags.duration, "duration", 7*24*time.Hour, "lifetime of the right")
	f.Int64Var(&mintFlags.leverage, "leverage", 1, "max leverage")
	f.Int64Var(&mintFlags.drawdownBps, "drawdown-bps", 1000, "max drawdown in bps of capital")
	f.Int64Var(&mintFlags.positionBps, "position-bps", 10000, "max single position in bps of capital")
	f.StringSliceVar(&mintFlags.adapters, "adapters", nil, "allowed venues")
	f.StringSliceVar(&mintFlags.assets, "assets", nil, "allowed assets")
	f.Int64Var(&mintFlags.baseFeeBps, "base-fee-bps", 200, "LP base fee, APR bps")
	f.Int64Var(&mintFlags.profitShareBps, "profit-share-bps", 2000, "LP profit share, bps")
	_ = ertMintCmd.MarkFlagRequired("capital")
	_ = ertMintCmd.MarkFlagRequired("stake")

	o := ertOpenCmd.Flags()
	o.StringVar(&openFlags.adapter, "adapter", "", "venue name")
	o.StringVar(&openFlags.asset, "asset", "", "asset symbol")
	o.StringVar(&openFlags.side, "side", string(domain.Long), "LONG | SHORT")
	o.StringVar(&openFlags.size, "size", "", "size in asset units")
	o.StringVar(&openFlags.value, "value", "", "notional in USD at the current mark")
}


package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/ertvault/internal/domain"
)

// Console implementa ports.SettlementNotifier y los reportes del CLI.
type Console struct {
	out io.Writer
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// NotifySettlement imprime una línea de resumen y el desglose completo.
func (c *Console) NotifySettlement(_ context.Context, s domain.Settlement) error {
	b := s.Breakdown
	mode := "settled"
	if s.Forced {
		mode = "force-settled"
	}
	fmt.Fprintf(c.out, "\n[%s] ert %s %s by %s → pnl %s | lp %s | reserve %s | executor %s\n",
		s.SettledAt.Format("15:04:05"), shortID(s.ERTID), mode, s.SettledBy,
		usd(b.TotalPnl), usd(b.VaultCredit()), usd(b.InsuranceFee), usd(b.ExecutorProfit))

	if s.Outcome.Tier != s.Outcome.PreviousTier {
		fmt.Fprintf(c.out, "  tier %s → %s\n", s.Outcome.PreviousTier, s.Outcome.Tier)
	}
	if s.Outcome.LargeLoss {
		fmt.Fprintf(c.out, "  !! large loss: %d bps of capital\n", s.Outcome.LossBps)
	}
	if s.Tripped {
		fmt.Fprintln(c.out, "  !! circuit breaker TRIPPED: mint, open and settle suspended")
	}

	c.PrintBreakdown(b)
	return nil
}

// PrintBreakdown imprime el reparto de una liquidación (real o estimada).
func (c *Console) PrintBreakdown(b domain.Breakdown) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Concept", "USD")

	rows := []struct {
		label string
		value decimal.Decimal
	}{
		{"Realized PnL", b.Realized},
		{"Unrealized PnL", b.Unrealized},
		{"Total PnL", b.TotalPnl},
		{"LP base fee", b.LPBaseFee},
		{"  from stake", b.FeeFromStake},
		{"  waived", b.BaseFeeWaived},
		{"LP profit share", b.LPProfitShare},
		{"Insurance fee", b.InsuranceFee},
		{"Executor profit", b.ExecutorProfit},
		{"Stake slashed", b.StakeSlashed},
		{"Stake returned", b.StakeReturned},
		{"Reserve draw", b.InsuranceDraw},
		{"Uncovered loss", b.UncoveredLoss},
		{"Excess loss", b.ExcessLoss},
		{"Capital returned", b.CapitalReturned},
	}
	for _, r := range rows {
		table.Append(r.label, usd(r.value))
	}
	table.Render()

	fmt.Fprintf(c.out, "  elapsed %s | vault credit %s\n", b.Elapsed.Round(time.Second), usd(b.VaultCredit()))
}

// PrintVault imprime el estado del vault.
func (c *Console) PrintVault(info domain.VaultInfo) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Total assets", "Allocated", "Available", "Utilization", "Shares", "Share price")
	table.Append(
		usd(info.TotalAssets),
		usd(info.AllocatedCapital),
		usd(info.AvailableCapital),
		pct(info.UtilizationRate),
		info.TotalShares.String(),
		info.SharePrice.StringFixed(6),
	)
	table.Render()
}

// PrintERT imprime un derecho de ejecución y sus posiciones.
func (c *Console) PrintERT(e domain.ExecutionRight, positions []domain.Position) {
	fmt.Fprintf(c.out, "\nERT %s [%s]\n", e.ID, e.Status)
	fmt.Fprintf(c.out, "  owner:    %s\n", e.Owner)
	fmt.Fprintf(c.out, "  capital:  %s  stake: %s\n", usd(e.CapitalLimit), e.StakeAmount)
	fmt.Fprintf(c.out, "  window:   %s → %s (%s)\n",
		e.CreatedAt.Format(time.RFC3339), e.ExpiresAt().Format(time.RFC3339), e.Duration)
	fmt.Fprintf(c.out, "  limits:   leverage %dx, drawdown %d bps, position %d bps\n",
		e.Constraints.MaxLeverage, e.Constraints.MaxDrawdownBps, e.Constraints.MaxPositionSizeBps)
	fmt.Fprintf(c.out, "  venues:   %s | assets: %s\n",
		strings.Join(e.Constraints.AllowedAdapters, ","), strings.Join(e.Constraints.AllowedAssets, ","))
	fmt.Fprintf(c.out, "  fees:     base %d bps APR, profit share %d bps\n",
		e.Fees.BaseFeeAprBps, e.Fees.ProfitShareBps)
	fmt.Fprintf(c.out, "  realized: %s\n", usd(e.RealizedPnl))

	if len(positions) == 0 {
		fmt.Fprintln(c.out, "  no positions")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "ID", "Venue", "Asset", "Side", "Size", "Entry$", "Entry px", "Exit px", "PnL", "Status")
	for i, p := range positions {
		exit, pnl := "-", "-"
		if p.Status == domain.PositionClosed {
			exit = p.ExitPrice.String()
			pnl = usd(p.RealizedPnl)
		}
		table.Append(
			fmt.Sprintf("%d", i+1),
			shortID(p.ID),
			p.Adapter,
			p.Asset,
			string(p.Side),
			p.Size.String(),
			usd(p.EntryValueUSD),
			p.EntryPrice.String(),
			exit,
			pnl,
			string(p.Status),
		)
	}
	table.Render()
}

// PrintERTs imprime un listado compacto.
func (c *Console) PrintERTs(erts []domain.ExecutionRight) {
	if len(erts) == 0 {
		fmt.Fprintln(c.out, "no execution rights")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("ID", "Owner", "Capital", "Stake", "Status", "Expires")
	for _, e := range erts {
		table.Append(e.ID, e.Owner, usd(e.CapitalLimit), e.StakeAmount.String(),
			string(e.Status), e.ExpiresAt().Format("2006-01-02 15:04"))
	}
	table.Render()
}

// PrintExecutor imprime el historial y el tier de un ejecutor.
func (c *Console) PrintExecutor(rec domain.ReputationRecord) {
	limits := rec.Limits()
	state := "active"
	switch {
	case rec.Banned:
		state = "BANNED (" + rec.BanReason + ")"
	case rec.Whitelisted:
		state = "whitelisted"
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Executor", "Tier", "State", "Settlements", "Profitable", "Volume", "Largest loss", "Max capital", "Stake")
	table.Append(
		rec.Executor,
		rec.Tier().String(),
		state,
		fmt.Sprintf("%d", rec.TotalSettlements),
		fmt.Sprintf("%d", rec.ProfitableSettlements),
		usd(rec.TotalVolumeUSD),
		fmt.Sprintf("%d bps", rec.LargestLossBps),
		usd(limits.MaxCapital),
		fmt.Sprintf("%d bps", limits.StakeBps),
	)
	table.Render()
}

// PrintStatus imprime pares clave/valor (breaker, reserva).
func (c *Console) PrintStatus(title string, rows [][2]string) {
	fmt.Fprintf(c.out, "\n%s\n", title)
	table := tablewriter.NewWriter(c.out)
	for _, r := range rows {
		table.Append(r[0], r[1])
	}
	table.Render()
}

// PrintEvents imprime el audit trail, más reciente primero.
func (c *Console) PrintEvents(events []domain.LedgerEvent) {
	if len(events) == 0 {
		fmt.Fprintln(c.out, "no events")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("At", "Kind", "Entity", "Amount", "Detail")
	for _, e := range events {
		table.Append(e.At.Format("01-02 15:04:05"), string(e.Kind), e.Entity, e.Amount.String(), truncate(e.Detail, 60))
	}
	table.Render()
}

// --- helpers ---

func usd(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}

func pct(ratio decimal.Decimal) string {
	return ratio.Shift(2).StringFixed(2) + "%"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

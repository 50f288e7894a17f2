package notify

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alejandrodnm/dipbot/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console imprime el estado del bot en tablas.
type Console struct {
	out io.Writer
	now func() time.Time
}

// NewConsole crea un Console que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout, now: time.Now}
}

// NewConsoleWriter crea un Console para tests.
func NewConsoleWriter(w io.Writer, now func() time.Time) *Console {
	if now == nil {
		now = time.Now
	}
	return &Console{out: w, now: now}
}

// ReportInput agrupa los datos del reporte.
type ReportInput struct {
	Ledger   domain.LedgerSnapshot
	Starting float64 // bankroll inicial configurado
	DryRun   bool
	Monitors []*domain.MarketMonitor
	History  []domain.BankrollChange
}

// PrintReport imprime bankroll, mercados activos, posiciones abiertas y el
// histórico reciente de bankroll.
func (c *Console) PrintReport(in ReportInput) {
	mode := "LIVE"
	if in.DryRun {
		mode = "DRY-RUN"
	}
	fmt.Fprintf(c.out, "\n═══ DIPBOT REPORT (%s) — %s ═══\n\n", mode, c.now().UTC().Format("2006-01-02 15:04 MST"))

	l := in.Ledger
	fmt.Fprintf(c.out, "  Bankroll:     $%.2f", l.Bankroll)
	if in.Starting > 0 {
		fmt.Fprintf(c.out, " (%+.2f%% vs $%.2f)", (l.Bankroll/in.Starting-1)*100, in.Starting)
	}
	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "  Exposure:     $%.2f\n", l.Exposure)
	fmt.Fprintf(c.out, "  Open markets: %d\n", l.OpenMarkets)

	c.printMonitors(in.Monitors)
	c.printPositions(in.Monitors)
	c.printHistory(in.History)
}

func (c *Console) printMonitors(monitors []*domain.MarketMonitor) {
	fmt.Fprintf(c.out, "\n── ACTIVE MARKETS (%d) ──\n", len(monitors))
	if len(monitors) == 0 {
		fmt.Fprintln(c.out, "  (none)")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Ticker", "Kickoff", "Phase", "6h", "3h", "30m", "Eligible", "Fav", "Pending", "P&L")
	for _, m := range monitors {
		table.Append(
			compactName(m.Ticker, 32),
			c.kickoffLabel(m.Kickoff),
			string(m.Phase),
			checkpointLabel(m, domain.Checkpoint6h),
			checkpointLabel(m, domain.Checkpoint3h),
			checkpointLabel(m, domain.Checkpoint30m),
			m.Eligibility.String(),
			strings.ToUpper(string(m.FavoriteSide)),
			fmt.Sprintf("%d", len(m.PendingOrders())),
			fmt.Sprintf("$%.2f", m.RealizedPnL()),
		)
	}
	table.Render()
}

func (c *Console) printPositions(monitors []*domain.MarketMonitor) {
	var rows [][]any
	for _, m := range monitors {
		for _, p := range m.Positions {
			sell := "-"
			if o := m.LiveSell(p); o != nil {
				sell = fmt.Sprintf("%s %d@%d¢", o.Role, o.Remaining(), o.PriceCents)
			}
			rows = append(rows, []any{
				compactName(m.Ticker, 32),
				strings.ToUpper(string(p.Side)),
				fmt.Sprintf("%d¢", p.EntryPriceCents),
				fmt.Sprintf("%d", p.Size),
				fmt.Sprintf("%d", p.Unsold()),
				fmt.Sprintf("$%.2f", p.CostBasis()),
				sell,
			})
		}
	}

	fmt.Fprintf(c.out, "\n── OPEN POSITIONS (%d) ──\n", len(rows))
	if len(rows) == 0 {
		fmt.Fprintln(c.out, "  (none)")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Ticker", "Side", "Entry", "Size", "Unsold", "Cost", "Live sell")
	for _, r := range rows {
		table.Append(r...)
	}
	table.Render()
}

func (c *Console) printHistory(history []domain.BankrollChange) {
	fmt.Fprintf(c.out, "\n── BANKROLL HISTORY (last %d) ──\n", len(history))
	if len(history) == 0 {
		fmt.Fprintln(c.out, "  (none)")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("When", "Ticker", "Reason", "Delta", "Balance")
	for _, h := range history {
		table.Append(
			h.ChangedAt.UTC().Format("01-02 15:04"),
			compactName(h.Ticker, 32),
			h.Reason,
			fmt.Sprintf("%+.2f", h.Delta),
			fmt.Sprintf("$%.2f", h.Balance),
		)
	}
	table.Render()
}

func (c *Console) kickoffLabel(k time.Time) string {
	d := k.Sub(c.now())
	if d <= 0 {
		return fmt.Sprintf("started %s ago", (-d).Truncate(time.Minute))
	}
	return "in " + d.Truncate(time.Minute).String()
}

func checkpointLabel(m *domain.MarketMonitor, k domain.CheckpointKind) string {
	cp := m.Checkpoint(k)
	if cp == nil {
		return "-"
	}
	return fmt.Sprintf("%d¢", cp.PriceCents)
}

func compactName(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-1] + "…"
}

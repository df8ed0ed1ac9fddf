package notify

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alejandrodnm/delphibot/internal/analysis"
	"github.com/alejandrodnm/delphibot/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console imprime reportes en texto plano con tablas.
type Console struct {
	out      io.Writer
	detailed bool
}

// NewConsole crea un reporter que escribe a stdout.
func NewConsole(detailed bool) *Console {
	return &Console{out: os.Stdout, detailed: detailed}
}

// NewConsoleWriter crea un reporter para tests.
func NewConsoleWriter(w io.Writer, detailed bool) *Console {
	return &Console{out: w, detailed: detailed}
}

// PrintHistorical imprime el análisis histórico: una fila por mercado y el win rate.
// Con detailed=true añade el ranking de cada mercado.
func (c *Console) PrintHistorical(r analysis.Report) {
	now := time.Now().Format("15:04:05")
	if len(r.Markets) == 0 {
		fmt.Fprintf(c.out, "[%s] no settled markets to analyze\n", now)
		return
	}

	fmt.Fprintf(c.out, "\n[%s] historical analysis — %d markets\n", now, r.TotalMarkets)

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Market", "Actual", "Source", "Predicted", "Belief", "Evals", "OK")
	for _, m := range r.Markets {
		predicted := "-"
		if m.PredictedWinner != nil {
			predicted = *m.PredictedWinner
		}
		ok := "x"
		if m.Correct {
			ok = "✓"
		}
		table.Append(
			m.MarketID,
			truncate(m.MarketName, 32),
			truncate(m.ActualWinner, 28),
			string(m.WinnerSource),
			truncate(predicted, 28),
			fmt.Sprintf("%.2f%%", m.BeliefScore),
			fmt.Sprintf("%d", m.EvalCount),
			ok,
		)
	}
	table.Render()

	fmt.Fprintf(c.out, "  Win rate: %.1f%% (%d/%d)\n", r.WinRate, r.CorrectPredictions, r.TotalMarkets)

	if c.detailed {
		for _, m := range r.Markets {
			c.printRankings(m)
		}
	}
	fmt.Fprintln(c.out)
}

func (c *Console) printRankings(m analysis.MarketAnalysis) {
	fmt.Fprintf(c.out, "\n--- %s (%s) ---\n", m.MarketName, m.MarketID)
	if len(m.Rankings) == 0 {
		fmt.Fprintln(c.out, "  no evaluations")
		return
	}
	for _, rk := range m.Rankings {
		marker := " "
		if domain.NamesMatch(rk.Model, m.ActualWinner) {
			marker = "*"
		}
		fmt.Fprintf(c.out, " %s %d. %-32s avg:%6.2f  belief:%6.2f%%  evals:%d\n",
			marker, rk.Rank, truncate(rk.Model, 32), rk.Average, rk.Belief, rk.EvalCount)
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

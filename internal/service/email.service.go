package service

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"agentbacktest/internal/domain"
	"agentbacktest/internal/repository"
)

// EmailService renders run reports. It does not compute anything; the
// result is taken as finished.
type EmailService interface {
	SendRunReport(ctx context.Context, to []string, result domain.BacktestResult) error
	// GenerateRunReport returns the subject and HTML body.
	GenerateRunReport(result domain.BacktestResult) (string, string, error)
}

type emailServiceHandler struct {
	EmailRepository repository.EmailRepository
}

func NewEmailService(emailRepository repository.EmailRepository) EmailService {
	return &emailServiceHandler{
		EmailRepository: emailRepository,
	}
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"pct":  func(v float64) string { return fmt.Sprintf("%.2f%%", 100*v) },
	"num":  func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"date": func(t time.Time) string { return t.Format(time.DateOnly) },
}).Parse(`<html>
<body>
<h2>Backtest {{.RunID}}</h2>
<p>{{.Symbols}} from {{date .Config.StartDate}} to {{date .Config.EndDate}}, {{.ProcessedDays}} trading days{{if .Stopped}} (stopped early){{end}}</p>
<table>
<tr><td>Final value</td><td>{{num .FinalValue}}</td></tr>
<tr><td>Total return</td><td>{{pct .Metrics.TotalReturn}}</td></tr>
<tr><td>Annualized return</td><td>{{pct .Metrics.AnnualizedReturn}}</td></tr>
<tr><td>Sharpe</td><td>{{num .Metrics.SharpeRatio}}</td></tr>
<tr><td>Max drawdown</td><td>{{pct .Metrics.MaxDrawdown}}</td></tr>
<tr><td>Trades</td><td>{{.Metrics.TotalTrades}} ({{pct .Metrics.WinRate}} won)</td></tr>
<tr><td>Profit factor</td><td>{{num .ProfitFactor}}</td></tr>
{{- with .Benchmark}}
<tr><td>{{.Symbol}} return</td><td>{{pct .Metrics.TotalReturn}}</td></tr>
<tr><td>Alpha</td><td>{{num .Alpha}}</td></tr>
{{- end}}
</table>
{{- if .Transactions}}
<h3>Last trades</h3>
<table>
{{- range .Transactions}}
<tr><td>{{date .Timestamp}}</td><td>{{.Action}}</td><td>{{.Symbol}}</td><td>{{num .Quantity}}</td><td>{{num .Price}}</td><td>{{.Reason}}</td></tr>
{{- end}}
</table>
{{- end}}
</body>
</html>`))

const reportTransactions = 20

type reportView struct {
	domain.BacktestResult
	Symbols      string
	FinalValue   float64
	ProfitFactor float64
}

func (h *emailServiceHandler) GenerateRunReport(result domain.BacktestResult) (string, string, error) {
	view := reportView{
		BacktestResult: result,
		Symbols:        strings.Join(result.Config.Symbols, ", "),
		FinalValue:     result.FinalPortfolio.TotalValue,
		ProfitFactor:   result.Metrics.ReportedProfitFactor(),
	}
	if n := len(result.Transactions); n > reportTransactions {
		view.Transactions = result.Transactions[n-reportTransactions:]
	}

	buf := bytes.Buffer{}
	if err := reportTemplate.Execute(&buf, view); err != nil {
		return "", "", fmt.Errorf("failed to render report: %w", err)
	}

	subject := fmt.Sprintf("Backtest %s: %.2f%% over %d days", result.State, 100*result.Metrics.TotalReturn, result.ProcessedDays)
	return subject, buf.String(), nil
}

func (h *emailServiceHandler) SendRunReport(ctx context.Context, to []string, result domain.BacktestResult) error {
	subject, body, err := h.GenerateRunReport(result)
	if err != nil {
		return err
	}
	return h.EmailRepository.SendEmail(ctx, to, subject, body)
}

package datajockey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultBaseURL = "https://api.datajockey.io/v0"

var ErrRateLimited = errors.New("datajockey rate limit hit")

type Client struct {
	http   *resty.Client
	ApiKey string
}

func NewClient(apiKey, baseURL string) Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := resty.New()
	c.SetBaseURL(baseURL)
	c.SetTimeout(30 * time.Second)
	return Client{http: c, ApiKey: apiKey}
}

// Fields maps period end dates (YYYY-MM-DD) to reported values.
type Fields struct {
	Revenue                  map[string]int64   `json:"revenue"`
	GrossProfit              map[string]int64   `json:"gross_profit"`
	OperatingIncome          map[string]int64   `json:"operating_income"`
	NetIncome                map[string]int64   `json:"net_income"`
	TotalAssets              map[string]int64   `json:"total_assets"`
	TotalLiabilities         map[string]int64   `json:"total_liabilities"`
	ShareholderEquity        map[string]int64   `json:"shareholder_equity"`
	SharesOutstandingDiluted map[string]int64   `json:"shares_outstanding_diluted"`
	EpsDiluted               map[string]float64 `json:"eps_diluted"`
	OperatingCashFlow        map[string]int64   `json:"operating_cash_flow"`
	LongTermDebt             map[string]int64   `json:"long_term_debt"`
	CashOnHand               map[string]int64   `json:"cash_on_hand"`
}

type FinancialResponse struct {
	Currency    string `json:"currency"`
	CompanyInfo struct {
		CIK    string `json:"cik"`
		Ticker string `json:"ticker"`
		Name   string `json:"name"`
	} `json:"company_info"`
	FinancialData struct {
		Quarterly Fields `json:"quarterly"`
		Annual    Fields `json:"annual"`
	} `json:"financial_data"`
}

// AsOf returns, for each field, the latest quarterly value whose period
// ended on or before date.
func (f FinancialResponse) AsOf(date time.Time) map[string]float64 {
	q := f.FinancialData.Quarterly
	out := map[string]float64{}
	cutoff := date.Format(time.DateOnly)

	ints := map[string]map[string]int64{
		"revenue":                    q.Revenue,
		"gross_profit":               q.GrossProfit,
		"operating_income":           q.OperatingIncome,
		"net_income":                 q.NetIncome,
		"total_assets":               q.TotalAssets,
		"total_liabilities":          q.TotalLiabilities,
		"shareholder_equity":         q.ShareholderEquity,
		"shares_outstanding_diluted": q.SharesOutstandingDiluted,
		"operating_cash_flow":        q.OperatingCashFlow,
		"long_term_debt":             q.LongTermDebt,
		"cash_on_hand":               q.CashOnHand,
	}
	for name, series := range ints {
		best := ""
		for period := range series {
			if period <= cutoff && period > best {
				best = period
			}
		}
		if best != "" {
			out[name] = float64(series[best])
		}
	}

	best := ""
	for period := range q.EpsDiluted {
		if period <= cutoff && period > best {
			best = period
		}
	}
	if best != "" {
		out["eps_diluted"] = q.EpsDiluted[best]
	}
	return out
}

func (c Client) GetAssetMetrics(ctx context.Context, symbol string) (*FinancialResponse, error) {
	response, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"apikey": c.ApiKey,
			"ticker": symbol,
			"period": "Q",
		}).
		Get("/company/financials")
	if err != nil {
		return nil, err
	}

	if response.StatusCode() == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	} else if response.StatusCode() != http.StatusOK {
		type errResponse struct {
			Error string `json:"error"`
		}
		errJson := errResponse{}
		if err := json.Unmarshal(response.Body(), &errJson); err != nil {
			return nil, fmt.Errorf("received status code %d and failed to read error: %w", response.StatusCode(), err)
		}
		return nil, fmt.Errorf("failed with status code %d: %s", response.StatusCode(), errJson.Error)
	}

	var responseJson FinancialResponse
	if err := json.Unmarshal(response.Body(), &responseJson); err != nil {
		return nil, err
	}
	return &responseJson, nil
}

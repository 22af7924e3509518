package interestrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultBaseURL = "https://www.ustreasuryyieldcurve.com/api/v1"

var ErrNoRates = errors.New("no yield curve rates found")

func interestRateMonthsFromApi(in string) (int, error) {
	cleanedStr := strings.Replace(in, "yield_", "", 1)
	if len(cleanedStr) < 2 {
		return 0, fmt.Errorf("unexpected yield key %q", in)
	}
	unit := string(cleanedStr[len(cleanedStr)-1])
	cleanedStr = cleanedStr[:len(cleanedStr)-1]
	months, err := strconv.Atoi(cleanedStr)
	if err != nil {
		return 0, err
	}

	if unit == "y" {
		months *= 12
	}

	return months, nil
}

type InterestRateMap struct {
	Rates map[int]float64
}

// GetRate returns the rate for monthsOut, averaging the two surrounding
// tenors when there is no exact match.
func (im InterestRateMap) GetRate(monthsOut int) float64 {
	if len(im.Rates) == 0 {
		return 0
	}
	v, ok := im.Rates[monthsOut]
	if ok {
		return v
	}

	keys := []int{}
	for k := range im.Rates {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	if monthsOut < keys[0] {
		return im.Rates[keys[0]]
	}
	if monthsOut > keys[len(keys)-1] {
		return im.Rates[keys[len(keys)-1]]
	}

	for i := 0; i < len(keys)-1; i++ {
		key1 := keys[i]
		key2 := keys[i+1]
		if monthsOut > key1 && monthsOut < key2 {
			return (im.Rates[key1] + im.Rates[key2]) / 2
		}
	}
	return im.Rates[keys[len(keys)-1]]
}

var yieldKeys = []string{
	"yield_1m",
	"yield_2m",
	"yield_3m",
	"yield_4m",
	"yield_6m",
	"yield_1y",
	"yield_2y",
	"yield_3y",
	"yield_5y",
	"yield_7y",
	"yield_10y",
	"yield_20y",
	"yield_30y",
}

type Client struct {
	http *resty.Client
}

func NewClient(baseURL string) Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := resty.New()
	c.SetBaseURL(baseURL)
	c.SetTimeout(30 * time.Second)
	return Client{http: c}
}

// GetYieldCurve returns the treasury curve on date as decimal rates keyed
// by tenor in months. Null tenors are left out.
func (c Client) GetYieldCurve(ctx context.Context, date time.Time) (*InterestRateMap, error) {
	response, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"date":   date.Format(time.DateOnly),
			"offset": "0",
		}).
		Get("/yield_curve_snapshot")
	if err != nil {
		return nil, err
	}
	if response.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("failed with status code %d: %s", response.StatusCode(), response.String())
	}

	responseBody := []map[string]interface{}{}
	if err := json.Unmarshal(response.Body(), &responseBody); err != nil {
		return nil, err
	}

	out := map[int]float64{}
	for _, row := range responseBody {
		for _, field := range yieldKeys {
			v, ok := row[field].(float64)
			if !ok {
				continue
			}
			months, err := interestRateMonthsFromApi(field)
			if err != nil {
				return nil, err
			}
			out[months] = v / 100
		}
	}
	if len(out) == 0 {
		return nil, ErrNoRates
	}

	return &InterestRateMap{
		Rates: out,
	}, nil
}

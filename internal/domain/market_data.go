package domain

import (
	"fmt"
	"math"
	"time"
)

type NewsItem struct {
	Headline    string    `json:"headline"`
	Summary     string    `json:"summary,omitempty"`
	Source      string    `json:"source,omitempty"`
	URL         string    `json:"url,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`
}

type Fundamentals struct {
	Symbol  string             `json:"symbol"`
	Date    time.Time          `json:"date"`
	Metrics map[string]float64 `json:"metrics"`
}

type MarketData struct {
	Symbol   string    `json:"symbol"`
	Date     time.Time `json:"date"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	AdjClose float64   `json:"adjClose,omitempty"`
	Volume   int64     `json:"volume"`

	News       []NewsItem         `json:"news,omitempty"`
	Sentiment  *float64           `json:"sentiment,omitempty"`
	Indicators map[string]float64 `json:"indicators,omitempty"`

	// Source names the provider that produced the bar
	Source string `json:"source,omitempty"`
}

// Validate applies the data quality rules. A bar failing any of them is
// never handed to a decision maker.
func (m MarketData) Validate() error {
	for name, v := range map[string]float64{
		"open":  m.Open,
		"high":  m.High,
		"low":   m.Low,
		"close": m.Close,
	} {
		if math.IsNaN(v) || v <= 0 {
			return fmt.Errorf("%s price %f is not positive", name, v)
		}
	}
	if m.High < m.Low {
		return fmt.Errorf("high %f is below low %f", m.High, m.Low)
	}
	if m.High < math.Max(m.Open, m.Close) {
		return fmt.Errorf("high %f is below max(open, close)", m.High)
	}
	if m.Low > math.Min(m.Open, m.Close) {
		return fmt.Errorf("low %f is above min(open, close)", m.Low)
	}
	if m.Volume < 0 {
		return fmt.Errorf("volume %d is negative", m.Volume)
	}
	return nil
}

func (m MarketData) Copy() MarketData {
	out := m
	if m.News != nil {
		out.News = append([]NewsItem{}, m.News...)
	}
	if m.Sentiment != nil {
		s := *m.Sentiment
		out.Sentiment = &s
	}
	if m.Indicators != nil {
		out.Indicators = make(map[string]float64, len(m.Indicators))
		for k, v := range m.Indicators {
			out.Indicators[k] = v
		}
	}
	return out
}

// Package domain holds the core types shared across modules: securities and
// their daily price history.
package domain

// Security is one tradable instrument in the universe. The ISIN is the
// primary identifier everywhere in the system; the symbol is only a display
// and boundary identifier for external data sources.
type Security struct {
	ISIN     string `json:"isin"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name,omitempty"`
	Currency string `json:"currency,omitempty"`
	Active   bool   `json:"active"`
}

// DailyPrice is one daily OHLCV bar. Date is a "YYYY-MM-DD" string.
type DailyPrice struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume *int64  `json:"volume,omitempty"`
}

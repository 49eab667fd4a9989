package models

// PriceUpdate represents a single tick for a ticker symbol
type PriceUpdate struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"` // unix milli
	SeqID     int64   `json:"seq_id"`    // monotonic counter per symbol
}

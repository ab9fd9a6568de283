package models

import "time"

// MarketRow is one line of the market overview table.
type MarketRow struct {
	Symbol     string      `json:"symbol" csv:"symbol"`
	LTP        float64     `json:"ltp" csv:"ltp"`
	Change     float64     `json:"change" csv:"change"`
	ChangePct  float64     `json:"change_pct" csv:"change_pct"`
	Volume     float64     `json:"volume" csv:"volume"`
	OI         float64     `json:"oi" csv:"oi"`
	Score      float64     `json:"score" csv:"score"`
	Confidence int         `json:"confidence" csv:"confidence"`
	Signal     SignalClass `json:"signal" csv:"signal"`
	VWAP       float64     `json:"vwap" csv:"vwap"`
	RSI        float64     `json:"rsi" csv:"rsi"`
	UpdatedAt  time.Time   `json:"updated_at" csv:"updated_at"`
}

type CollectionState string

const (
	CollectionIdle       CollectionState = "idle"
	CollectionCollecting CollectionState = "collecting"
	CollectionError      CollectionState = "error"
)

type CollectionStatus struct {
	State                 CollectionState `json:"state"`
	Connections           int             `json:"connections"`
	ConfiguredConnections int             `json:"configured_connections"`
	SymbolsTracked        int             `json:"symbols_tracked"`
	MessagesPerSec        float64         `json:"messages_per_sec"`
	TicksTotal            int64           `json:"ticks_total"`
	DuplicatesDropped     int64           `json:"duplicates_dropped"`
	LateDropped           int64           `json:"late_dropped"`
	LastTickAt            *time.Time      `json:"last_tick_at,omitempty"`
	StartedAt             *time.Time      `json:"started_at,omitempty"`
	LastError             string          `json:"last_error,omitempty"`
}

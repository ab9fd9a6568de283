package models

// Requests for the HTTP API. Defined in domain for consistency and reuse.

type MarketRequest struct {
	Q      string `query:"q" json:"q" validate:"max=64"`
	Sort   string `query:"sort" json:"sort" default:"score" validate:"oneof=symbol ltp change change_pct volume oi score confidence vwap rsi"`
	Order  string `query:"order" json:"order" default:"desc" validate:"oneof=asc desc"`
	Limit  int    `query:"limit" json:"limit" validate:"gte=0,lte=5000"`
	Format string `query:"format" json:"format" default:"json" validate:"oneof=json csv"`
}

type CandlesRequest struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required"`
	TF     string `query:"tf" json:"tf" default:"5m" validate:"oneof=1m 5m 15m 1h 1d"`
	Limit  int    `query:"limit" json:"limit" default:"75" validate:"gte=1,lte=5000"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
}

type ConnectRequest struct {
	AuthCode string `json:"auth_code" form:"auth_code" validate:"required"`
}

type LoginURLRequest struct {
	State string `query:"state" json:"state" default:"stockpulse" validate:"max=128"`
}

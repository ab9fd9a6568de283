package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gocarina/gocsv"
	"github.com/labstack/echo/v4"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
	"StockPulse/internal/usecase"
	xhttp "StockPulse/pkg/http"
	applogger "StockPulse/pkg/logger"
	"StockPulse/pkg/util"
)

type MarketService interface {
	List(ctx context.Context, q usecase.MarketQuery) (*usecase.MarketResult, error)
}

type CandleService interface {
	GetCandles(ctx context.Context, p usecase.GetCandlesParams) (*usecase.GetCandlesResult, error)
}

// SymbolSource answers per-symbol queries; the scoring engine implements it.
type SymbolSource interface {
	Symbols() []string
	Snapshot(symbol string) (models.MarketRow, error)
	Indicators(symbol string) (models.IndicatorSet, error)
	Score(symbol string) (models.Score, error)
}

type MarketHandler struct {
	market  MarketService
	candles CandleService
	symbols SymbolSource
	l       *applogger.Logger
}

func NewMarketHandler(market MarketService, candles CandleService, symbols SymbolSource, l *applogger.Logger) *MarketHandler {
	return &MarketHandler{market: market, candles: candles, symbols: symbols, l: l}
}

// Market serves the filtered, sorted table as JSON or CSV.
func (h *MarketHandler) Market(c echo.Context) error {
	req := &models.MarketRequest{}
	if verr := xhttp.Bind(c, req); verr != nil {
		return xhttp.Invalid(c, verr...)
	}
	res, err := h.market.List(c.Request().Context(), usecase.MarketQuery{
		Q:     req.Q,
		Sort:  req.Sort,
		Order: req.Order,
		Limit: req.Limit,
	})
	if err != nil {
		return fail(c, h.l, "market list", err)
	}

	if req.Format == "csv" {
		rows := res.Rows
		if rows == nil {
			rows = []models.MarketRow{}
		}
		b, err := gocsv.MarshalBytes(&rows)
		if err != nil {
			return fail(c, h.l, "market csv", err)
		}
		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="market.csv"`)
		return c.Blob(http.StatusOK, "text/csv; charset=utf-8", b)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	return xhttp.OK(c, res)
}

func (h *MarketHandler) Symbols(c echo.Context) error {
	syms := h.symbols.Symbols()
	return xhttp.List(c, syms, int64(len(syms)))
}

func (h *MarketHandler) Snapshot(c echo.Context) error {
	sym, err := symbolParam(c)
	if err != nil {
		return fail(c, h.l, "snapshot", err)
	}
	row, err := h.symbols.Snapshot(sym)
	if err != nil {
		return fail(c, h.l, "snapshot", err)
	}
	return xhttp.OK(c, row)
}

func (h *MarketHandler) Candles(c echo.Context) error {
	req := &models.CandlesRequest{}
	if verr := xhttp.Bind(c, req); verr != nil {
		return xhttp.Invalid(c, verr...)
	}
	sym, err := models.ParseSymbol(unescape(req.Symbol))
	if err != nil {
		return fail(c, h.l, "candles", err)
	}

	p := usecase.GetCandlesParams{
		Symbol:    sym.String(),
		Timeframe: domrepo.Timeframe(req.TF),
		Limit:     req.Limit,
	}
	for name, raw := range map[string]string{"from": req.From, "to": req.To} {
		if raw == "" {
			continue
		}
		t, ok := util.ParseTime(raw, nil)
		if !ok {
			return xhttp.Invalid(c, xhttp.ValidationError{
				Code:    "ERR_TIME",
				Field:   name,
				Message: fmt.Sprintf("%s must be RFC3339, YYYY-MM-DD or unix time", name),
			})
		}
		if name == "from" {
			p.From = t
		} else {
			p.To = t
		}
	}

	res, err := h.candles.GetCandles(c.Request().Context(), p)
	if err != nil {
		return fail(c, h.l, "candles", err)
	}
	return xhttp.OK(c, res)
}

func (h *MarketHandler) Indicators(c echo.Context) error {
	sym, err := symbolParam(c)
	if err != nil {
		return fail(c, h.l, "indicators", err)
	}
	set, err := h.symbols.Indicators(sym)
	if err != nil {
		return fail(c, h.l, "indicators", err)
	}
	return xhttp.OK(c, set)
}

func (h *MarketHandler) Score(c echo.Context) error {
	sym, err := symbolParam(c)
	if err != nil {
		return fail(c, h.l, "score", err)
	}
	sc, err := h.symbols.Score(sym)
	if err != nil {
		return fail(c, h.l, "score", err)
	}
	return xhttp.OK(c, sc)
}

func symbolParam(c echo.Context) (string, error) {
	sym, err := models.ParseSymbol(unescape(c.Param("symbol")))
	if err != nil {
		return "", err
	}
	return sym.String(), nil
}

// unescape undoes percent-encoding of ':' that some clients apply.
func unescape(s string) string {
	if u, err := url.PathUnescape(s); err == nil {
		return u
	}
	return s
}

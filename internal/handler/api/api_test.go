package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockPulse/internal/domain/models"
	"StockPulse/internal/usecase"
	"StockPulse/pkg/events"
	xhttp "StockPulse/pkg/http"
	applogger "StockPulse/pkg/logger"
)

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type fakeSession struct {
	mu  sync.Mutex
	st  models.SessionStatus
	err error
}

func (f *fakeSession) LoginURL(state string) string {
	return "https://broker.test/auth?state=" + state
}

func (f *fakeSession) Connect(_ context.Context, code string) (models.SessionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return models.SessionStatus{}, f.err
	}
	f.st = models.SessionStatus{Authenticated: true, Broker: "fyers", ExpiresIn: 3600}
	return f.st, nil
}

func (f *fakeSession) Refresh(context.Context) (models.SessionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.st.Authenticated {
		return models.SessionStatus{}, usecase.ErrNotAuthenticated
	}
	return f.st, f.err
}

func (f *fakeSession) Disconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st = models.SessionStatus{}
	return nil
}

func (f *fakeSession) Status() models.SessionStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st
}

type fakeCollection struct {
	startErr error
	state    models.CollectionState
}

func (f *fakeCollection) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.state = models.CollectionCollecting
	return nil
}

func (f *fakeCollection) Stop(context.Context) error {
	f.state = models.CollectionIdle
	return nil
}

func (f *fakeCollection) Status() models.CollectionStatus {
	if f.state == "" {
		return models.CollectionStatus{State: models.CollectionIdle}
	}
	return models.CollectionStatus{State: f.state}
}

type staticRows []models.MarketRow

func (s staticRows) Rows() []models.MarketRow {
	return append([]models.MarketRow(nil), s...)
}

type fakeSymbols struct{}

func (fakeSymbols) Symbols() []string { return []string{"NSE:INFY-EQ", "NSE:SBIN-EQ"} }

func (fakeSymbols) Snapshot(symbol string) (models.MarketRow, error) {
	if symbol != "NSE:SBIN-EQ" {
		return models.MarketRow{}, usecase.ErrUnknownSymbol
	}
	return models.MarketRow{Symbol: symbol, LTP: 612.5}, nil
}

func (fakeSymbols) Indicators(symbol string) (models.IndicatorSet, error) {
	if symbol == "NSE:INFY-EQ" {
		return models.IndicatorSet{}, usecase.ErrNoBars
	}
	return models.IndicatorSet{Symbol: symbol, RSI: 55}, nil
}

func (fakeSymbols) Score(symbol string) (models.Score, error) {
	if symbol != "NSE:SBIN-EQ" {
		return models.Score{}, usecase.ErrUnknownSymbol
	}
	return models.Score{Symbol: symbol, Value: 4.2, Signal: models.SignalBullish}, nil
}

type fakeCandles struct {
	got usecase.GetCandlesParams
	err error
}

func (f *fakeCandles) GetCandles(_ context.Context, p usecase.GetCandlesParams) (*usecase.GetCandlesResult, error) {
	f.got = p
	if f.err != nil {
		return nil, f.err
	}
	return &usecase.GetCandlesResult{Symbol: p.Symbol, Timeframe: string(p.Timeframe)}, nil
}

type fixture struct {
	e       *echo.Echo
	session *fakeSession
	coll    *fakeCollection
	candles *fakeCandles
}

func newFixture(t *testing.T, opts ...xhttp.ServerOption) *fixture {
	t.Helper()
	l := applogger.Nop()
	f := &fixture{session: &fakeSession{}, coll: &fakeCollection{}, candles: &fakeCandles{}}
	rows := staticRows{
		{Symbol: "NSE:TCS-EQ", LTP: 3500, Score: 2.5},
		{Symbol: "NSE:SBIN-EQ", LTP: 612.5, Score: 6.1},
	}
	router := &Router{
		Health:     NewHealthHandler("memory", f.session.Status, f.coll.Status, nil),
		Session:    NewSessionHandler(f.session, l),
		Collection: NewCollectionHandler(f.coll, l),
		Market:     NewMarketHandler(usecase.NewMarketOverviewUseCase(rows, nil, 0, l), f.candles, fakeSymbols{}, l),
	}
	reg := prometheus.NewRegistry()
	opts = append([]xhttp.ServerOption{xhttp.WithMetrics(reg, reg)}, opts...)
	f.e = xhttp.NewServer(router, l, opts...).Echo()
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestSessionEndpoints(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodGet, "/api/session", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"authenticated":false`)

	rec, env = f.do(t, http.MethodGet, "/api/session/login-url?state=abc", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), "state=abc")

	rec, _ = f.do(t, http.MethodPost, "/api/session", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = f.do(t, http.MethodPost, "/api/session", `{"auth_code":"code-1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"authenticated":true`)

	rec, _ = f.do(t, http.MethodPost, "/api/session/refresh", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodDelete, "/api/session", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = f.do(t, http.MethodDelete, "/api/session", "")
	assert.Equal(t, http.StatusOK, rec.Code, "disconnect is idempotent")

	rec, env = f.do(t, http.MethodPost, "/api/session/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, http.StatusUnauthorized, env.Status)
}

func TestCollectionErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"ok", nil, http.StatusOK},
		{"no session", usecase.ErrNotAuthenticated, http.StatusUnauthorized},
		{"expired", usecase.ErrSessionExpired, http.StatusUnauthorized},
		{"running", usecase.ErrAlreadyCollecting, http.StatusConflict},
		{"too many symbols", usecase.ErrUniverseTooLarge, http.StatusBadRequest},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.coll.startErr = tc.err
			rec, env := f.do(t, http.MethodPost, "/api/collection/start", "")
			assert.Equal(t, tc.code, rec.Code)
			assert.Equal(t, tc.code, env.Status)
		})
	}
}

func TestCollectionStartStop(t *testing.T) {
	f := newFixture(t)

	_, env := f.do(t, http.MethodPost, "/api/collection/start", "")
	assert.Contains(t, string(env.Data), `"state":"collecting"`)

	_, env = f.do(t, http.MethodPost, "/api/collection/stop", "")
	assert.Contains(t, string(env.Data), `"state":"idle"`)

	rec, _ := f.do(t, http.MethodPost, "/api/collection/stop", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMarketJSON(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodGet, "/api/market?q=sbin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var res usecase.MarketResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "NSE:SBIN-EQ", res.Rows[0].Symbol)

	_, env = f.do(t, http.MethodGet, "/api/market?sort=ltp&order=asc", "")
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "NSE:SBIN-EQ", res.Rows[0].Symbol)
}

func TestMarketValidation(t *testing.T) {
	f := newFixture(t)
	rec, env := f.do(t, http.MethodGet, "/api/market?sort=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, string(env.Data), "ERR_ONEOF")

	rec, _ = f.do(t, http.MethodGet, "/api/market?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarketCSV(t *testing.T) {
	f := newFixture(t)
	rec, _ := f.do(t, http.MethodGet, "/api/market?format=csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), "text/csv"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "symbol,ltp,"))
	assert.True(t, strings.HasPrefix(lines[1], "NSE:SBIN-EQ,"), "score desc by default")
}

func TestSymbolEndpoints(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodGet, "/api/symbols", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"total":2`)

	rec, env = f.do(t, http.MethodGet, "/api/symbols/nse:sbin-eq/score", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"value":4.2`)

	rec, _ = f.do(t, http.MethodGet, "/api/symbols/NSE%3ASBIN-EQ", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/symbols/NSE:TCS-EQ/score", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/symbols/NSE:INFY-EQ/indicators", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/symbols/SBIN/score", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCandlesParams(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodGet, "/api/symbols/NSE:SBIN-EQ/candles?tf=15m&limit=10&from=2024-06-10&to=1718100000", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "NSE:SBIN-EQ", f.candles.got.Symbol)
	assert.Equal(t, "15m", string(f.candles.got.Timeframe))
	assert.Equal(t, 10, f.candles.got.Limit)
	assert.Equal(t, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), f.candles.got.From.UTC())
	assert.Equal(t, int64(1718100000), f.candles.got.To.Unix())

	rec, _ = f.do(t, http.MethodGet, "/api/symbols/NSE:SBIN-EQ/candles", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 75, f.candles.got.Limit)
	assert.Equal(t, "5m", string(f.candles.got.Timeframe))

	rec, _ = f.do(t, http.MethodGet, "/api/symbols/NSE:SBIN-EQ/candles?from=soon", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/symbols/NSE:SBIN-EQ/candles?tf=2h", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.candles.err = usecase.ErrUnsupportedTimeframe
	rec, _ = f.do(t, http.MethodGet, "/api/symbols/NSE:SBIN-EQ/candles?tf=1m", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	l := applogger.Nop()
	sess := &fakeSession{}
	coll := &fakeCollection{}
	router := &Router{Health: NewHealthHandler("clickhouse", sess.Status, coll.Status, map[string]HealthCheck{
		"clickhouse": func(context.Context) error { return errors.New("connection refused") },
	})}
	reg := prometheus.NewRegistry()
	e := xhttp.NewServer(router, l, xhttp.WithMetrics(reg, reg)).Echo()

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, xhttp.WithRateLimit(1, 2))

	for i := 0; i < 2; i++ {
		rec, _ := f.do(t, http.MethodGet, "/api/session", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec, env := f.do(t, http.MethodGet, "/api/session", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, http.StatusTooManyRequests, env.Status)

	rec, _ = f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code, "metrics are not rate limited")
}

func TestStreamPushesBusEvents(t *testing.T) {
	bus := events.New()
	hub := NewStreamHub(bus, applogger.Nop(), WithStreamSnapshot(func() []events.Event {
		return []events.Event{{Type: events.TopicCollectionStatus, Data: models.CollectionStatus{State: models.CollectionIdle}}}
	}))
	require.NoError(t, hub.Start())
	defer hub.Close()

	reg := prometheus.NewRegistry()
	e := xhttp.NewServer(&Router{Stream: hub}, applogger.Nop(), xhttp.WithMetrics(reg, reg)).Echo()
	srv := httptest.NewServer(e)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/stream", nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ev events.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, events.TopicCollectionStatus, ev.Type)

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	bus.Publish(events.TopicScoreUpdated, models.Score{Symbol: "NSE:SBIN-EQ", Value: 3.3})

	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, events.TopicScoreUpdated, ev.Type)
	data, _ := json.Marshal(ev.Data)
	assert.Contains(t, string(data), `"value":3.3`)

	hub.Close()
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

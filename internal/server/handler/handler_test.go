package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knoxfield/regimebot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type stubRegimeSource struct {
	out         domain.RegimeOutput
	transitions []domain.RegimeTransition
}

func (s *stubRegimeSource) Current() domain.RegimeOutput               { return s.out }
func (s *stubRegimeSource) Transitions() []domain.RegimeTransition     { return s.transitions }
func (s *stubRegimeSource) DXYTrend(time.Time) domain.TrendReading     { return domain.TrendReading{} }
func (s *stubRegimeSource) BTCDominanceTrend(time.Time) domain.TrendReading {
	return domain.TrendReading{}
}

type stubCandidateSource struct {
	record domain.CandidateRecord
	ok     bool
}

func (s *stubCandidateSource) LastRecord() (domain.CandidateRecord, bool) {
	return s.record, s.ok
}

type stubTradeManager struct {
	open    []domain.Position
	closed  []domain.Position
	dryRun  bool
	closeID string
}

func (s *stubTradeManager) OpenPositions() []domain.Position { return s.open }
func (s *stubTradeManager) ClosedPositions(limit int) []domain.Position {
	if limit > 0 && limit < len(s.closed) {
		return s.closed[:limit]
	}
	return s.closed
}
func (s *stubTradeManager) CloseManual(ctx context.Context, id string, price float64, reason string) error {
	for _, p := range s.open {
		if p.ID == id {
			s.closeID = id
			return nil
		}
	}
	return domain.ErrNotFound
}
func (s *stubTradeManager) Account() domain.AccountState {
	return domain.AccountState{Balance: 10000, DayStartBalance: 10000}
}
func (s *stubTradeManager) Stats() domain.TradeStats { return domain.TradeStats{} }
func (s *stubTradeManager) SetDryRun(dry bool)       { s.dryRun = dry }
func (s *stubTradeManager) DryRun() bool             { return s.dryRun }

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGetRegime(t *testing.T) {
	src := &stubRegimeSource{out: domain.RegimeOutput{
		State:       domain.RegimeRiskOn,
		Confidence:  0.72,
		Permissions: domain.PermissionsFor(domain.RegimeRiskOn),
	}}
	h := NewRegimeHandler(src, nil, testLogger())

	rec := httptest.NewRecorder()
	h.GetRegime(rec, httptest.NewRequest(http.MethodGet, "/api/regime", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "RISK_ON", body["state"])
	assert.InDelta(t, 0.72, body["confidence"].(float64), 1e-9)
}

func TestListTransitionsNewestFirst(t *testing.T) {
	src := &stubRegimeSource{transitions: []domain.RegimeTransition{
		{From: domain.RegimeChop, To: domain.RegimeRiskOn},
		{From: domain.RegimeRiskOn, To: domain.RegimeChop},
	}}
	h := NewRegimeHandler(src, nil, testLogger())

	rec := httptest.NewRecorder()
	h.ListTransitions(rec, httptest.NewRequest(http.MethodGet, "/api/regime/transitions?limit=1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	transitions := body["transitions"].([]any)
	require.Len(t, transitions, 1)
	first := transitions[0].(map[string]any)
	assert.Equal(t, "RISK_ON", first["From"])
}

func TestGetSignalNoCandidate(t *testing.T) {
	h := NewSignalHandler(&stubCandidateSource{}, nil, testLogger())

	rec := httptest.NewRecorder()
	h.GetSignal(rec, httptest.NewRequest(http.MethodGet, "/api/signal", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "no_candidate", body["outcome"])
}

func TestGetSignalWithRecord(t *testing.T) {
	src := &stubCandidateSource{
		ok: true,
		record: domain.CandidateRecord{
			Candidate: domain.TradeCandidate{ID: "c1", Symbol: "BTCUSDT"},
			Decision:  domain.SizingDecision{Approved: true, Size: 0.52},
			Outcome:   "opened",
		},
	}
	h := NewSignalHandler(src, nil, testLogger())

	rec := httptest.NewRecorder()
	h.GetSignal(rec, httptest.NewRequest(http.MethodGet, "/api/signal", nil))

	body := decodeBody(t, rec)
	assert.Equal(t, "opened", body["outcome"])
}

func TestClosePositionNotFound(t *testing.T) {
	mgr := &stubTradeManager{}
	h := NewPositionHandler(mgr, nil, nil, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/positions/missing/close", strings.NewReader(`{"price": 50000}`))
	req.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()
	h.ClosePosition(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClosePositionWithExplicitPrice(t *testing.T) {
	mgr := &stubTradeManager{open: []domain.Position{{ID: "p1", Symbol: "BTCUSDT"}}}
	h := NewPositionHandler(mgr, nil, nil, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/positions/p1/close", strings.NewReader(`{"price": 50000}`))
	req.SetPathValue("id", "p1")
	rec := httptest.NewRecorder()
	h.ClosePosition(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "p1", mgr.closeID)
}

func TestClosePositionNoPriceNoFeed(t *testing.T) {
	mgr := &stubTradeManager{open: []domain.Position{{ID: "p1", Symbol: "BTCUSDT"}}}
	h := NewPositionHandler(mgr, nil, nil, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/positions/p1/close", strings.NewReader(""))
	req.SetPathValue("id", "p1")
	rec := httptest.NewRecorder()
	h.ClosePosition(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetTradingMode(t *testing.T) {
	mgr := &stubTradeManager{dryRun: true}
	h := NewAccountHandler(mgr, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/trading/mode", strings.NewReader(`{"dry_run": false}`))
	rec := httptest.NewRecorder()
	h.SetTradingMode(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, mgr.dryRun)

	// Missing field is rejected.
	req = httptest.NewRequest(http.MethodPost, "/api/trading/mode", strings.NewReader(`{}`))
	rec = httptest.NewRecorder()
	h.SetTradingMode(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAccount(t *testing.T) {
	mgr := &stubTradeManager{dryRun: true}
	h := NewAccountHandler(mgr, testLogger())

	rec := httptest.NewRecorder()
	h.GetAccount(rec, httptest.NewRequest(http.MethodGet, "/api/account", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, 10000.0, body["balance"])
	assert.Equal(t, true, body["dry_run"])
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/surebet/internal/arbitrage"
	"github.com/alanyoungcy/surebet/internal/domain"
	"github.com/alanyoungcy/surebet/internal/extract"
	"github.com/alanyoungcy/surebet/internal/server/handler"
	"github.com/alanyoungcy/surebet/internal/service"
	"github.com/alanyoungcy/surebet/internal/store/sqlite"
)

type denyAll struct{}

func (denyAll) Allow(context.Context, string, int, time.Duration) (bool, error) { return false, nil }

func newTestServer(t *testing.T, cfg Config, limiter domain.RateLimiter) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "bets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	bets := service.NewBetService(sqlite.NewBetStore(db), sqlite.NewAuditStore(db), nil, service.BetConfig{}, logger)
	slips := service.NewSlipService(extract.NewManual(), nil, nil, logger)

	h := Handlers{
		Health: handler.NewHealthHandler(map[string]handler.Check{"store": db.Ping}, logger),
		Bets:   handler.NewBetHandler(bets, logger),
		OCR:    handler.NewOCRHandler(slips, 1024, logger),
	}
	srv := httptest.NewServer(NewRouter(cfg, h, limiter, logger))
	t.Cleanup(srv.Close)
	return srv
}

func pairBody() map[string]any {
	return map[string]any{
		"betA": map[string]any{
			"bettingHouse": "Betfast", "teamA": "Giulio Zeppieri", "teamB": "Learner Tien",
			"betType": "Over 8.5", "selectedSide": "A", "odds": "2.75", "stake": "150.00", "payout": "412.50",
		},
		"betB": map[string]any{
			"bettingHouse": "Pinnacle", "teamA": "Learner Tien", "teamB": "giulio zeppieri",
			"betType": "Under 8.5", "selectedSide": "B", "odds": "3.20", "stake": "125.00", "payout": "400.00",
		},
		"gameDate": "2025-09-20T14:30:00Z",
	}
}

func do(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type createResp struct {
	Success bool         `json:"success"`
	Bets    []domain.Bet `json:"bets"`
	PairID  string       `json:"pairId"`
}

type errResp struct {
	Error      string                `json:"error"`
	Violations []arbitrage.Violation `json:"violations"`
}

func TestBetLifecycle(t *testing.T) {
	srv := newTestServer(t, Config{}, nil)

	var created createResp
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, srv.URL+"/api/bets", pairBody(), &created))
	require.True(t, created.Success)
	require.Len(t, created.Bets, 2)
	a, b := created.Bets[0], created.Bets[1]
	assert.Equal(t, created.PairID, a.PairID)
	assert.Equal(t, "45.45", b.ProfitPercentage.String())

	var won domain.Bet
	require.Equal(t, http.StatusOK, do(t, http.MethodPatch, srv.URL+"/api/bets/"+a.ID+"/status", map[string]string{"status": "won"}, &won))
	assert.Equal(t, domain.BetStatusWon, won.Status)

	var sib domain.Bet
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/api/bets/"+b.ID, nil, &sib))
	assert.Equal(t, domain.BetStatusLost, sib.Status)

	var conflict errResp
	assert.Equal(t, http.StatusConflict, do(t, http.MethodPatch, srv.URL+"/api/bets/"+b.ID+"/status", map[string]string{"status": "won"}, &conflict))
	assert.NotEmpty(t, conflict.Error)

	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPatch, srv.URL+"/api/bets/"+a.ID+"/status", map[string]string{"status": "void"}, nil))
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodPatch, srv.URL+"/api/bets/nope/status", map[string]string{"status": "won"}, nil))
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, srv.URL+"/api/bets/nope", nil, nil))

	var lost []domain.Bet
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/api/bets?status=lost", nil, &lost))
	require.Len(t, lost, 1)
	assert.Equal(t, b.ID, lost[0].ID)

	var sum arbitrage.Summary
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/api/bets/summary", nil, &sum))
	assert.Equal(t, 2, sum.TotalBets)
	assert.Equal(t, "137.5", sum.NetProfit.String())

	var view service.PairView
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/api/pairs/"+created.PairID, nil, &view))
	assert.Equal(t, a.ID, view.A.ID)
	assert.Equal(t, "275", view.Metrics.TotalStake.String())

	var history []domain.AuditEntry
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/api/pairs/"+created.PairID+"/history", nil, &history))
	require.Len(t, history, 2)
	assert.Equal(t, "bet.settled", history[1].Event)
}

func TestCreatePair_Validation(t *testing.T) {
	srv := newTestServer(t, Config{}, nil)

	body := pairBody()
	body["betB"].(map[string]any)["selectedSide"] = "A"
	var resp errResp
	require.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, srv.URL+"/api/bets", body, &resp))
	assert.Equal(t, "validation failed", resp.Error)
	require.Len(t, resp.Violations, 1)
	assert.Equal(t, arbitrage.CodeSideConflict, resp.Violations[0].Code)

	var all []domain.Bet
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/api/bets", nil, &all))
	assert.Empty(t, all)

	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodGet, srv.URL+"/api/bets?sort=colour", nil, nil))
}

func upload(t *testing.T, url, contentType string, data []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="image"; filename="slip"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(url, mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestOCRProcess(t *testing.T) {
	srv := newTestServer(t, Config{}, nil)
	url := srv.URL + "/api/ocr/process"

	resp := upload(t, url, "image/png", []byte("\x89PNG\r\n\x1a\nslip"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res service.SlipResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, "manual", res.Extractor)
	assert.False(t, res.IsVerified)
	assert.Equal(t, domain.SideB, res.BetB.SelectedSide)

	assert.Equal(t, http.StatusBadRequest, upload(t, url, "text/plain", []byte("hello")).StatusCode)
	assert.Equal(t, http.StatusRequestEntityTooLarge, upload(t, url, "image/png", bytes.Repeat([]byte{1}, 4096)).StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, srv.URL+"/api/slips/2025/01/02/nothing.png", nil, nil))

	resp, err := http.Post(url, "application/json", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOCRProcess_RateLimited(t *testing.T) {
	srv := newTestServer(t, Config{OCRRateLimit: 1, OCRRateWindow: time.Minute}, denyAll{})
	resp := upload(t, srv.URL+"/api/ocr/process", "image/png", []byte("img"))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestAuthAndHealth(t *testing.T) {
	srv := newTestServer(t, Config{APIKey: "secret"}, nil)

	var health map[string]any
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/api/health", nil, &health))
	assert.Equal(t, "ok", health["status"])

	assert.Equal(t, http.StatusUnauthorized, do(t, http.MethodGet, srv.URL+"/api/bets", nil, nil))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/bets", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

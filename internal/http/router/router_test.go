package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/barter-backend/internal/config"
	"github.com/ignatzorin/barter-backend/internal/domain/entity"
	"github.com/ignatzorin/barter-backend/internal/domain/valueobject"
	"github.com/ignatzorin/barter-backend/internal/http/router"
	"github.com/ignatzorin/barter-backend/internal/infrastructure/memory"
	"github.com/ignatzorin/barter-backend/internal/infrastructure/metrics"
	"github.com/ignatzorin/barter-backend/internal/interface/http/handler"
	"github.com/ignatzorin/barter-backend/internal/logger"
	"github.com/ignatzorin/barter-backend/internal/service"
	"github.com/ignatzorin/barter-backend/internal/usecase/chain"
	"github.com/ignatzorin/barter-backend/internal/usecase/interest"
	"github.com/ignatzorin/barter-backend/internal/usecase/multiswap"
	"github.com/ignatzorin/barter-backend/internal/usecase/swap"
)

func init() {
	gin.SetMode(gin.TestMode)
	valueobject.SetCodeHashCost(4)
	logger.Silence()
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

type swapView struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`
	QRCode string    `json:"qr_code"`
}

type testServer struct {
	t      *testing.T
	engine *gin.Engine
	store  *memory.Store
	tokens *service.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.NewStore()
	tokens := service.NewTokenManager("test-secret-which-is-long-enough-123", time.Hour)
	reg := prometheus.NewRegistry()
	swapMetrics := metrics.NewSwapMetrics(reg)

	swapDeps := swap.Deps{
		Swaps:    store.SwapRequests(),
		Disputes: store.Disputes(),
		Products: store.Products(),
		Ledger:   store.Ledger(),
		Tx:       store,
		Metrics:  swapMetrics,
		Policy:   swap.DefaultPolicy(),
	}
	engine := chain.NewEngine(store.Interests(), store.Products(), swapMetrics, chain.Config{})
	msDeps := multiswap.Deps{
		MultiSwaps: store.MultiSwaps(),
		Engine:     engine,
		Tx:         store,
		Metrics:    swapMetrics,
	}

	cfg := &config.Config{
		Env:             "test",
		AllowedOrigins:  []string{"http://localhost:3000"},
		RateLimitLimit:  1000,
		RateLimitPeriod: time.Minute,
	}
	r := router.SetupRouter(cfg, router.Handlers{
		Swap:    handler.NewSwapHandler(swapDeps),
		Dispute: handler.NewDisputeHandler(swapDeps),
		Chain:   handler.NewChainHandler(engine, msDeps),
		Interest: handler.NewInterestHandler(
			interest.NewExpressInterestUseCase(store.Interests(), store.Products(), nil),
			interest.NewWithdrawInterestUseCase(store.Interests()),
		),
		Health: handler.NewHealthHandler(nil, config.StorageDriverMemory),
	}, router.Options{
		Tokens:      tokens,
		Gatherer:    reg,
		HTTPMetrics: metrics.NewHTTPMetrics(reg),
	})

	return &testServer{t: t, engine: r, store: store, tokens: tokens}
}

func (s *testServer) product(owner uuid.UUID, value int64) *entity.Product {
	now := time.Now()
	p := &entity.Product{
		ID:        uuid.New(),
		OwnerID:   owner,
		Title:     "Палатка",
		Value:     valueobject.Valor(value),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.store.Products().Save(context.Background(), p)
	return p
}

func (s *testServer) token(userID uuid.UUID, role string) string {
	s.t.Helper()
	tok, _, err := s.tokens.Issue(userID, role)
	require.NoError(s.t, err)
	return tok
}

func (s *testServer) do(method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func decodeSwap(t *testing.T, env envelope) swapView {
	t.Helper()
	var v swapView
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestRouter_RequiresToken(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(http.MethodGet, "/api/swap-requests/my", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	w, _ = s.do(http.MethodGet, "/api/swap-requests/my", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"storage":"memory"`)

	w, _ = s.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestRouter_SwapNegotiationFlow(t *testing.T) {
	s := newTestServer(t)
	owner, requester := uuid.New(), uuid.New()
	ownerTok, requesterTok := s.token(owner, service.RoleUser), s.token(requester, service.RoleUser)
	p := s.product(owner, 100)

	w, env := s.do(http.MethodPost, "/api/swap-requests", requesterTok, map[string]any{
		"product_id": p.ID.String(),
		"message":    "Меняю на рюкзак",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeSwap(t, env)
	assert.Equal(t, "pending", created.Status)
	base := "/api/swap-requests/" + created.ID.String()

	// заявитель не может принять собственную заявку
	w, env = s.do(http.MethodPut, base+"/status", requesterTok, map[string]string{"status": "accepted"})
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_TRANSITION", env.Error.Code)
	assert.Equal(t, "pending", env.Error.Details["current_status"])

	w, env = s.do(http.MethodPut, base+"/status", ownerTok, map[string]string{"status": "accepted"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "accepted", decodeSwap(t, env).Status)

	w, _ = s.do(http.MethodPost, base+"/delivery", ownerTok, map[string]any{
		"delivery_type":   "face_to_face",
		"custom_location": "Парк Горького, главный вход",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env = s.do(http.MethodPost, base+"/delivery/accept", requesterTok, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	agreed := decodeSwap(t, env)
	assert.Equal(t, "qr_generated", agreed.Status)
	assert.Empty(t, agreed.QRCode, "заявитель не видит QR")

	w, env = s.do(http.MethodGet, base, ownerTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decodeSwap(t, env).QRCode, "владелец видит QR")

	// посторонний не видит заявку
	w, _ = s.do(http.MethodGet, base, s.token(uuid.New(), service.RoleUser), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = s.do(http.MethodGet, base+"/history", requesterTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history []struct {
		To string `json:"to"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &history))
	require.Len(t, history, 4)
	assert.Equal(t, "qr_generated", history[3].To)

	w, env = s.do(http.MethodGet, "/api/swap-requests/my?role=owner&status=qr_generated", ownerTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var mine []swapView
	require.NoError(t, json.Unmarshal(env.Data, &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, created.ID, mine[0].ID)
}

func TestRouter_InvalidIDAndBody(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(uuid.New(), service.RoleUser)

	w, env := s.do(http.MethodGet, "/api/swap-requests/not-a-uuid", tok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "BAD_REQUEST", env.Error.Code)

	w, _ = s.do(http.MethodPost, "/api/swap-requests", tok, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(http.MethodGet, "/api/swap-requests/"+uuid.NewString(), tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_CancelOptionalBody(t *testing.T) {
	s := newTestServer(t)
	owner, requester := uuid.New(), uuid.New()
	requesterTok := s.token(requester, service.RoleUser)
	p := s.product(owner, 100)

	w, env := s.do(http.MethodPost, "/api/swap-requests", requesterTok, map[string]any{"product_id": p.ID.String()})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	base := "/api/swap-requests/" + decodeSwap(t, env).ID.String()

	// причина должна быть строкой
	w, env = s.do(http.MethodPost, base+"/cancel", requesterTok, map[string]any{"reason": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "BAD_REQUEST", env.Error.Code)

	w, env = s.do(http.MethodPost, base+"/cancel", requesterTok, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "cancelled", decodeSwap(t, env).Status)
}

func TestRouter_ResolveDisputeRequiresAdmin(t *testing.T) {
	s := newTestServer(t)
	path := "/api/admin/disputes/" + uuid.NewString() + "/resolve"
	body := map[string]string{"outcome": "full_refund"}

	w, env := s.do(http.MethodPost, path, s.token(uuid.New(), service.RoleUser), body)
	assert.Equal(t, http.StatusForbidden, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	w, _ = s.do(http.MethodPost, path, s.token(uuid.New(), service.RoleAdmin), body)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_InterestsAndOpportunities(t *testing.T) {
	s := newTestServer(t)
	alice, bob := uuid.New(), uuid.New()
	aliceTok, bobTok := s.token(alice, service.RoleUser), s.token(bob, service.RoleUser)
	aliceProduct := s.product(alice, 100)
	bobProduct := s.product(bob, 100)

	w, _ := s.do(http.MethodPut, "/api/products/"+bobProduct.ID.String()+"/interest", aliceTok, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w, _ = s.do(http.MethodPut, "/api/products/"+aliceProduct.ID.String()+"/interest", bobTok, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env := s.do(http.MethodGet, "/api/chains/opportunities?balanced_only=true", aliceTok, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var chains []struct {
		ChainLength     int  `json:"chain_length"`
		IsValueBalanced bool `json:"is_value_balanced"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &chains))
	require.Len(t, chains, 1)
	assert.Equal(t, 2, chains[0].ChainLength)
	assert.True(t, chains[0].IsValueBalanced)

	w, _ = s.do(http.MethodGet, "/api/chains/opportunities?min_score=150", aliceTok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(http.MethodDelete, "/api/products/"+bobProduct.ID.String()+"/interest", aliceTok, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w, env = s.do(http.MethodGet, "/api/chains/opportunities", aliceTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &chains))
	assert.Empty(t, chains)
}

func TestRouter_MultiSwapConfirmation(t *testing.T) {
	s := newTestServer(t)
	alice, bob := uuid.New(), uuid.New()
	aliceTok, bobTok := s.token(alice, service.RoleUser), s.token(bob, service.RoleUser)
	aliceProduct := s.product(alice, 100)
	bobProduct := s.product(bob, 90)

	s.do(http.MethodPut, "/api/products/"+bobProduct.ID.String()+"/interest", aliceTok, nil)
	s.do(http.MethodPut, "/api/products/"+aliceProduct.ID.String()+"/interest", bobTok, nil)

	w, env := s.do(http.MethodPost, "/api/multi-swaps", aliceTok, map[string]any{
		"steps": []map[string]string{
			{"user_id": alice.String(), "gives_product_id": aliceProduct.ID.String()},
			{"user_id": bob.String(), "gives_product_id": bobProduct.ID.String()},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var ms struct {
		ID             uuid.UUID `json:"id"`
		Status         string    `json:"status"`
		ConfirmedCount int       `json:"confirmed_count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &ms))
	assert.Equal(t, "pending", ms.Status)
	base := "/api/multi-swaps/" + ms.ID.String()

	w, env = s.do(http.MethodPost, base+"/confirm", aliceTok, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &ms))
	assert.Equal(t, 1, ms.ConfirmedCount)

	w, env = s.do(http.MethodPost, base+"/confirm", bobTok, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &ms))
	assert.Equal(t, "confirmed", ms.Status)

	w, _ = s.do(http.MethodGet, base, s.token(uuid.New(), service.RoleUser), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = s.do(http.MethodGet, "/api/multi-swaps/my", bobTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []json.RawMessage
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 1)
}

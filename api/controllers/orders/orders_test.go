package orders

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-settlement/api/middleware"
	internalorders "github.com/angelmondragon/storefront-settlement/internal/orders"
	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
)

type stubOrdersService struct {
	internalorders.Service
	create func(ctx context.Context, input internalorders.CreateOrderInput) (*models.Order, error)
	get    func(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	cancel func(ctx context.Context, input internalorders.CancelInput) (*models.Order, error)
}

func (s *stubOrdersService) Create(ctx context.Context, input internalorders.CreateOrderInput) (*models.Order, error) {
	return s.create(ctx, input)
}

func (s *stubOrdersService) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.get(ctx, orderID)
}

func (s *stubOrdersService) Cancel(ctx context.Context, input internalorders.CancelInput) (*models.Order, error) {
	return s.cancel(ctx, input)
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "orders-controller-test", Output: io.Discard})
}

func withRouteParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeData(t *testing.T, body io.Reader) map[string]any {
	t.Helper()
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(body).Decode(&envelope))
	return envelope.Data
}

func TestCreatePassesCallerAndItems(t *testing.T) {
	userID := uuid.New()
	offerID := uuid.New()
	var captured internalorders.CreateOrderInput
	svc := &stubOrdersService{create: func(ctx context.Context, input internalorders.CreateOrderInput) (*models.Order, error) {
		captured = input
		return &models.Order{ID: uuid.New(), UserID: input.UserID, Status: enums.OrderStatusPending, Version: 1}, nil
	}}

	body := `{"items":[{"offer_id":"` + offerID.String() + `","quantity":2}],"shipping_cents":500}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	req = req.WithContext(middleware.WithActor(req.Context(), userID, enums.ActorRoleCustomer, nil))
	resp := httptest.NewRecorder()

	Create(svc, testLogger()).ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code)
	require.Equal(t, userID, captured.UserID)
	require.Len(t, captured.Items, 1)
	require.Equal(t, offerID, captured.Items[0].OfferID)
	require.Equal(t, 2, captured.Items[0].Quantity)
	require.Equal(t, int64(500), captured.ShippingCents)
	require.Equal(t, string(enums.OrderStatusPending), decodeData(t, resp.Body)["status"])
}

func TestCreateRejectsEmptyItems(t *testing.T) {
	svc := &stubOrdersService{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{"items":[]}`))
	req = req.WithContext(middleware.WithActor(req.Context(), uuid.New(), enums.ActorRoleCustomer, nil))
	resp := httptest.NewRecorder()

	Create(svc, testLogger()).ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCreateRejectsOversizedQuantity(t *testing.T) {
	svc := &stubOrdersService{}
	body := `{"items":[{"offer_id":"` + uuid.NewString() + `","quantity":4611686018427387905}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	req = req.WithContext(middleware.WithActor(req.Context(), uuid.New(), enums.ActorRoleCustomer, nil))
	resp := httptest.NewRecorder()

	Create(svc, testLogger()).ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Contains(t, resp.Body.String(), "quantity")
}

func TestDetailHidesOtherCustomersOrders(t *testing.T) {
	owner := uuid.New()
	orderID := uuid.New()
	svc := &stubOrdersService{get: func(ctx context.Context, id uuid.UUID) (*models.Order, error) {
		return &models.Order{ID: id, UserID: owner, Status: enums.OrderStatusPending, Version: 1}, nil
	}}

	cases := []struct {
		name   string
		user   uuid.UUID
		role   enums.ActorRole
		status int
	}{
		{name: "owner", user: owner, role: enums.ActorRoleCustomer, status: http.StatusOK},
		{name: "stranger", user: uuid.New(), role: enums.ActorRoleCustomer, status: http.StatusNotFound},
		{name: "admin", user: uuid.New(), role: enums.ActorRoleAdmin, status: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+orderID.String(), nil)
			req = withRouteParams(req, map[string]string{"orderId": orderID.String()})
			req = req.WithContext(middleware.WithActor(req.Context(), tc.user, tc.role, nil))
			resp := httptest.NewRecorder()

			Detail(svc, testLogger()).ServeHTTP(resp, req)

			require.Equal(t, tc.status, resp.Code)
		})
	}
}

func TestCancelMapsStaleVersion(t *testing.T) {
	orderID := uuid.New()
	userID := uuid.New()
	var captured internalorders.CancelInput
	svc := &stubOrdersService{cancel: func(ctx context.Context, input internalorders.CancelInput) (*models.Order, error) {
		captured = input
		return nil, pkgerrors.New(pkgerrors.CodeConcurrency, "order was modified")
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/cancel", strings.NewReader(`{"version":3}`))
	req = withRouteParams(req, map[string]string{"orderId": orderID.String()})
	req = req.WithContext(middleware.WithActor(req.Context(), userID, enums.ActorRoleCustomer, nil))
	resp := httptest.NewRecorder()

	Cancel(svc, testLogger()).ServeHTTP(resp, req)

	require.Equal(t, http.StatusPreconditionFailed, resp.Code)
	require.Equal(t, orderID, captured.OrderID)
	require.Equal(t, int64(3), captured.Version)
	require.Equal(t, userID, captured.ActorID)
	require.Equal(t, enums.ActorRoleCustomer, captured.ActorRole)
}

func TestCancelRejectsBadOrderID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/nope/cancel", strings.NewReader(`{"version":1}`))
	req = withRouteParams(req, map[string]string{"orderId": "nope"})
	resp := httptest.NewRecorder()

	Cancel(&stubOrdersService{}, testLogger()).ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}

package webhooks

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-settlement/internal/payments"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
)

const testSecret = "whsec_test"

type stubPaymentsService struct {
	payments.Service
	calls    int
	callback func(ctx context.Context, input payments.CallbackInput) (*payments.CallbackResult, error)
}

func (s *stubPaymentsService) HandleCallback(ctx context.Context, input payments.CallbackInput) (*payments.CallbackResult, error) {
	s.calls++
	return s.callback(ctx, input)
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "webhooks-test", Output: io.Discard})
}

func signedRequest(body, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", strings.NewReader(body))
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	return req
}

func TestPaymentCallbackAppliesSignedOutcome(t *testing.T) {
	var captured payments.CallbackInput
	svc := &stubPaymentsService{callback: func(ctx context.Context, input payments.CallbackInput) (*payments.CallbackResult, error) {
		captured = input
		return &payments.CallbackResult{PaymentID: uuid.New(), OrderID: uuid.New(), Status: enums.PaymentStatusCompleted, Applied: true}, nil
	}}
	body := `{"transaction_id":"txn-1","status":"success","reference_number":"ref-9"}`
	resp := httptest.NewRecorder()

	PaymentCallback(svc, testSecret, testLogger()).ServeHTTP(resp, signedRequest(body, Sign([]byte(body), testSecret)))

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "txn-1", captured.TransactionID)
	require.True(t, captured.Success)
	require.Equal(t, "ref-9", *captured.ReferenceNumber)
	require.Contains(t, resp.Body.String(), `"applied":true`)
}

func TestPaymentCallbackRejectsBadSignatures(t *testing.T) {
	body := `{"transaction_id":"txn-1","status":"failed"}`
	cases := map[string]string{
		"missing":   "",
		"malformed": "md5=abc",
		"wrong key": Sign([]byte(body), "other"),
		"tampered":  Sign([]byte(`{"transaction_id":"txn-2","status":"failed"}`), testSecret),
	}
	for name, signature := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &stubPaymentsService{}
			resp := httptest.NewRecorder()

			PaymentCallback(svc, testSecret, testLogger()).ServeHTTP(resp, signedRequest(body, signature))

			require.Equal(t, http.StatusUnauthorized, resp.Code)
			require.Zero(t, svc.calls)
		})
	}
}

func TestPaymentCallbackValidatesStatus(t *testing.T) {
	svc := &stubPaymentsService{}
	body := `{"transaction_id":"txn-1","status":"maybe"}`
	resp := httptest.NewRecorder()

	PaymentCallback(svc, testSecret, testLogger()).ServeHTTP(resp, signedRequest(body, Sign([]byte(body), testSecret)))

	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Zero(t, svc.calls)
}

func TestPaymentCallbackSurfacesTransitionErrors(t *testing.T) {
	svc := &stubPaymentsService{callback: func(ctx context.Context, input payments.CallbackInput) (*payments.CallbackResult, error) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "order is not awaiting payment")
	}}
	body := `{"transaction_id":"txn-1","status":"success"}`
	resp := httptest.NewRecorder()

	PaymentCallback(svc, testSecret, testLogger()).ServeHTTP(resp, signedRequest(body, Sign([]byte(body), testSecret)))

	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}

func TestPaymentCallbackRequiresSecret(t *testing.T) {
	resp := httptest.NewRecorder()
	PaymentCallback(&stubPaymentsService{}, "", testLogger()).ServeHTTP(resp, signedRequest(`{}`, "sha256=00"))
	require.Equal(t, http.StatusInternalServerError, resp.Code)
}

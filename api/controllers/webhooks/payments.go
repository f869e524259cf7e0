package webhooks

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-settlement/api/responses"
	"github.com/angelmondragon/storefront-settlement/api/validators"
	"github.com/angelmondragon/storefront-settlement/internal/payments"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
)

const (
	SignatureHeader = "X-Signature"
	signaturePrefix = "sha256="
	maxPayloadBytes = 64 << 10
)

type paymentCallbackRequest struct {
	TransactionID   string  `json:"transaction_id" validate:"required,max=128"`
	Status          string  `json:"status" validate:"required,oneof=success failed"`
	ReferenceNumber *string `json:"reference_number" validate:"omitempty,max=128"`
	FailureReason   *string `json:"failure_reason" validate:"omitempty,max=500"`
}

// PaymentCallback applies a signed gateway outcome. Replays answer 200 with
// applied=false.
func PaymentCallback(svc payments.Service, secret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if secret == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment webhook secret not configured"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}
		if err := VerifySignature(payload, r.Header.Get(SignatureHeader), secret); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(payload))
		var body paymentCallbackRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.HandleCallback(ctx, payments.CallbackInput{
			TransactionID:   body.TransactionID,
			Success:         body.Status == "success",
			ReferenceNumber: body.ReferenceNumber,
			FailureReason:   body.FailureReason,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		ctx = logg.WithFields(ctx, map[string]any{
			"payment_id": result.PaymentID.String(),
			"applied":    result.Applied,
		})
		ctx = logg.WithOrderID(ctx, result.OrderID.String())
		logg.Info(ctx, "payment callback handled")
		responses.WriteSuccess(w, result)
	}
}

// Sign returns the header value for payload under secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks an HMAC-SHA256 signature header over the raw body.
func VerifySignature(payload []byte, header, secret string) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "payment signature missing")
	}
	if !strings.HasPrefix(header, signaturePrefix) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "payment signature malformed")
	}
	if !hmac.Equal([]byte(header), []byte(Sign(payload, secret))) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "payment signature invalid")
	}
	return nil
}

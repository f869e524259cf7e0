package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-settlement/pkg/enums"
)

// AccessTokenPayload is the identity carried into a minted token.
type AccessTokenPayload struct {
	UserID   uuid.UUID
	Role     enums.ActorRole
	VendorID *uuid.UUID
	JTI      string
}

// AccessTokenClaims is the typed JWT accepted by the API. VendorID is set for
// vendor staff and names the vendor whose wallet they act on.
type AccessTokenClaims struct {
	UserID   uuid.UUID       `json:"user_id"`
	Role     enums.ActorRole `json:"role"`
	VendorID *uuid.UUID      `json:"vendor_id,omitempty"`
	jwt.RegisteredClaims
}

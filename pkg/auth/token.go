package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-settlement/pkg/config"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
)

var jwtSigningMethod = jwt.SigningMethodHS256

// MintAccessToken signs a token for payload that expires cfg.TTL after now.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", errors.New("jwt secret is required")
	case cfg.Issuer == "":
		return "", errors.New("jwt issuer is required")
	case cfg.TTL <= 0:
		return "", errors.New("jwt ttl must be positive")
	case payload.UserID == uuid.Nil:
		return "", errors.New("user id is required")
	}
	if err := checkRole(payload.Role, payload.VendorID); err != nil {
		return "", err
	}

	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	claims := AccessTokenClaims{
		UserID:   payload.UserID,
		Role:     payload.Role,
		VendorID: payload.VendorID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   payload.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
			ID:        jti,
		},
	}

	signed, err := jwt.NewWithClaims(jwtSigningMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken validates signature, issuer and expiry and returns the
// typed claims.
func ParseAccessToken(cfg config.JWTConfig, tokenString string) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}

	claims := &AccessTokenClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (any, error) {
			if token.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		},
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if claims.UserID == uuid.Nil {
		return nil, errors.New("token missing user id")
	}
	if err := checkRole(claims.Role, claims.VendorID); err != nil {
		return nil, err
	}
	return claims, nil
}

func checkRole(role enums.ActorRole, vendorID *uuid.UUID) error {
	if !role.IsValid() || role == enums.ActorRoleSystem {
		return fmt.Errorf("invalid actor role %q", role)
	}
	if role == enums.ActorRoleVendor && (vendorID == nil || *vendorID == uuid.Nil) {
		return errors.New("vendor tokens must carry a vendor id")
	}
	return nil
}

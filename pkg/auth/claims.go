package auth

import (
	"github.com/angelmondragon/vowvendors-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.Role
	JTI    string
}

// AccessTokenClaims represents the typed JWT issued to operators and the scheduler.
type AccessTokenClaims struct {
	UserID uuid.UUID  `json:"user_id"`
	Role   enums.Role `json:"role"`
	jwt.RegisteredClaims
}

package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents operator roles carried in access tokens.
type UserRole string

const (
	RolePlatformAdmin UserRole = "platform_admin"
	RoleStationAdmin  UserRole = "station_admin"
)

// JWTClaims represents the JWT payload for operator access tokens.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	Username string   `json:"username"`
	jwt.RegisteredClaims
}

package models

import "github.com/golang-jwt/jwt/v5"

// UserInfo describes the authenticated user in responses and presence events.
type UserInfo struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	Role     UserRole `json:"role"`
}

// JWTClaims represents the JWT payload of access tokens issued by the identity service.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// Info projects the claims onto the public user shape.
func (c *JWTClaims) Info() UserInfo {
	return UserInfo{ID: c.UserID, Email: c.Email, FullName: c.FullName, Role: c.Role}
}

// DisplayName prefers the full name and falls back to email or id.
func (c *JWTClaims) DisplayName() string {
	switch {
	case c.FullName != "":
		return c.FullName
	case c.Email != "":
		return c.Email
	}
	return c.UserID
}

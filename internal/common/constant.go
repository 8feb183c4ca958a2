package common

// AuthorizationHeaderName carries "Bearer <token>" on inbound requests.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix is the scheme prefix expected in the Authorization header.
const BearerPrefix = "Bearer "

// Token kinds stored in the "type" claim.
const (
	TokenKindAccess  = "access"
	TokenKindRefresh = "refresh"
)

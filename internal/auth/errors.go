package auth

import "errors"

// 认证相关错误定义
var (
	// 平台签名认证错误
	ErrMissingAuthHeaders = errors.New("missing authentication headers")
	ErrInvalidPlatform    = errors.New("invalid platform")
	ErrPlatformDisabled   = errors.New("platform is disabled")
	ErrTimestampExpired   = errors.New("timestamp expired")
	ErrNonceReused        = errors.New("nonce already used")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrIPNotAllowed       = errors.New("ip address not allowed")

	// JWT Token 错误
	ErrMissingToken         = errors.New("missing authorization token")
	ErrInvalidTokenFormat   = errors.New("invalid token format")
	ErrInvalidToken         = errors.New("invalid token")
	ErrTokenExpired         = errors.New("token expired")
	ErrTokenRevoked         = errors.New("token revoked")
	ErrInvalidSigningMethod = errors.New("invalid signing method")
)

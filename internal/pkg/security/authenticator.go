package security

import (
	"Courier/internal/pkg/consts"
	"Courier/internal/pkg/redis"
	"context"
	"errors"
	"fmt"
)

// Authenticator 身份校验协作方, 返回凭据对应的用户 ID
type Authenticator interface {
	AuthenticateConnection(ctx context.Context, credential string) (string, error)
}

// TokenAuthenticator 本地校验 JWT 并检查注销黑名单
type TokenAuthenticator struct {
	tokens    *TokenManager
	blacklist *redis.Cache
}

// NewTokenAuthenticator blacklist 为空时跳过黑名单检查
func NewTokenAuthenticator(tokens *TokenManager, blacklist *redis.Cache) *TokenAuthenticator {
	return &TokenAuthenticator{tokens: tokens, blacklist: blacklist}
}

func (s *TokenAuthenticator) AuthenticateConnection(ctx context.Context, credential string) (string, error) {
	signature, err := ExtractSignature(credential)
	if err != nil {
		return "", err
	}

	if s.blacklist != nil {
		revoked, err := s.blacklist.Exists(ctx, consts.TokenBlacklistKey+signature)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			return "", fmt.Errorf("check token blacklist: %w", err)
		}
		if revoked {
			return "", ErrTokenInvalid
		}
	}

	claims, err := s.tokens.ValidateToken(credential)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// IsCredentialError 判断是否为凭据本身的问题 (而非基础设施故障)
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrTokenInvalid) || errors.Is(err, ErrTokenMalformed)
}

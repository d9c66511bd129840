/*
 * @Description:
 * @Author: 安知鱼
 * @Date: 2025-06-28 00:21:55
 * @LastEditTime: 2026-10-14 17:24:08
 * @LastEditors: 安知鱼
 */
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/anzhiyu-c/anheyu-gallery/pkg/domain/model"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/idgen"
)

// DefaultTokenTTL 是访问令牌的默认有效期
const DefaultTokenTTL = 15 * time.Minute

// GenerateToken 生成一个新的 JWT Access Token，ttl 不大于 0 时使用 DefaultTokenTTL
func GenerateToken(userID uint, permissions model.Boolset, ttl time.Duration, secretKey []byte) (string, error) {
	if len(secretKey) == 0 {
		return "", fmt.Errorf("JWT Secret 不能为空")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	publicUserID, err := idgen.GeneratePublicID(userID, idgen.EntityTypeUser)
	if err != nil {
		return "", fmt.Errorf("生成用户公共ID失败: %w", err)
	}

	now := time.Now()
	claims := CustomClaims{
		UserID:      publicUserID,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secretKey)
}

// ParseToken 解析 JWT Token
func ParseToken(tokenStr string, secretKey []byte) (*CustomClaims, error) {
	if len(secretKey) == 0 {
		return nil, fmt.Errorf("JWT Secret 不能为空")
	}

	claims := &CustomClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secretKey, nil
	}, jwt.WithIssuer(Issuer))

	if err != nil {
		return nil, fmt.Errorf("解析token失败: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("无效或过期Token")
	}

	return claims, nil
}

// Identity 将 Claims 转换为调用方身份
func (c *CustomClaims) Identity() (model.Identity, error) {
	userID, entityType, err := idgen.DecodePublicID(c.UserID)
	if err != nil {
		return model.Identity{}, fmt.Errorf("解析用户公共ID失败: %w", err)
	}
	if entityType != idgen.EntityTypeUser {
		return model.Identity{}, fmt.Errorf("公共ID '%s' 不是用户ID", c.UserID)
	}
	return model.Identity{
		UserID:        userID,
		PublicID:      c.UserID,
		Permissions:   c.Permissions,
		Authenticated: true,
	}, nil
}

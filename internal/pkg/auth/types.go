/*
 * @Description:
 * @Author: 安知鱼
 * @Date: 2025-08-11 18:38:27
 * @LastEditTime: 2026-10-14 17:20:31
 * @LastEditors: 安知鱼
 */
package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/anzhiyu-c/anheyu-gallery/pkg/domain/model"
)

// ClaimsKey 是用于在 gin.Context 中存储和检索整个用户信息结构体的键。
const ClaimsKey = "user_claims"

// Issuer 是签发方标识
const Issuer = "anheyu-gallery"

// CustomClaims 定义了 JWT 的自定义 Claims 结构体
// UserID 存储的是用户的公共 ID 字符串。
type CustomClaims struct {
	UserID      string        `json:"user_id"`     // 用户公共ID
	Permissions model.Boolset `json:"permissions"` // 用户的权限位
	jwt.RegisteredClaims
}

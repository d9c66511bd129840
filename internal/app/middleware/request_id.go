/*
 * @Description: 为每个请求分配请求ID
 * @Author: 安知鱼
 * @Date: 2026-09-16 09:44:10
 * @LastEditTime: 2026-10-14 17:52:36
 * @LastEditors: 安知鱼
 */
package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader 是请求ID使用的请求头与响应头
	RequestIDHeader = "X-Request-ID"
	// RequestIDKey 是在 gin.Context 中存储请求ID的键
	RequestIDKey = "request_id"
)

// RequestID 沿用客户端传入的请求ID，没有时生成一个新的 UUID，并记录请求耗时
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)

		start := time.Now()
		c.Next()
		log.Printf("[Request] %s %s %s -> %d (%v)", id, c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

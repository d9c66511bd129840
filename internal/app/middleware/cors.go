/*
 * @Description: 跨域中间件
 * @Author: 安知鱼
 * @Date: 2025-06-15 12:20:41
 * @LastEditTime: 2026-10-14 17:49:02
 * @LastEditors: 安知鱼
 */
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path

		// 只对 API 路由应用 CORS 头部
		if strings.HasPrefix(path, "/api/") {
			origin := c.Request.Header.Get("Origin")

			// 可以设置为 * 允许所有，或限制域名 origin
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			// 添加更多允许的头部，包括文件下载相关的头部
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Requested-With, X-Request-ID, Content-Length")
			c.Header("Access-Control-Expose-Headers", "Content-Length, Content-Type, X-Request-ID")
			c.Header("Access-Control-Allow-Credentials", "true")

			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}
		}

		c.Next()
	}
}

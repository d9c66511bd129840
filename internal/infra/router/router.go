/*
 * @Description:
 * @Author: 安知鱼
 * @Date: 2025-06-15 11:30:55
 * @LastEditTime: 2026-10-14 18:16:20
 * @LastEditors: 安知鱼
 */
// anheyu-gallery/internal/infra/router/router.go
package router

import (
	"github.com/gin-gonic/gin"

	"github.com/anzhiyu-c/anheyu-gallery/internal/app/middleware"
	photo_handler "github.com/anzhiyu-c/anheyu-gallery/pkg/handler/photo"
)

// NoCacheMiddleware 反缓存中间件，确保 JSON 接口的响应不会被CDN缓存
func NoCacheMiddleware() gin.HandlerFunc {
	return gin.HandlerFunc(func(c *gin.Context) {
		c.Header("Cache-Control", "no-cache, no-store, must-revalidate, private, max-age=0")
		c.Header("Pragma", "no-cache")
		c.Header("Expires", "0")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")

		c.Next()
	})
}

// Router 封装了应用的所有路由和其依赖的处理器。
type Router struct {
	photoHandler *photo_handler.Handler
	mw           *middleware.Middleware
	// uploadPerMinute 是每个IP每分钟允许的上传请求数
	uploadPerMinute int
}

// NewRouter 是 Router 的构造函数，通过依赖注入接收所有处理器。
func NewRouter(photoHandler *photo_handler.Handler, mw *middleware.Middleware, uploadPerMinute int) *Router {
	return &Router{
		photoHandler:    photoHandler,
		mw:              mw,
		uploadPerMinute: uploadPerMinute,
	}
}

// Setup 注册全部路由
func (r *Router) Setup(engine *gin.Engine) {
	apiGroup := engine.Group("/api")
	r.registerPhotoRoutes(apiGroup)
}

// registerPhotoRoutes 注册图片相关的路由
func (r *Router) registerPhotoRoutes(api *gin.RouterGroup) {
	photos := api.Group("/photos")
	{
		// POST /api/photos
		photos.POST("",
			NoCacheMiddleware(),
			middleware.CustomRateLimit(r.uploadPerMinute, r.uploadPerMinute),
			r.mw.JWTAuth(),
			r.photoHandler.Upload,
		)

		// GET /api/photos/:ref
		photos.GET("/:ref", NoCacheMiddleware(), r.mw.JWTAuthOptional(), r.photoHandler.Get)

		// 文件内容允许浏览器缓存，不使用反缓存中间件
		// GET /api/photos/:ref/blob/:dimension
		photos.GET("/:ref/blob/:dimension", r.mw.JWTAuthOptional(), r.photoHandler.Blob)
	}
}

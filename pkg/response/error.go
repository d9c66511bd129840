/*
 * @Description: 将领域错误映射为 HTTP 状态码
 * @Author: 安知鱼
 * @Date: 2026-09-15 11:12:40
 * @LastEditTime: 2026-10-14 17:40:51
 * @LastEditors: 安知鱼
 */
package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/anzhiyu-c/anheyu-gallery/pkg/constant"
)

// StatusOf 返回错误对应的 HTTP 状态码
func StatusOf(err error) int {
	switch {
	case errors.Is(err, constant.ErrValidation),
		errors.Is(err, constant.ErrFormat),
		errors.Is(err, constant.ErrBadRequest),
		errors.Is(err, constant.ErrInvalidPublicID):
		return http.StatusBadRequest
	case errors.Is(err, constant.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, constant.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, constant.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, constant.ErrLocked):
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}

// Error 按错误类型返回失败响应。500 错误只在 debug 模式下携带详细信息。
func Error(c *gin.Context, err error, debug bool) {
	code := StatusOf(err)
	message := err.Error()
	if code == http.StatusInternalServerError && !debug {
		message = "服务器内部错误"
	}
	Fail(c, code, message)
}

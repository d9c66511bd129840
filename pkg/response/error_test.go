package response

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/anzhiyu-c/anheyu-gallery/pkg/constant"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "校验错误", err: fmt.Errorf("%w: 文件为空", constant.ErrValidation), expected: http.StatusBadRequest},
		{name: "格式错误", err: fmt.Errorf("%w: 签名不匹配", constant.ErrFormat), expected: http.StatusBadRequest},
		{name: "未登录", err: constant.ErrUnauthorized, expected: http.StatusUnauthorized},
		{name: "无权限", err: constant.ErrForbidden, expected: http.StatusForbidden},
		{name: "不存在", err: fmt.Errorf("包装: %w", constant.ErrNotFound), expected: http.StatusNotFound},
		{name: "文件被锁定", err: constant.ErrLocked, expected: http.StatusLocked},
		{name: "外部依赖失败", err: constant.ErrExternal, expected: http.StatusInternalServerError},
		{name: "IO错误", err: constant.ErrIO, expected: http.StatusInternalServerError},
		{name: "未知错误", err: errors.New("boom"), expected: http.StatusInternalServerError},
		{name: "上下文取消", err: context.Canceled, expected: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, StatusOf(tt.err))
		})
	}
}

func TestErrorHidesInternalDetail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	secret := fmt.Errorf("%w: dial tcp 10.0.0.1:3306", constant.ErrExternal)

	for _, debug := range []bool{false, true} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		Error(c, secret, debug)

		require.Equal(t, http.StatusInternalServerError, w.Code)
		var body Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		if debug {
			require.Contains(t, body.Message, "10.0.0.1")
		} else {
			require.NotContains(t, body.Message, "10.0.0.1")
		}
	}
}

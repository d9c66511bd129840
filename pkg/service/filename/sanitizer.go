/*
 * @Description: 客户端文件名清洗
 * @Author: 安知鱼
 * @Date: 2026-09-03 10:40:02
 * @LastEditTime: 2026-10-14 12:21:19
 * @LastEditors: 安知鱼
 */
package filename

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"

	"github.com/anzhiyu-c/anheyu-gallery/pkg/constant"
)

// MaxLength 是文件名（含扩展名）允许的最大 rune 数
const MaxLength = 127

var strictPolicy = bluemonday.StrictPolicy()

// Sanitize 将不可信的客户端文件名转换为可安全落盘的文件名。
// 空文件名、包含路径分隔符、".."、"~"、控制字符或长度超过 MaxLength 时返回 constant.ErrValidation。
func Sanitize(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", fmt.Errorf("%w: 文件名为空", constant.ErrValidation)
	}
	if !utf8.ValidString(name) {
		return "", fmt.Errorf("%w: 文件名不是合法的 UTF-8", constant.ErrValidation)
	}
	if utf8.RuneCountInString(name) > MaxLength {
		return "", fmt.Errorf("%w: 文件名超过 %d 个字符", constant.ErrValidation, MaxLength)
	}
	if strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: 文件名不能包含路径分隔符", constant.ErrValidation)
	}
	if strings.Contains(name, "..") || strings.Contains(name, "~") {
		return "", fmt.Errorf("%w: 文件名包含非法片段", constant.ErrValidation)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("%w: 文件名包含控制字符", constant.ErrValidation)
		}
	}

	name = norm.NFC.String(name)
	name = strings.TrimSpace(strictPolicy.Sanitize(name))

	stem, ext := SplitExt(name)
	if stem == "" {
		return "", fmt.Errorf("%w: 文件名缺少主体部分", constant.ErrValidation)
	}
	return Join(stem, ext, MaxLength), nil
}

// SplitExt 拆分文件名主体与扩展名（含点）
func SplitExt(name string) (stem, ext string) {
	ext = filepath.Ext(name)
	if ext == name {
		return "", ext
	}
	return strings.TrimSuffix(name, ext), ext
}

// Join 拼接主体与扩展名，主体会被截断以保证总长度不超过 maxLength
func Join(stem, ext string, maxLength int) string {
	budget := maxLength - utf8.RuneCountInString(ext)
	if budget < 1 {
		budget = 1
	}
	runes := []rune(stem)
	if len(runes) > budget {
		runes = runes[:budget]
	}
	return string(runes) + ext
}

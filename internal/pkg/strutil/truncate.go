/*
 * @Description:
 * @Author: 安知鱼
 * @Date: 2025-08-08 16:10:53
 * @LastEditTime: 2026-10-14 10:31:02
 * @LastEditors: 安知鱼
 */
package strutil

import (
	"strconv"
	"unicode/utf8"
)

const ellipsis = "..."

// Truncate 安全地将UTF-8字符串截断到指定的长度，超出时以省略号结尾。
// 返回值（含省略号）的 rune 数不超过 maxLength。
func Truncate(s string, maxLength int) string {
	if maxLength <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLength {
		return s
	}

	runes := []rune(s)
	if maxLength <= len(ellipsis) {
		return string(runes[:maxLength])
	}
	return string(runes[:maxLength-len(ellipsis)]) + ellipsis
}

// TruncateWithLengthSuffix 超长时截断字符串并追加 "-<原长度>" 后缀，结果不超过 maxLength 个 rune。
// 原长度后缀使得两个前缀相同、长度不同的超长输入得到不同的结果。
func TruncateWithLengthSuffix(s string, maxLength int) string {
	n := utf8.RuneCountInString(s)
	if n <= maxLength {
		return s
	}

	suffix := "-" + strconv.Itoa(n)
	keep := maxLength - len(suffix)
	if keep <= 0 {
		return string([]rune(suffix)[:maxLength])
	}
	return string([]rune(s)[:keep]) + suffix
}

// AppendBounded 将 addition 以 sep 连接到 base 之后，并把结果限制在 maxLength 以内。
// base 为空时直接返回截断后的 addition。
func AppendBounded(base, sep, addition string, maxLength int) string {
	if addition == "" {
		return Truncate(base, maxLength)
	}
	if base == "" {
		return Truncate(addition, maxLength)
	}
	return Truncate(base+sep+addition, maxLength)
}

package util

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

var placeholderRegex = regexp.MustCompile(`\{(\w+)\}`)

// RenderTemplate 用 data 中的同名键替换 {key} 占位符, 缺失的键原样保留
func RenderTemplate(tpl string, data map[string]any) string {
	if tpl == "" || len(data) == 0 {
		return tpl
	}
	return placeholderRegex.ReplaceAllStringFunc(tpl, func(m string) string {
		key := m[1 : len(m)-1]
		if v, ok := data[key]; ok && v != nil {
			return fmt.Sprint(v)
		}
		return m
	})
}

// Truncate 按字符截断, 超出部分以 ... 结尾
func Truncate(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxRunes]) + "..."
}

// Normalize 去除首尾空白
func Normalize(s string) string {
	return strings.TrimSpace(s)
}

// ClampPage 规范化分页参数, 返回 page, pageSize, offset
func ClampPage(page, pageSize, defaultSize, maxSize int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultSize
	}
	if pageSize > maxSize {
		pageSize = maxSize
	}
	return page, pageSize, (page - 1) * pageSize
}

// UniqueSorted 去重并排序
func UniqueSorted(items []string) []string {
	set := make(map[string]struct{}, len(items))
	res := make([]string, 0, len(items))
	for _, it := range items {
		if it == "" {
			continue
		}
		if _, ok := set[it]; ok {
			continue
		}
		set[it] = struct{}{}
		res = append(res, it)
	}
	sort.Strings(res)
	return res
}

// Ptr 取地址
func Ptr[T any](v T) *T {
	return &v
}

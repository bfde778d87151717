package utils

import (
	"regexp"
	"strings"
)

// NormalizeEmail 邮箱归一化：去空白 + 小写
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeName 姓名归一化：去首尾空白、合并连续空白、小写
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// JoinName 拼接名和姓，忽略空值
func JoinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

// FirstNonEmpty 返回第一个非空字符串
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

var serialPattern = regexp.MustCompile(`^[A-Za-z0-9:_-]{1,64}$`)

// NormalizeSerial NFC 序列号去首尾空白
func NormalizeSerial(serial string) string {
	return strings.TrimSpace(serial)
}

// IsValidSerial 序列号格式：字母数字及 : _ -，最长 64
func IsValidSerial(serial string) bool {
	return serialPattern.MatchString(serial)
}

package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// CanonicalString 按键名排序拼接参数 (k1=v1&k2=v2)，忽略空值和签名字段
func CanonicalString(params map[string]string, skip ...string) string {
	skipSet := make(map[string]struct{}, len(skip))
	for _, s := range skip {
		skipSet[s] = struct{}{}
	}

	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" {
			continue
		}
		if _, ok := skipSet[k]; ok {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	return strings.Join(parts, "&")
}

// SignHMAC 计算 HMAC-SHA256 签名（十六进制小写）
func SignHMAC(payload string, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC 常量时间比较签名
func VerifyHMAC(payload string, secret string, signature string) bool {
	expected := SignHMAC(payload, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

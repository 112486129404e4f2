package utils

import (
	"errors"
	"regexp"
	"strings"
)

var fieldPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// sqlKeywords 不允许作为字段名出现的关键字
var sqlKeywords = map[string]struct{}{
	"SELECT": {}, "INSERT": {}, "UPDATE": {}, "DELETE": {}, "DROP": {}, "ALTER": {}, "CREATE": {},
	"EXEC": {}, "UNION": {}, "FROM": {}, "WHERE": {}, "ORDER": {}, "BY": {}, "GROUP": {},
	"HAVING": {}, "JOIN": {}, "ON": {}, "AS": {}, "AND": {}, "OR": {}, "NOT": {}, "IN": {},
}

// ValidateFieldName 验证过滤/更新/排序使用的字段名，防止注入
// 只允许小写蛇形命名，与存储层列名保持一致
func ValidateFieldName(field string) error {
	if field == "" {
		return errors.New("field name cannot be empty")
	}
	if !fieldPattern.MatchString(field) {
		return errors.New("invalid field name format")
	}
	if _, ok := sqlKeywords[strings.ToUpper(field)]; ok {
		return errors.New("field name is a reserved keyword")
	}
	return nil
}

// ValidateSortField 验证排序字段是否在白名单内
func ValidateSortField(field string, allowed []string) error {
	if err := ValidateFieldName(field); err != nil {
		return err
	}
	for _, a := range allowed {
		if a == field {
			return nil
		}
	}
	return errors.New("sort field not allowed")
}

// ValidateSortOrder 验证排序方向
func ValidateSortOrder(order string) error {
	upperOrder := strings.ToUpper(strings.TrimSpace(order))
	if upperOrder != "ASC" && upperOrder != "DESC" {
		return errors.New("sort order must be ASC or DESC")
	}
	return nil
}

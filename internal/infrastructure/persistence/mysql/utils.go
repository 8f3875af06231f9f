package mysql

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// isDuplicateError 判断是否为唯一索引/主键冲突
// MySQL错误码:
// - 1062: Duplicate entry 'xxx' for key 'yyy'
// SQLite（测试）: UNIQUE constraint failed
func isDuplicateError(err error) bool {
	if err == nil {
		return false
	}
	// GORM v2的错误判断（需要开启TranslateError）
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// 兼容检查:错误信息
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint failed")
}

// reservedExpr 占用数加delta，结果最低为0
func reservedExpr(delta int) interface{} {
	return gorm.Expr("CASE WHEN reserved_quantity + ? < 0 THEN 0 ELSE reserved_quantity + ? END", delta, delta)
}

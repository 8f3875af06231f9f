package mysql

import (
	"context"

	"gorm.io/gorm"
)

// txKey context中事务DB的键（私有类型，避免和其它包的键冲突）
type txKey struct{}

// TxManager 事务管理器
// 教学要点:
// 1. 封装GORM的Transaction方法
// 2. 通过context传递事务DB(避免全局变量)
// 3. 支持嵌套事务(GORM自动使用Savepoint)
type TxManager struct {
	db *gorm.DB
}

// NewTxManager 创建事务管理器
func NewTxManager(db *gorm.DB) *TxManager {
	return &TxManager{db: db}
}

// Transaction 执行事务
// 教学要点:
// 1. fn函数内通过getDB(ctx)取到的都是同一个事务DB
// 2. fn返回error时自动ROLLBACK,返回nil时自动COMMIT
//
// 使用示例（规格行更新和商品版本号递增必须一起生效）:
//
//	err := txManager.Transaction(ctx, func(ctx context.Context) error {
//	    // 1. 递增商品版本号（同时锁住商品行）
//	    if err := bumpVersion(ctx, productID); err != nil {
//	        return err
//	    }
//	    // 2. 更新规格行，未命中时返回错误让版本号一起回滚
//	    return updateVariant(ctx, productID, variantID)
//	})
func (m *TxManager) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		// 已经在事务里，直接复用
		return fn(ctx)
	}
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// DB 从context获取事务DB,如果没有则使用默认DB
// 教学要点:事务传递机制
func (m *TxManager) DB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return m.db.WithContext(ctx)
}

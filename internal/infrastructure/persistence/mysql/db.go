package mysql

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/xiebiao/stockkeeper/internal/infrastructure/config"
)

// NewDB 创建数据库连接
// 设计说明：
// 1. 使用GORM v2作为ORM框架
// 2. 配置连接池参数（MaxOpenConns、MaxIdleConns、ConnMaxLifetime）
// 3. SQL日志输出到zerolog，开发环境打印全部SQL，其它环境只打印慢查询和错误
// 4. database.auto_migrate=true时自动迁移表结构
func NewDB(cfg *config.Config, log zerolog.Logger) (*gorm.DB, error) {
	// 1. 连接数据库
	db, err := openDB(mysql.Open(cfg.Database.DSN()), cfg.Server.Mode, log)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	// 2. 配置连接池
	// 学习要点：合理的连接池配置对性能至关重要
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取SQL DB失败: %w", err)
	}

	// 最大打开连接数（建议：CPU核数 * 2 + 磁盘数量）
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)

	// 最大空闲连接数（建议：MaxOpenConns的1/4到1/2）
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	// 连接最大存活时间（防止数据库主动断开连接）
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	// 3. 测试连接
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	log.Info().Str("host", cfg.Database.Host).Str("db", cfg.Database.DBName).Msg("数据库连接成功")

	// 4. 自动迁移表结构（开发环境）
	// 注意：生产环境应使用专门的迁移工具（如golang-migrate）
	if cfg.Database.AutoMigrate {
		if err := AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("数据库迁移失败: %w", err)
		}
	}

	return db, nil
}

// openDB 按运行模式配置GORM（测试里用sqlite方言复用同一套配置）
func openDB(dialector gorm.Dialector, mode string, log zerolog.Logger) (*gorm.DB, error) {
	logLevel := logger.Warn
	if mode == "debug" {
		logLevel = logger.Info // 开发环境打印SQL
	}

	sqlLog := log.With().Str("component", "gorm").Logger()
	return gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(&sqlLog, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logLevel,
			IgnoreRecordNotFoundError: true,
		}),
		// 把驱动错误翻译成gorm.ErrDuplicatedKey等通用错误
		TranslateError: true,
	})
}

// AutoMigrate 自动迁移表结构
// 学习要点：
// 1. AutoMigrate只会创建表、添加字段，不会删除或修改现有字段
// 2. 生产环境应使用版本化的迁移脚本，不要依赖AutoMigrate
func AutoMigrate(db *gorm.DB) error {
	// 注意：这里需要使用GORM的模型定义（带tag），不是domain层的实体
	return db.AutoMigrate(
		&ProductModel{},
		&VariantModel{},
	)
}

// ProductModel 商品库存表
// 设计说明：
// 1. 这是infrastructure层的数据模型，包含GORM tag
// 2. domain/inventory/product.go是领域实体，不依赖GORM
// 3. 简单商品的库存记在本表；多规格商品（is_variable=1）的库存记在product_variants，
//    本表的stock/reserved两列对它无意义
// 4. version每次库存变更递增，规格行的变更也会递增所属商品的version
type ProductModel struct {
	ID               string    `gorm:"primaryKey;size:64;comment:商品ID"`
	ManageStock      bool      `gorm:"not null;comment:是否管理库存"` // 不设默认值：false是有效值，带默认值时GORM插入会忽略它
	IsVariable       bool      `gorm:"not null;default:false;comment:是否多规格商品"`
	StockQuantity    int       `gorm:"not null;default:0;comment:总库存（简单商品）"`
	ReservedQuantity int       `gorm:"not null;default:0;comment:已预占数量（简单商品）"`
	Version          int64     `gorm:"not null;default:0;comment:版本号"`
	UpdatedAt        time.Time `gorm:"comment:更新时间"`
}

// TableName 指定表名
func (ProductModel) TableName() string {
	return "products"
}

// VariantModel 商品规格表
// 教学要点:
// 1. (product_id, variant_id)是联合主键，规格ID只在商品内唯一
// 2. sort保持规格在商品内的原始顺序
type VariantModel struct {
	ProductID        string `gorm:"primaryKey;size:64;comment:商品ID"`
	VariantID        string `gorm:"primaryKey;size:64;comment:规格ID"`
	StockQuantity    int    `gorm:"not null;default:0;comment:总库存"`
	ReservedQuantity int    `gorm:"not null;default:0;comment:已预占数量"`
	Sort             int    `gorm:"not null;default:0;comment:排序"`
}

// TableName 指定表名
func (VariantModel) TableName() string {
	return "product_variants"
}

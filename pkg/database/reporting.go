package database

import (
	"fmt"
	"time"

	"peb_market/internal/pkg/config"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql 驱动
	"github.com/jmoiron/sqlx"
)

// InitReportingDB 初始化只读报表连接
// 对账等聚合查询直接写 SQL，使用 sqlx 扫描到结构体，不经过 gorm
func InitReportingDB(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect reporting database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)
	return db, nil
}

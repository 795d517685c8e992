package database

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/weibaohui/insurebot/internal/model"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func InitDB(dbType, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch dbType {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite", "":
		// 使用 github.com/glebarez/sqlite 驱动
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate 同步会话相关表结构
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Session{}, &model.Transition{})
}

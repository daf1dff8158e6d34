package sql

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver (pgx)
	_ "github.com/lib/pq"              // PostgreSQL driver (lib/pq)
	_ "github.com/mattn/go-sqlite3"    // SQLite driver
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"attachpurge/backend/internal/domain"
	"attachpurge/backend/internal/storage"
)

// BlobRemover 删除附件版本文件
type BlobRemover interface {
	Remove(relPath string) error
}

// Options 数据库连接参数
type Options struct {
	Driver          string // mysql, postgres, pgx, sqlite
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store SQL 数据库存储实现（MySQL 5.7+、PostgreSQL、SQLite）
type Store struct {
	db         *gorm.DB
	sqlDB      *sql.DB
	driverName string
	blobs      BlobRemover
	log        *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// NewStore 打开数据库连接并执行迁移
func NewStore(opts Options, log *zap.Logger) (*Store, error) {
	sqlDriver, err := sqlDriverName(opts.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(sqlDriver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if sqlDriver == "sqlite3" {
		// 内存库每个连接都是独立的数据库
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxIdleConns)
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	var dialector gorm.Dialector
	switch sqlDriver {
	case "mysql":
		dialector = mysql.New(mysql.Config{Conn: db})
	case "sqlite3":
		dialector = sqlite.New(sqlite.Config{DriverName: sqlDriver, Conn: db})
	default:
		dialector = postgres.New(postgres.Config{Conn: db})
	}

	store, err := NewStoreWithDialector(dialector, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	store.driverName = opts.Driver

	log.Info("database connected",
		zap.String("driver", opts.Driver),
		zap.Int("max_open_conns", opts.MaxOpenConns),
	)
	return store, nil
}

// NewStoreWithDialector 使用指定的 GORM dialector 创建存储实例并迁移表结构
func NewStoreWithDialector(dialector gorm.Dialector, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	store := &Store{
		db:         db,
		sqlDB:      sqlDB,
		driverName: dialector.Name(),
		log:        log.With(zap.String("component", "sql_store")),
	}
	if err := store.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// SetBlobStore 设置附件文件存储，事务提交后删除对应文件
func (s *Store) SetBlobStore(blobs BlobRemover) {
	s.blobs = blobs
}

// Migrate 执行数据库迁移（使用GORM AutoMigrate）
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(
		&domain.Space{},
		&domain.Attachment{},
		&policyRecord{},
	)
}

// Driver 返回数据库驱动名称
func (s *Store) Driver() string {
	return s.driverName
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	if s.sqlDB != nil {
		return s.sqlDB.Close()
	}
	return nil
}

// Health 检查数据库健康状态
func (s *Store) Health() error {
	if s.sqlDB == nil {
		return errors.New("database connection is nil")
	}
	return s.sqlDB.Ping()
}

// removeBlobs 删除已提交版本的文件，失败只记录日志
func (s *Store) removeBlobs(paths []string) {
	if s.blobs == nil {
		return
	}
	for _, p := range paths {
		if err := s.blobs.Remove(p); err != nil {
			s.log.Warn("failed to remove attachment file", zap.String("path", p), zap.Error(err))
		}
	}
}

func sqlDriverName(driver string) (string, error) {
	switch driver {
	case "mysql":
		return "mysql", nil
	case "postgres":
		return "postgres", nil
	case "pgx":
		return "pgx", nil
	case "sqlite", "sqlite3":
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres, pgx, sqlite)", driver)
	}
}

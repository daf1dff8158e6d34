package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host            string        // 监听地址，默认 "0.0.0.0"
	Port            int           // 监听端口，默认 8080
	ShutdownTimeout time.Duration // 优雅关闭等待时间，默认 30 秒
}

// Addr 返回 host:port 形式的监听地址
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 彩色控制台输出
	File        string // 日志文件路径，留空只输出到标准输出
	MaxSizeMB   int    // 单个日志文件最大尺寸
	MaxBackups  int    // 保留的旧文件数量
	MaxAgeDays  int    // 旧文件保留天数
	Compress    bool   // 是否压缩旧文件
}

// DatabaseConfig 定义数据库连接配置
type DatabaseConfig struct {
	Type            string        // 数据库类型: "mysql"、"postgres"、"pgx"、"sqlite"，留空使用内存存储
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
	BlobPath        string        // 附件文件根目录，留空表示不删除文件
}

// UsesMemoryStore 是否使用内存存储（未配置数据库）
func (d DatabaseConfig) UsesMemoryStore() bool {
	return d.Type == "" || d.Type == "memory"
}

// RedisConfig 定义 Redis 配置，用于策略缓存和运行锁
type RedisConfig struct {
	Enabled   bool          // 是否启用
	Address   string        // Redis 服务地址，格式 "host:port"，默认 "localhost:6379"
	Password  string        // Redis 认证密码，留空表示无密码
	DB        int           // Redis 数据库编号，默认 0
	KeyPrefix string        // 键名前缀，默认 "attachpurge:"
	PolicyTTL time.Duration // 策略缓存有效期，默认 10 分钟
	LockTTL   time.Duration // 运行锁有效期，持有期间每 1/3 有效期续期一次，默认 1 分钟
}

// PurgeConfig 定义清理任务参数
type PurgeConfig struct {
	BatchSize  int     // 每个事务处理的附件数，默认 50
	DeleteRate float64 // 每秒最多删除的版本数，0 表示不限制
	SizeUnit   string  // 大小规则单位: "MiB"（默认）或 "KiB"
	BaseURL    string  // 报告中链接的前缀
}

// ScheduleConfig 定义定时任务
type ScheduleConfig struct {
	Enabled    bool   // 是否按计划执行
	Cron       string // cron 表达式（5 段），默认每天 03:00
	RunOnStart bool   // 启动后立即执行一次
}

// MailConfig 定义报告邮件的发送配置
type MailConfig struct {
	Host               string        // SMTP 服务器地址，留空时只记录日志不发送
	Port               int           // SMTP 端口，默认 25
	Username           string        // 认证用户名，留空不认证
	Password           string        // 认证密码
	From               string        // 发件人地址
	HeloName           string        // HELO/EHLO 名称
	StartTLS           bool          // 是否使用 STARTTLS
	InsecureSkipVerify bool          // 跳过证书校验（仅测试环境）
	Subject            string        // 报告主题
	SenderName         string        // 报告页脚中的发送方名称
	QueueWorkers       int           // 发送协程数，默认 2
	QueueSize          int           // 队列长度，默认 100
	Timeout            time.Duration // 单封邮件发送超时，默认 30 秒
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Purge    PurgeConfig
	Schedule ScheduleConfig
	Mail     MailConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量
//  2. 配置文件（LoadFile 指定时）
//  3. .env 文件（如果存在）
//  4. 默认值
//
// 环境变量前缀: ATTACHPURGE_
// 例如: ATTACHPURGE_DATABASE_DSN, ATTACHPURGE_SCHEDULE_CRON
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile 同 Load，并额外读取 YAML/JSON/TOML 配置文件
//
// 参数:
//   - path: 配置文件路径，留空时不读取
//
// 返回值:
//   - *Config: 加载成功的配置对象
//   - error: 文件读取失败或配置验证失败时返回错误
func LoadFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetEnvPrefix("attachpurge")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
			File:        v.GetString("log.file"),
			MaxSizeMB:   v.GetInt("log.max_size_mb"),
			MaxBackups:  v.GetInt("log.max_backups"),
			MaxAgeDays:  v.GetInt("log.max_age_days"),
			Compress:    v.GetBool("log.compress"),
		},
		Database: DatabaseConfig{
			Type:            strings.ToLower(v.GetString("database.type")),
			DSN:             v.GetString("database.dsn"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			BlobPath:        v.GetString("database.blob_path"),
		},
		Redis: RedisConfig{
			Enabled:   v.GetBool("redis.enabled"),
			Address:   v.GetString("redis.address"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			KeyPrefix: v.GetString("redis.key_prefix"),
			PolicyTTL: v.GetDuration("redis.policy_ttl"),
			LockTTL:   v.GetDuration("redis.lock_ttl"),
		},
		Purge: PurgeConfig{
			BatchSize:  v.GetInt("purge.batch_size"),
			DeleteRate: v.GetFloat64("purge.delete_rate"),
			SizeUnit:   v.GetString("purge.size_unit"),
			BaseURL:    strings.TrimRight(v.GetString("purge.base_url"), "/"),
		},
		Schedule: ScheduleConfig{
			Enabled:    v.GetBool("schedule.enabled"),
			Cron:       v.GetString("schedule.cron"),
			RunOnStart: v.GetBool("schedule.run_on_start"),
		},
		Mail: MailConfig{
			Host:               v.GetString("mail.host"),
			Port:               v.GetInt("mail.port"),
			Username:           v.GetString("mail.username"),
			Password:           v.GetString("mail.password"),
			From:               v.GetString("mail.from"),
			HeloName:           v.GetString("mail.helo_name"),
			StartTLS:           v.GetBool("mail.starttls"),
			InsecureSkipVerify: v.GetBool("mail.insecure_skip_verify"),
			Subject:            v.GetString("mail.subject"),
			SenderName:         v.GetString("mail.sender_name"),
			QueueWorkers:       v.GetInt("mail.queue_workers"),
			QueueSize:          v.GetInt("mail.queue_size"),
			Timeout:            v.GetDuration("mail.timeout"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("database.type", "") // 默认为空，使用内存存储
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.blob_path", "")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "attachpurge:")
	v.SetDefault("redis.policy_ttl", "10m")
	v.SetDefault("redis.lock_ttl", "1m")
	v.SetDefault("purge.batch_size", 50)
	v.SetDefault("purge.delete_rate", 0)
	v.SetDefault("purge.size_unit", "MiB")
	v.SetDefault("purge.base_url", "")
	v.SetDefault("schedule.enabled", true)
	v.SetDefault("schedule.cron", "0 3 * * *")
	v.SetDefault("schedule.run_on_start", false)
	v.SetDefault("mail.host", "")
	v.SetDefault("mail.port", 25)
	v.SetDefault("mail.from", "attachpurge@localhost")
	v.SetDefault("mail.helo_name", "localhost")
	v.SetDefault("mail.starttls", false)
	v.SetDefault("mail.insecure_skip_verify", false)
	v.SetDefault("mail.subject", "Purged old attachments")
	v.SetDefault("mail.sender_name", "attachpurge")
	v.SetDefault("mail.queue_workers", 2)
	v.SetDefault("mail.queue_size", 100)
	v.SetDefault("mail.timeout", "30s")
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}

	switch c.Database.Type {
	case "", "memory":
	case "mysql", "postgres", "pgx", "sqlite", "sqlite3":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for database.type %q", c.Database.Type)
		}
	default:
		return fmt.Errorf("unsupported database.type %q (supported: mysql, postgres, pgx, sqlite)", c.Database.Type)
	}

	if c.Purge.BatchSize <= 0 {
		return fmt.Errorf("purge.batch_size must be positive, got %d", c.Purge.BatchSize)
	}
	if c.Purge.DeleteRate < 0 {
		return fmt.Errorf("purge.delete_rate must not be negative")
	}
	switch strings.ToLower(c.Purge.SizeUnit) {
	case "mib", "kib":
	default:
		return fmt.Errorf("purge.size_unit must be MiB or KiB, got %q", c.Purge.SizeUnit)
	}

	if c.Schedule.Enabled {
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			return fmt.Errorf("invalid schedule.cron %q: %w", c.Schedule.Cron, err)
		}
	}

	if c.Redis.Enabled && c.Redis.Address == "" {
		return fmt.Errorf("redis.address is required when redis is enabled")
	}
	if c.Redis.Enabled && c.Redis.LockTTL < 3*time.Second {
		return fmt.Errorf("redis.lock_ttl must be at least 3s, got %s", c.Redis.LockTTL)
	}
	if c.Mail.QueueWorkers <= 0 || c.Mail.QueueSize <= 0 {
		return fmt.Errorf("mail.queue_workers and mail.queue_size must be positive")
	}
	return nil
}

// loadEnvFile 尝试加载 .env 文件
//
// 文件不存在时静默跳过，已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}

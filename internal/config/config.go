package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig 数据库连接配置（主库和租户库共用）
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// Config hivedesk-core（多租户核心服务）配置
type Config struct {
	HTTP struct {
		Addr string
	}
	// Master 主库（平台级数据：tenants/roles/permissions/staff）
	Master DatabaseConfig
	// TenantDB 租户库缺省参数（provision时host/port沿用，库名和凭据随机生成）
	TenantDB struct {
		Host     string
		Port     int
		SSLMode  string
		MaxConns int
		MaxIdle  int
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	Token struct {
		Secret     string
		AccessTTL  time.Duration
		RefreshTTL time.Duration
	}
	Router struct {
		// InvalidateGrace 关闭连接前的宽限期（等待在途请求结束）
		InvalidateGrace time.Duration
	}
	Log struct {
		Level  string
		Format string
	}
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Master.Host = getEnv("MASTER_DB_HOST", "localhost")
	cfg.Master.Port = parseInt(getEnv("MASTER_DB_PORT", "5432"), 5432)
	cfg.Master.User = getEnv("MASTER_DB_USER", "postgres")
	cfg.Master.Password = getEnv("MASTER_DB_PASSWORD", "postgres")
	cfg.Master.Database = getEnv("MASTER_DB_NAME", "hivedesk_master")
	cfg.Master.SSLMode = getEnv("MASTER_DB_SSLMODE", "disable")
	cfg.Master.MaxConns = parseInt(getEnv("MASTER_DB_MAX_CONNS", "20"), 20)
	cfg.Master.MaxIdle = parseInt(getEnv("MASTER_DB_MAX_IDLE", "5"), 5)

	// 租户库默认与主库同一实例；生产环境可指向独立集群
	cfg.TenantDB.Host = getEnv("TENANT_DB_HOST", cfg.Master.Host)
	cfg.TenantDB.Port = parseInt(getEnv("TENANT_DB_PORT", strconv.Itoa(cfg.Master.Port)), cfg.Master.Port)
	cfg.TenantDB.SSLMode = getEnv("TENANT_DB_SSLMODE", cfg.Master.SSLMode)
	cfg.TenantDB.MaxConns = parseInt(getEnv("TENANT_DB_MAX_CONNS", "10"), 10)
	cfg.TenantDB.MaxIdle = parseInt(getEnv("TENANT_DB_MAX_IDLE", "2"), 2)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	cfg.Token.Secret = getEnv("TOKEN_SECRET", "dev-only-change-me")
	cfg.Token.AccessTTL = parseDuration(getEnv("TOKEN_ACCESS_TTL", "1h"), time.Hour)
	cfg.Token.RefreshTTL = parseDuration(getEnv("TOKEN_REFRESH_TTL", "72h"), 72*time.Hour)

	cfg.Router.InvalidateGrace = parseDuration(getEnv("ROUTER_INVALIDATE_GRACE", "5s"), 5*time.Second)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构体（完全匹配config.yaml）
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`   // 服务器配置
	Database DatabaseConfig `mapstructure:"database"` // 数据库配置
	Ingest   IngestConfig   `mapstructure:"ingest"`   // 摄入/批处理配置
	LMS      LMSConfig      `mapstructure:"lms"`      // 上游LMS查询配置
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port int    `mapstructure:"port"` // 服务端口
	Mode string `mapstructure:"mode"` // Gin运行模式：debug/release/test
}

// DatabaseConfig PostgreSQL数据库配置
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`               // 连接DSN
	MaxOpenConns    int           `mapstructure:"max_open_conns"`    // 最大打开连接数
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // 最大空闲连接数
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // 连接最大存活时间
}

// IngestConfig 摄入与批处理任务配置
type IngestConfig struct {
	ErrorSampleLimit int      `mapstructure:"error_sample_limit"` // 批量摘要里错误样本上限
	BatchLimit       int      `mapstructure:"batch_limit"`        // 修复/回填每轮工作集大小
	EnabledSources   []string `mapstructure:"enabled_sources"`    // 启用的摄入来源
}

// LMSConfig 上游LMS API配置（lesson→course 反查、老师名单）
type LMSConfig struct {
	BaseURL    string `mapstructure:"base_url"`    // API基础地址
	Timeout    int    `mapstructure:"timeout"`     // 请求超时（秒）
	RetryCount int    `mapstructure:"retry_count"` // 重试次数
	AuthToken  string `mapstructure:"auth_token"`  // 认证Token
	Proxy      string `mapstructure:"proxy"`       // 代理地址
}

// LoadConfig 加载配置文件（config/config.yaml），敏感项从 .env 覆盖（不提交 git）
func LoadConfig() (*Config, error) {
	// 1. 加载 .env（若存在），env 中的值会覆盖 config.yaml 中同名字段
	_ = godotenv.Load() // 忽略错误（.env 可不存在）

	// 2. 读取 config.yaml
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	viper.SetTypeByDefaultValue(true)
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 3. 敏感字段：用 env 覆盖（优先级 env > yaml）
	overrideFromEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

// overrideFromEnv 用环境变量覆盖敏感配置
func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("LMS_AUTH_TOKEN"); v != "" {
		cfg.LMS.AuthToken = v
	}
	if v := os.Getenv("LMS_PROXY"); v != "" {
		cfg.LMS.Proxy = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Ingest.ErrorSampleLimit <= 0 {
		cfg.Ingest.ErrorSampleLimit = 20
	}
	if cfg.Ingest.BatchLimit <= 0 {
		cfg.Ingest.BatchLimit = 500
	}
	if cfg.LMS.Timeout <= 0 {
		cfg.LMS.Timeout = 10
	}
}

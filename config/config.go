package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Email    EmailConfig    `mapstructure:"email"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Mode      string `mapstructure:"mode"`
	PublicURL string `mapstructure:"public_url"` // 工作流回调地址前缀
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql, postgres, sqlite
	DSN          string `mapstructure:"dsn"`    // 设置后忽略 host/port 等字段
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type EmailConfig struct {
	SMTPHost string `mapstructure:"smtp_host"` // 为空时只记录日志，不实际发送
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type QueueConfig struct {
	ReminderQueue string        `mapstructure:"reminder_queue"`
	DelayedSet    string        `mapstructure:"delayed_set"`
	WorkerSet     string        `mapstructure:"worker_set"` // worker 心跳集合
	MaxWorkers    int           `mapstructure:"max_workers"`
	PopTimeout    time.Duration `mapstructure:"pop_timeout"`
}

type WorkflowConfig struct {
	ReminderOffsets   []int         `mapstructure:"reminder_offsets"` // 续费前提醒天数，按顺序执行
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	ExpirySweep       string        `mapstructure:"expiry_sweep"` // cron 表达式
	RunRetention      time.Duration `mapstructure:"run_retention"`
	StaleAfter        time.Duration `mapstructure:"stale_after"`        // running 且超过该时长无进展视为遗留，即使持有者仍存活
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"` // 连续三个周期无心跳的 worker 视为已退出
	TriggerToken      string        `mapstructure:"trigger_token"`      // 触发端点的共享密钥，为空时不校验
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, console
}

// DefaultReminderOffsets 默认提醒节点：续费前 7、5、2、1 天
var DefaultReminderOffsets = []int{7, 5, 2, 1}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5500)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.public_url", "http://localhost:5500")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("jwt.expire_hours", 24*7)

	v.SetDefault("queue.reminder_queue", "subscription_reminders")
	v.SetDefault("queue.delayed_set", "subscription_reminders:delayed")
	v.SetDefault("queue.worker_set", "subscription_reminders:workers")
	v.SetDefault("queue.max_workers", 4)
	v.SetDefault("queue.pop_timeout", 5*time.Second)

	v.SetDefault("workflow.reminder_offsets", DefaultReminderOffsets)
	v.SetDefault("workflow.poll_interval", 5*time.Second)
	v.SetDefault("workflow.retry_delay", time.Minute)
	v.SetDefault("workflow.max_attempts", 5)
	v.SetDefault("workflow.expiry_sweep", "@hourly")
	v.SetDefault("workflow.run_retention", 30*24*time.Hour)
	v.SetDefault("workflow.stale_after", 10*time.Minute)
	v.SetDefault("workflow.heartbeat_interval", 5*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if len(cfg.Workflow.ReminderOffsets) == 0 {
		cfg.Workflow.ReminderOffsets = append([]int(nil), DefaultReminderOffsets...)
	}

	return &cfg, nil
}

package notifier_config

import (
	"time"

	"github.com/NordCoder/Herald/internal/obs"
	pginfra "github.com/NordCoder/Herald/internal/repository/postgres"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Log struct {
	Level    string `mapstructure:"level"`
	Pretty   bool   `mapstructure:"pretty"`
	Encoding string `mapstructure:"encoding"`
}

type KafkaIn struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type KafkaOut struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type Tasks struct {
	Workers       int           `mapstructure:"workers"`
	BatchSize     int           `mapstructure:"batch_size"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	InProgressTTL time.Duration `mapstructure:"in_progress_ttl"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
}

type Pipeline struct {
	FanoutDelay    time.Duration `mapstructure:"fanout_delay"`
	FanoutBucket   time.Duration `mapstructure:"fanout_bucket"`
	EmailDelay     time.Duration `mapstructure:"email_delay"`
	EmailBucket    time.Duration `mapstructure:"email_bucket"`
	EmailNextDelay time.Duration `mapstructure:"email_next_delay"`
	EmailPageSize  int           `mapstructure:"email_page_size"`
	EmailClaimTTL  time.Duration `mapstructure:"email_claim_ttl"`
	PlatformOrigin string        `mapstructure:"platform_origin"`
}

// SMTP with an empty Addr or From leaves the email provider unconfigured.
type SMTP struct {
	Addr       string        `mapstructure:"addr"`
	From       string        `mapstructure:"from"`
	User       string        `mapstructure:"user"`
	Password   string        `mapstructure:"password"`
	UseTLS     bool          `mapstructure:"use_tls"`
	Timeout    time.Duration `mapstructure:"timeout"`
	SubjPrefix string        `mapstructure:"subj_prefix"`
	RatePerSec float64       `mapstructure:"rate_per_sec"`

	// MaxThrottleWait is the longest a send waits for a rate-limit slot.
	MaxThrottleWait time.Duration `mapstructure:"max_throttle_wait"`
}

type Sweeper struct {
	Enable     bool          `mapstructure:"enable"`
	Spec       string        `mapstructure:"spec"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
	KeyLimit   int           `mapstructure:"key_limit"`
	MaxPages   int           `mapstructure:"max_pages"`
}

type Server struct {
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	GRPCAddr        string        `mapstructure:"grpc_addr"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

type Config struct {
	App      App            `mapstructure:"app"`
	Log      Log            `mapstructure:"log"`
	OTEL     obs.OTELConfig `mapstructure:"otel"`
	DB       pginfra.Config `mapstructure:"db"`
	In       KafkaIn        `mapstructure:"kafka_in"`
	Out      KafkaOut       `mapstructure:"kafka_out"`
	Tasks    Tasks          `mapstructure:"tasks"`
	Pipeline Pipeline       `mapstructure:"pipeline"`
	SMTP     SMTP           `mapstructure:"smtp"`
	Sweeper  Sweeper        `mapstructure:"sweeper"`
	Server   Server         `mapstructure:"server"`
}

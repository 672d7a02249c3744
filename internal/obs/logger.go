package obs

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogConfig struct {
	Level  string
	Pretty bool
	// Encoding overrides the preset encoder with "json" or "console".
	Encoding string
	App      string
	Env      string
	Ver      string
}

// NewLogger builds the process logger, installs it as the zap global and
// stamps every entry with the service identity.
func NewLogger(c LogConfig) (*zap.Logger, error) {
	l, err := c.zapConfig().Build(zap.Fields(c.identity()...))
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(l)
	return l, nil
}

func (c LogConfig) zapConfig() zap.Config {
	cfg := zap.NewProductionConfig()
	if c.Pretty {
		cfg = zap.NewDevelopmentConfig()
	}
	level := zapcore.InfoLevel
	if l, err := zapcore.ParseLevel(c.Level); err == nil {
		level = l
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	switch c.Encoding {
	case "json", "console":
		cfg.Encoding = c.Encoding
	}

	enc := &cfg.EncoderConfig
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.StringDurationEncoder
	return cfg
}

// identity skips empty values so local runs don't log blank fields.
func (c LogConfig) identity() []zap.Field {
	var fs []zap.Field
	for _, kv := range [...][2]string{{"service", c.App}, {"env", c.Env}, {"version", c.Ver}} {
		if kv[1] != "" {
			fs = append(fs, zap.String(kv[0], kv[1]))
		}
	}
	return fs
}

package aggregation

import "time"

// Config is the compiled-in batching policy of one event type.
type Config struct {
	NotificationsEnabled bool
	DebounceSeconds      int
	MaxIntervalSeconds   *int
}

func (c Config) Debounce() time.Duration { return time.Duration(c.DebounceSeconds) * time.Second }

// MaxInterval returns 0 when no upper bound is configured.
func (c Config) MaxInterval() time.Duration {
	if c.MaxIntervalSeconds == nil {
		return 0
	}
	return time.Duration(*c.MaxIntervalSeconds) * time.Second
}

type Lookup interface {
	Lookup(emitterIdentifier, eventIdentifier string) (Config, bool)
}

package kafka

import (
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/propagation"
)

// headerCarrier lets the otel propagator read and write kafka headers in place.
type headerCarrier struct{ h *[]kafka.Header }

var _ propagation.TextMapCarrier = headerCarrier{}

func (c headerCarrier) Get(k string) string {
	for _, x := range *c.h {
		if x.Key == k {
			return string(x.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(k, v string) {
	for i, x := range *c.h {
		if x.Key == k {
			(*c.h)[i].Value = []byte(v)
			return
		}
	}
	*c.h = append(*c.h, kafka.Header{Key: k, Value: []byte(v)})
}

func (c headerCarrier) Keys() []string {
	ks := make([]string, 0, len(*c.h))
	for _, x := range *c.h {
		ks = append(ks, x.Key)
	}
	return ks
}

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestPoolConfig(t *testing.T) {
	pcfg, err := poolConfig(Config{
		DSN:       "postgres://u:p@localhost:5432/herald",
		AppName:   "herald-notifier",
		MaxConns:  12,
		SlowQuery: time.Second,
	}, zap.NewNop())
	require.NoError(t, err)
	assert.EqualValues(t, 12, pcfg.MaxConns)
	assert.Equal(t, "herald-notifier", pcfg.ConnConfig.RuntimeParams["application_name"])
	assert.IsType(t, &slowQueryTracer{}, pcfg.ConnConfig.Tracer)

	pcfg, err = poolConfig(Config{DSN: "postgres://localhost/herald"}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, pcfg.ConnConfig.Tracer)

	_, err = poolConfig(Config{DSN: "postgres://localhost:notaport/herald"}, nil)
	assert.Error(t, err)
}

func TestSlowQueryTracer(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tr := &slowQueryTracer{threshold: 100 * time.Millisecond, log: zap.New(core), now: func() time.Time { return clock }}

	ctx := tr.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
	clock = clock.Add(10 * time.Millisecond)
	tr.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{CommandTag: pgconn.NewCommandTag("SELECT 1")})
	assert.Zero(t, logs.Len())

	ctx = tr.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "UPDATE events\n   SET x = 1"})
	clock = clock.Add(250 * time.Millisecond)
	tr.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{CommandTag: pgconn.NewCommandTag("UPDATE 3")})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "slow query", entry.Message)
	fields := entry.ContextMap()
	assert.Equal(t, "UPDATE events SET x = 1", fields["sql"])
	assert.Equal(t, 250*time.Millisecond, fields["elapsed"])

	tr.TraceQueryEnd(context.Background(), nil, pgx.TraceQueryEndData{})
	assert.Equal(t, 1, logs.Len(), "an end without a start is ignored")
}

package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func newObservedGormLogger(level gormlogger.LogLevel) (*GormLogger, *observer.ObservedLogs) {
	core, recorded := observer.New(zapcore.DebugLevel)
	return NewGormLogger(zap.New(core), level), recorded
}

func balanceQuery() (string, int64) {
	return "SELECT * FROM seller_balances WHERE seller_id = $1 FOR UPDATE", 1
}

func TestGormLogger_Trace_LogsQueryAtDebug(t *testing.T) {
	gl, recorded := newObservedGormLogger(gormlogger.Info)

	gl.Trace(context.Background(), time.Now(), balanceQuery, nil)

	entries := recorded.FilterMessage("SQL Query").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)

	fields := entries[0].ContextMap()
	assert.Contains(t, fields["sql"], "seller_balances")
	assert.Equal(t, int64(1), fields["rows"])
}

func TestGormLogger_Trace_LogsErrors(t *testing.T) {
	gl, recorded := newObservedGormLogger(gormlogger.Error)

	gl.Trace(context.Background(), time.Now(), balanceQuery, errors.New("deadlock detected"))

	entries := recorded.FilterMessage("SQL Error").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Contains(t, entries[0].ContextMap()["error"], "deadlock")
}

func TestGormLogger_Trace_SuppressesRecordNotFound(t *testing.T) {
	gl, recorded := newObservedGormLogger(gormlogger.Error)

	gl.Trace(context.Background(), time.Now(), balanceQuery, gormlogger.ErrRecordNotFound)

	assert.Empty(t, recorded.All())
}

func TestGormLogger_Trace_WarnsOnSlowQueries(t *testing.T) {
	gl, recorded := newObservedGormLogger(gormlogger.Warn)
	gl.SlowThreshold(time.Nanosecond)

	began := time.Now().Add(-time.Millisecond)
	gl.Trace(context.Background(), began, balanceQuery, nil)

	entries := recorded.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Contains(t, entries[0].Message, "SLOW SQL")
}

func TestGormLogger_Trace_SilentLogsNothing(t *testing.T) {
	gl, recorded := newObservedGormLogger(gormlogger.Silent)

	gl.Trace(context.Background(), time.Now(), balanceQuery, errors.New("ignored"))

	assert.Empty(t, recorded.All())
}

func TestGormLogger_Trace_CarriesRequestID(t *testing.T) {
	gl, recorded := newObservedGormLogger(gormlogger.Info)

	ctx, _ := WithRequestID(context.Background(), zap.NewNop(), "req-42")
	gl.Trace(ctx, time.Now(), balanceQuery, nil)

	entries := recorded.FilterMessage("SQL Query").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "req-42", entries[0].ContextMap()["request_id"])
}

func TestGormLogger_LogMode_ReturnsAdjustedCopy(t *testing.T) {
	gl, recorded := newObservedGormLogger(gormlogger.Error)

	quiet := gl.LogMode(gormlogger.Silent)
	quiet.Error(context.Background(), "dropped %s", "entry")
	assert.Empty(t, recorded.All())

	// The original keeps its level
	gl.Error(context.Background(), "kept %s", "entry")
	assert.Len(t, recorded.All(), 1)
}

func TestMapGormLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want gormlogger.LogLevel
	}{
		{"silent", gormlogger.Silent},
		{"error", gormlogger.Error},
		{"warn", gormlogger.Warn},
		{"info", gormlogger.Info},
		{"debug", gormlogger.Info},
		{"unknown", gormlogger.Warn},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, MapGormLogLevel(tt.in))
		})
	}
}

package mysql

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormlogger "gorm.io/gorm/logger"
)

func TestOptions_Defaults(t *testing.T) {
	opts := Options{DSN: "root@tcp(127.0.0.1:3306)/docqa"}.withDefaults()

	assert.Equal(t, 10, opts.MaxIdleConns)
	assert.Equal(t, 50, opts.MaxOpenConns)
	assert.Equal(t, time.Hour, opts.ConnMaxLifetime)
	assert.Equal(t, 30*time.Minute, opts.ConnMaxIdleTime)
	assert.Equal(t, 3*time.Second, opts.PingTimeout)
	assert.NotNil(t, opts.Logger)
}

func TestOptions_IdleNeverExceedsOpen(t *testing.T) {
	opts := Options{MaxIdleConns: 20, MaxOpenConns: 5}.withDefaults()
	assert.Equal(t, 5, opts.MaxIdleConns)
	assert.Equal(t, 5, opts.MaxOpenConns)
}

func TestGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, gormLogLevel("silent"))
	assert.Equal(t, gormlogger.Error, gormLogLevel("ERROR"))
	assert.Equal(t, gormlogger.Info, gormLogLevel(" info "))
	assert.Equal(t, gormlogger.Warn, gormLogLevel(""))
	assert.Equal(t, gormlogger.Warn, gormLogLevel("verbose"))
}

func TestNew_Unreachable(t *testing.T) {
	db, err := New(context.Background(), Options{
		DSN:         "root@tcp(127.0.0.1:1)/docqa?timeout=200ms",
		PingTimeout: 500 * time.Millisecond,
	})
	require.Error(t, err)
	assert.Nil(t, db)
}

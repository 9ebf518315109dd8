package logger_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/licensekit/pkg/logger"
)

func TestGroup(t *testing.T) {
	t.Parallel()
	attr := logger.Group("order", slog.String("id", "O1"), slog.Int("attempt", 2))
	require.Equal(t, "order", attr.Key)
	require.Equal(t, slog.KindGroup, attr.Value.Kind())
	assert.Len(t, attr.Value.Group(), 2)
}

func TestError(t *testing.T) {
	t.Parallel()
	err := errors.New("boom")
	attr := logger.Error(err)
	require.Equal(t, "error", attr.Key)
	assert.Equal(t, err, attr.Value.Any())
	assert.True(t, logger.Error(nil).Equal(slog.Attr{}))
}

func TestIDs(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "user_id", logger.UserID("u1").Key)
	assert.True(t, logger.UserID("").Equal(slog.Attr{}))
	assert.Equal(t, "order_id", logger.OrderID("O1").Key)
	assert.True(t, logger.OrderID("").Equal(slog.Attr{}))
	assert.True(t, logger.LicenseID(nil).Equal(slog.Attr{}))
}

func TestDomainAttrs(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "monthly", logger.PlanType("monthly").Value.String())
	assert.Equal(t, "captured -> license_issued", logger.Transition("captured", "license_issued").Value.String())
	assert.Equal(t, uint64(7), logger.Seq(7).Value.Uint64())
	assert.Equal(t, int64(2), logger.Attempt(2).Value.Int64())
	assert.Equal(t, time.Second, logger.Duration(time.Second).Value.Duration())
}

package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()

	require.Equal(t, ":8080", cfg.OpsAddr)
	require.Equal(t, 3, cfg.DailyPoints)
	require.Equal(t, int64(1), cfg.LiveCheckCost)
	require.Equal(t, 46*time.Hour, cfg.RetentionWindow)
	require.Equal(t, time.Minute, cfg.VisibilityTimeout)
}

func TestParseEnv_Overrides(t *testing.T) {
	t.Setenv("DATABASE_DSN", "postgres://env/db")
	t.Setenv("DEFAULT_DAILY_POINTS", "10")
	t.Setenv("VISIBILITY_TIMEOUT", "90s")

	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)

	require.Equal(t, "postgres://env/db", cfg.DatabaseDSN)
	require.Equal(t, 10, cfg.DailyPoints)
	require.Equal(t, 90*time.Second, cfg.VisibilityTimeout)
	require.Equal(t, ":8080", cfg.OpsAddr, "unset vars keep defaults")
}

func TestParseFlags_Overrides(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"test", "-d", "postgres://flag/db", "-w", "4", "-ignored", "x"}

	cfg := &Config{}
	cfg.LoadDefaults()
	parseFlags(cfg)

	require.Equal(t, "postgres://flag/db", cfg.DatabaseDSN)
	require.Equal(t, 4, cfg.WorkerCount)
}

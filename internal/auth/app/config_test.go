package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDevDefaults(t *testing.T) {
	t.Setenv("ENV", "dev")
	t.Setenv("AUTH_BASE_URL", "")
	t.Setenv("AUTH_RP_ID", "")
	t.Setenv("AUTH_RP_ORIGINS", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080", cfg.BaseURL)
	require.Equal(t, "localhost", cfg.RPID)
	require.Equal(t, []string{cfg.BaseURL}, cfg.RPOrigins)
	require.Equal(t, 30*24*time.Hour, cfg.SessionTTL)
}

func TestLoadConfigFailsFastOutsideDev(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("AUTH_BASE_URL", "")
	t.Setenv("AUTH_RP_ID", "")
	t.Setenv("AUTH_RP_ORIGINS", "")

	_, err := LoadConfig()
	require.Error(t, err)
	require.Contains(t, err.Error(), "AUTH_BASE_URL")
	require.Contains(t, err.Error(), "AUTH_RP_ID")
	require.Contains(t, err.Error(), "AUTH_RP_ORIGINS")
}

func TestLoadConfigProdWithRequiredValues(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("AUTH_BASE_URL", "https://auth.edgecoder.dev/")
	t.Setenv("AUTH_RP_ID", "edgecoder.dev")
	t.Setenv("AUTH_RP_ORIGINS", "https://auth.edgecoder.dev, https://app.edgecoder.dev")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "https://auth.edgecoder.dev", cfg.BaseURL, "trailing slash is stripped")
	require.Equal(t, "edgecoder.dev", cfg.RPID)
	require.Equal(t, []string{"https://auth.edgecoder.dev", "https://app.edgecoder.dev"}, cfg.RPOrigins)
}

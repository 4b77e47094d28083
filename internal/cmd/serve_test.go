package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/3leaps/atsrelay/internal/config"
)

func TestSignalHealthChecker(t *testing.T) {
	checker := signalHealthChecker{}

	t.Run("always returns nil", func(t *testing.T) {
		err := checker.CheckHealth(context.Background())
		assert.NoError(t, err)
	})
}

func TestIdentityHealthChecker(t *testing.T) {
	tests := []struct {
		name       string
		binaryName string
		envPrefix  string
		configName string
		wantErr    bool
		errContain string
	}{
		{
			name:       "all fields valid",
			binaryName: "atsrelay",
			envPrefix:  "ATSRELAY",
			configName: "atsrelay",
			wantErr:    false,
		},
		{
			name:       "missing binary name",
			binaryName: "",
			envPrefix:  "ATSRELAY",
			configName: "atsrelay",
			wantErr:    true,
			errContain: "missing binary name",
		},
		{
			name:       "missing env prefix",
			binaryName: "atsrelay",
			envPrefix:  "",
			configName: "atsrelay",
			wantErr:    true,
			errContain: "missing env prefix",
		},
		{
			name:       "missing config name",
			binaryName: "atsrelay",
			envPrefix:  "ATSRELAY",
			configName: "",
			wantErr:    true,
			errContain: "missing config name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := identityHealthChecker{
				binaryName: tt.binaryName,
				envPrefix:  tt.envPrefix,
				configName: tt.configName,
			}

			err := checker.CheckHealth(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContain)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAshbyHealthChecker(t *testing.T) {
	t.Run("configured client is healthy", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Ashby.APIKey = "key"
		cfg.Ashby.BaseURL = "https://api.ashbyhq.com"

		err := ashbyHealthChecker{cfg: cfg}.CheckHealth(context.Background())
		assert.NoError(t, err)
	})

	t.Run("missing api key is unhealthy", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Ashby.BaseURL = "https://api.ashbyhq.com"

		err := ashbyHealthChecker{cfg: cfg}.CheckHealth(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "api key")
	})

	t.Run("missing base url is unhealthy", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Ashby.APIKey = "key"

		err := ashbyHealthChecker{cfg: cfg}.CheckHealth(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "base url")
	})
}

func TestBuildComponents(t *testing.T) {
	cfg := &config.Config{}
	cfg.Ashby.BaseURL = "https://api.ashbyhq.com"
	cfg.Index.ScanCap = 1000
	cfg.Index.PageSize = 100

	core := buildComponents(cfg, zap.NewNop())

	require.NotNil(t, core)
	assert.NotNil(t, core.client)
	assert.NotNil(t, core.gate)
	assert.NotNil(t, core.scheduler)
	assert.NotNil(t, core.resolver)
	assert.NotNil(t, core.uploader)
}

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	tcases := []struct {
		name           string
		serverAddr     string
		publicDir      string
		vaultDir       string
		allowedOrigins []string
		expectErr      bool
	}{
		{
			name:           "valid",
			serverAddr:     "localhost:8080",
			publicDir:      "data/public",
			vaultDir:       "data/vault",
			allowedOrigins: []string{"http://localhost:3000"},
		},
		{
			name:      "missing server address",
			publicDir: "data/public",
			vaultDir:  "data/vault",
			expectErr: true,
		},
		{
			name:       "missing public dir",
			serverAddr: "localhost:8080",
			vaultDir:   "data/vault",
			expectErr:  true,
		},
		{
			name:       "missing vault dir",
			serverAddr: "localhost:8080",
			publicDir:  "data/public",
			expectErr:  true,
		},
		{
			name:       "public and vault dirs collide",
			serverAddr: "localhost:8080",
			publicDir:  "data/files",
			vaultDir:   "data/files",
			expectErr:  true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := NewConfig(tc.serverAddr, tc.publicDir, tc.vaultDir, tc.allowedOrigins)
			if tc.expectErr {
				assert.Error(t, err, "expected an error")
				return
			}

			require.NoError(t, err, "expected no error")
			assert.Equal(t, tc.serverAddr, cfg.ServerAddr, "expected server address to match")
			assert.Equal(t, tc.publicDir, cfg.PublicDir, "expected public dir to match")
			assert.Equal(t, tc.vaultDir, cfg.VaultDir, "expected vault dir to match")
			assert.Equal(t, tc.allowedOrigins, cfg.AllowedOrigins, "expected origins to match")
		})
	}
}

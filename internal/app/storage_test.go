//go:build !integration

package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/guttosm/offline-sync/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStore(t *testing.T) {
	tests := []struct {
		name     string
		cfg      func(t *testing.T) config.StorageConfig
		wantName string
		wantErr  bool
	}{
		{
			name:     "memory",
			cfg:      func(*testing.T) config.StorageConfig { return config.StorageConfig{Driver: config.StorageMemory} },
			wantName: "memory",
		},
		{
			name: "sqlite",
			cfg: func(t *testing.T) config.StorageConfig {
				return config.StorageConfig{Driver: config.StorageSQLite, SQLitePath: filepath.Join(t.TempDir(), "offline.db")}
			},
			wantName: "sqlite",
		},
		{
			name: "empty driver defaults to sqlite",
			cfg: func(t *testing.T) config.StorageConfig {
				return config.StorageConfig{SQLitePath: filepath.Join(t.TempDir(), "offline.db")}
			},
			wantName: "sqlite",
		},
		{
			name:    "unknown driver",
			cfg:     func(*testing.T) config.StorageConfig { return config.StorageConfig{Driver: "redis"} },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store, err := OpenStore(ctx, tt.cfg(t))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close(ctx) })

			assert.Equal(t, tt.wantName, store.Name())
			assert.NoError(t, store.HealthCheck(ctx))
		})
	}
}

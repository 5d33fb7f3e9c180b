package main

import (
	"context"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adda-Baaj/khobor-topics/internal/config"
	"github.com/Adda-Baaj/khobor-topics/internal/domain"
	"github.com/Adda-Baaj/khobor-topics/internal/logger"
	"github.com/Adda-Baaj/khobor-topics/internal/store"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestBuildFailsBeforeServing(t *testing.T) {
	st := store.NewMemory()
	settings := config.Settings{
		HTTPAddr:       freeAddr(t),
		PublishersFile: filepath.Join(t.TempDir(), "missing.yaml"),
	}

	c, err := build(context.Background(), modeAll, settings, config.NewLoader(), st, logger.NopLogger{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Nil(t, c)

	conn, dialErr := net.Dial("tcp", settings.HTTPAddr)
	if dialErr == nil {
		_ = conn.Close()
	}
	assert.Error(t, dialErr, "nothing should listen after a failed setup")
}

func TestBuildByMode(t *testing.T) {
	st := store.NewMemory()
	settings := config.Settings{HTTPAddr: freeAddr(t)}
	ctx := context.Background()

	tests := []struct {
		mode       string
		wantServer bool
		wantRunner bool
	}{
		{modeAll, true, true},
		{modeAPI, true, false},
		{modePipeline, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			c, err := build(ctx, tt.mode, settings, config.NewLoader(), st, logger.NopLogger{})
			require.NoError(t, err)
			defer c.close()
			assert.Equal(t, tt.wantServer, c.srv != nil)
			assert.Equal(t, tt.wantRunner, c.runner != nil)
		})
	}
}

func TestBuildAPIIgnoresPublishersFile(t *testing.T) {
	settings := config.Settings{
		HTTPAddr:       freeAddr(t),
		PublishersFile: filepath.Join(t.TempDir(), "missing.yaml"),
	}

	c, err := build(context.Background(), modeAPI, settings, config.NewLoader(), store.NewMemory(), logger.NopLogger{})
	require.NoError(t, err)
	defer c.close()
	assert.NotNil(t, c.srv)
	assert.Nil(t, c.dispatcher)
}

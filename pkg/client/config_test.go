package client

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfig("tablesync", dir, ConfigOverrides{})
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, "info", cfg.DebugLevel)
	assert.Equal(t, defaultMaxLogFiles, cfg.MaxLogFiles)
	assert.Equal(t, defaultActionTimeout, cfg.ActionTimeout)
	assert.Equal(t, filepath.Join(dir, "history.db"), cfg.HistoryDB)
	assert.True(t, cfg.HistoryEnabled())
	assert.Zero(t, cfg.MaxReconnectAttempts)
	assert.Equal(t, filepath.Join(dir, "logs", "tablesync.log"), cfg.LogFile())
}

func TestLoadConfig_FileAndOverrides(t *testing.T) {
	dir := t.TempDir()
	conf := `# table client
ServerURL=wss://tables.example.com/stream
actionaddr=tables.example.com:7777
insecure=true
tableid=t-file
playerid=alice
sessiontoken=secret
maxreconnects=5
reconnectbase=250ms
heartbeattimeout=1m
historydb=none
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tablesync.conf"), []byte(conf), 0600))

	cfg, err := LoadConfig("tablesync", dir, ConfigOverrides{TableID: "t-flag", DebugLevel: "debug"})
	require.NoError(t, err)

	assert.Equal(t, "wss://tables.example.com/stream", cfg.ServerURL, "keys are case-insensitive")
	assert.Equal(t, "tables.example.com:7777", cfg.ActionAddr)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, "t-flag", cfg.TableID, "override wins")
	assert.Equal(t, "debug", cfg.DebugLevel)
	assert.Equal(t, 5, cfg.MaxReconnectAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.ReconnectBaseWait)
	assert.Equal(t, time.Minute, cfg.HeartbeatTimeout)
	assert.False(t, cfg.HistoryEnabled())
	require.NoError(t, cfg.ValidateConfig())
}

func TestLoadConfig_BadValue(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tablesync.conf"), []byte("reconnectmax=soon\n"), 0600))
	_, err := LoadConfig("tablesync", dir, ConfigOverrides{})
	assert.ErrorContains(t, err, "reconnectmax")
}

func TestValidateConfig(t *testing.T) {
	cfg := &AppConfig{}
	err := cfg.ValidateConfig()
	require.Error(t, err)
	for _, key := range []string{"ServerURL", "ActionAddr", "ActionServerCert", "TableID", "PlayerID", "SessionToken"} {
		assert.Contains(t, err.Error(), key)
	}

	cfg = &AppConfig{
		ServerURL:    "http://wrong",
		ActionAddr:   "a:1",
		Insecure:     true,
		TableID:      "t1",
		PlayerID:     "alice",
		SessionToken: "tok",
	}
	assert.ErrorContains(t, cfg.ValidateConfig(), "ws://")
}

func TestSetConfigValues(t *testing.T) {
	cfg := &AppConfig{MaxLogFiles: 3}
	cfg.SetConfigValues(map[string]interface{}{
		"insecure":         true,
		"maxreconnects":    7,
		"maxlogfiles":      0, // ignored
		"heartbeattimeout": 10 * time.Second,
		"debuglevel":       "trace",
		"unknown":          "x",
	})
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 7, cfg.MaxReconnectAttempts)
	assert.Equal(t, 3, cfg.MaxLogFiles)
	assert.Equal(t, 10*time.Second, cfg.HeartbeatTimeout)
	assert.Equal(t, "trace", cfg.DebugLevel)
}

func TestConfig_SaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := &AppConfig{
		ServerURL:            "ws://localhost:8080/stream",
		ActionAddr:           "localhost:9090",
		Insecure:             true,
		TableID:              "t1",
		PlayerID:             "alice",
		SessionToken:         "tok",
		DebugLevel:           "debug",
		MaxLogFiles:          4,
		HistoryDB:            "none",
		MaxReconnectAttempts: 2,
		ReconnectMaxWait:     10 * time.Second,
		ActionTimeout:        3 * time.Second,
	}
	require.NoError(t, cfg.Save(filepath.Join(dir, "tablesync.conf")))

	got, err := LoadConfig("tablesync", dir, ConfigOverrides{})
	require.NoError(t, err)
	cfg.DataDir = dir
	assert.Equal(t, cfg, got)
}

func TestSetupGRPCConnection_MissingCert(t *testing.T) {
	_, err := SetupGRPCConnection("localhost:1", filepath.Join(t.TempDir(), "nope.cert"), false)
	assert.ErrorContains(t, err, "server certificate")

	conn, err := SetupGRPCConnection("localhost:1", "", true)
	require.NoError(t, err)
	conn.Close()
}

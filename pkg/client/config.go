package client

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	defaultAppName       = "tablesync"
	defaultDebugLevel    = "info"
	defaultMaxLogFiles   = 3
	defaultMaxLogSizeKB  = 10 * 1024
	defaultActionTimeout = 10 * time.Second
)

// Config file keys.
const (
	keyServerURL        = "serverurl"
	keyActionAddr       = "actionaddr"
	keyActionServerCert = "actionservercert"
	keyInsecure         = "insecure"
	keyTableID          = "tableid"
	keyPlayerID         = "playerid"
	keySessionToken     = "sessiontoken"
	keyDebugLevel       = "debuglevel"
	keyMaxLogFiles      = "maxlogfiles"
	keyHistoryDB        = "historydb"
	keyReconnectBase    = "reconnectbase"
	keyReconnectMax     = "reconnectmax"
	keyMaxReconnects    = "maxreconnects"
	keyHeartbeatTimeout = "heartbeattimeout"
	keyActionTimeout    = "actiontimeout"
)

// ConfigOverrides carries optional CLI/runtime overrides for config values.
type ConfigOverrides struct {
	ServerURL        string
	ActionAddr       string
	ActionServerCert string
	TableID          string
	PlayerID         string
	SessionToken     string
	DebugLevel       string
	HistoryDB        string
}

// AppConfig is the complete client configuration.
type AppConfig struct {
	DataDir string

	// Streaming endpoint (ws:// or wss://).
	ServerURL string

	// gRPC action endpoint.
	ActionAddr       string
	ActionServerCert string
	Insecure         bool // plaintext gRPC, no TLS
	ActionTimeout    time.Duration

	TableID      string
	PlayerID     string
	SessionToken string

	DebugLevel  string
	MaxLogFiles int

	// HistoryDB is the hand-history database path. "none" disables it.
	HistoryDB string

	ReconnectBaseWait    time.Duration
	ReconnectMaxWait     time.Duration
	MaxReconnectAttempts int
	HeartbeatTimeout     time.Duration
}

// LogFile is the path of the rotated log file.
func (cfg *AppConfig) LogFile() string {
	return filepath.Join(cfg.DataDir, "logs", defaultAppName+".log")
}

// HistoryEnabled reports whether hand results are journaled.
func (cfg *AppConfig) HistoryEnabled() bool {
	return cfg.HistoryDB != "" && cfg.HistoryDB != "none"
}

// DefaultDataDir is the per-user application directory.
func DefaultDataDir(appName string) string {
	return dcrutil.AppDataDir(appName, false)
}

// LoadConfig loads <datadir>/<appName>.conf, if present, and applies the
// overrides. A missing file yields the defaults.
func LoadConfig(appName string, datadir string, ov ConfigOverrides) (*AppConfig, error) {
	if appName == "" {
		appName = defaultAppName
	}
	if datadir == "" {
		datadir = DefaultDataDir(appName)
	}

	values := map[string]string{}
	path := filepath.Join(datadir, appName+".conf")
	if _, err := os.Stat(path); err == nil {
		raw, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		for k, v := range raw {
			values[strings.ToLower(k)] = v
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat config: %w", err)
	}

	cfg := &AppConfig{
		DataDir:          datadir,
		ServerURL:        values[keyServerURL],
		ActionAddr:       values[keyActionAddr],
		ActionServerCert: values[keyActionServerCert],
		TableID:          values[keyTableID],
		PlayerID:         values[keyPlayerID],
		SessionToken:     values[keySessionToken],
		DebugLevel:       values[keyDebugLevel],
		HistoryDB:        values[keyHistoryDB],
	}

	var err error
	if cfg.Insecure, err = parseBool(values, keyInsecure); err != nil {
		return nil, err
	}
	if cfg.MaxLogFiles, err = parseInt(values, keyMaxLogFiles, defaultMaxLogFiles); err != nil {
		return nil, err
	}
	if cfg.MaxReconnectAttempts, err = parseInt(values, keyMaxReconnects, 0); err != nil {
		return nil, err
	}
	if cfg.ReconnectBaseWait, err = parseDuration(values, keyReconnectBase, 0); err != nil {
		return nil, err
	}
	if cfg.ReconnectMaxWait, err = parseDuration(values, keyReconnectMax, 0); err != nil {
		return nil, err
	}
	if cfg.HeartbeatTimeout, err = parseDuration(values, keyHeartbeatTimeout, 0); err != nil {
		return nil, err
	}
	if cfg.ActionTimeout, err = parseDuration(values, keyActionTimeout, defaultActionTimeout); err != nil {
		return nil, err
	}

	// Overrides win.
	setIf(&cfg.ServerURL, ov.ServerURL)
	setIf(&cfg.ActionAddr, ov.ActionAddr)
	setIf(&cfg.ActionServerCert, ov.ActionServerCert)
	setIf(&cfg.TableID, ov.TableID)
	setIf(&cfg.PlayerID, ov.PlayerID)
	setIf(&cfg.SessionToken, ov.SessionToken)
	setIf(&cfg.DebugLevel, ov.DebugLevel)
	setIf(&cfg.HistoryDB, ov.HistoryDB)

	if cfg.DebugLevel == "" {
		cfg.DebugLevel = defaultDebugLevel
	}
	if cfg.HistoryDB == "" {
		cfg.HistoryDB = filepath.Join(datadir, "history.db")
	}
	return cfg, nil
}

// SetConfigValues allows the main app to override configuration values from
// flags that are not plain strings.
func (cfg *AppConfig) SetConfigValues(values map[string]interface{}) {
	for key, value := range values {
		switch key {
		case keyInsecure:
			if v, ok := value.(bool); ok {
				cfg.Insecure = v
			}
		case keyMaxReconnects:
			if v, ok := value.(int); ok && v >= 0 {
				cfg.MaxReconnectAttempts = v
			}
		case keyMaxLogFiles:
			if v, ok := value.(int); ok && v > 0 {
				cfg.MaxLogFiles = v
			}
		case keyHeartbeatTimeout:
			if v, ok := value.(time.Duration); ok && v > 0 {
				cfg.HeartbeatTimeout = v
			}
		case keyDebugLevel:
			if v, ok := value.(string); ok && v != "" {
				cfg.DebugLevel = v
			}
		}
	}
}

// ValidateConfig checks that all required configuration values are present.
func (cfg *AppConfig) ValidateConfig() error {
	var missingConfigs []string

	if cfg.ServerURL == "" {
		missingConfigs = append(missingConfigs, "ServerURL")
	}
	if cfg.ActionAddr == "" {
		missingConfigs = append(missingConfigs, "ActionAddr")
	}
	if !cfg.Insecure && cfg.ActionServerCert == "" {
		missingConfigs = append(missingConfigs, "ActionServerCert")
	}
	if cfg.TableID == "" {
		missingConfigs = append(missingConfigs, "TableID")
	}
	if cfg.PlayerID == "" {
		missingConfigs = append(missingConfigs, "PlayerID")
	}
	if cfg.SessionToken == "" {
		missingConfigs = append(missingConfigs, "SessionToken")
	}

	if len(missingConfigs) > 0 {
		return fmt.Errorf("missing required configuration values: %v", missingConfigs)
	}
	if !strings.HasPrefix(cfg.ServerURL, "ws://") && !strings.HasPrefix(cfg.ServerURL, "wss://") {
		return fmt.Errorf("serverurl must be a ws:// or wss:// URL, got %q", cfg.ServerURL)
	}
	return nil
}

// Save writes the configuration as a key=value file.
func (cfg *AppConfig) Save(path string) error {
	values := map[string]string{
		keyServerURL:        cfg.ServerURL,
		keyActionAddr:       cfg.ActionAddr,
		keyActionServerCert: cfg.ActionServerCert,
		keyInsecure:         strconv.FormatBool(cfg.Insecure),
		keyTableID:          cfg.TableID,
		keyPlayerID:         cfg.PlayerID,
		keySessionToken:     cfg.SessionToken,
		keyDebugLevel:       cfg.DebugLevel,
		keyMaxLogFiles:      strconv.Itoa(cfg.MaxLogFiles),
		keyHistoryDB:        cfg.HistoryDB,
		keyMaxReconnects:    strconv.Itoa(cfg.MaxReconnectAttempts),
	}
	if cfg.ReconnectBaseWait > 0 {
		values[keyReconnectBase] = cfg.ReconnectBaseWait.String()
	}
	if cfg.ReconnectMaxWait > 0 {
		values[keyReconnectMax] = cfg.ReconnectMaxWait.String()
	}
	if cfg.HeartbeatTimeout > 0 {
		values[keyHeartbeatTimeout] = cfg.HeartbeatTimeout.String()
	}
	if cfg.ActionTimeout > 0 {
		values[keyActionTimeout] = cfg.ActionTimeout.String()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return godotenv.Write(values, path)
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func parseBool(values map[string]string, key string) (bool, error) {
	s, ok := values[key]
	if !ok || s == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func parseInt(values map[string]string, key string, def int) (int, error) {
	s, ok := values[key]
	if !ok || s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func parseDuration(values map[string]string, key string, def time.Duration) (time.Duration, error) {
	s, ok := values[key]
	if !ok || s == "" {
		return def, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

// SetupGRPCConnection dials the action endpoint, with TLS unless insecure is
// set.
func SetupGRPCConnection(serverAddr, certPath string, insecureConn bool) (*grpc.ClientConn, error) {
	if insecureConn {
		return grpc.NewClient(serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	pemServerCA, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read server certificate: %v", err)
	}

	certPool := x509.NewCertPool()
	if !certPool.AppendCertsFromPEM(pemServerCA) {
		return nil, fmt.Errorf("failed to add server certificate to pool")
	}

	host := serverAddr
	if h, _, ok := strings.Cut(serverAddr, ":"); ok {
		host = h
	}
	tlsConfig := &tls.Config{
		RootCAs:    certPool,
		ServerName: host,
	}

	conn, err := grpc.NewClient(serverAddr, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %v", err)
	}
	return conn, nil
}

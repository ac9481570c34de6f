package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vctt94/pokertablesync/pkg/client"
	"github.com/vctt94/pokertablesync/pkg/utils"
	"golang.org/x/sync/errgroup"
)

const appName = "tablesync"

var (
	flagDataDir       = flag.String("datadir", "", "Directory to load config file from")
	flagServerURL     = flag.String("serverurl", "", "Table stream URL (ws:// or wss://)")
	flagActionAddr    = flag.String("actionaddr", "", "Action server address (host:port)")
	flagActionCert    = flag.String("actioncert", "", "Action server TLS certificate")
	flagInsecure      = flag.Bool("insecure", false, "Use plaintext gRPC for actions")
	flagTableID       = flag.String("table", "", "Table ID to follow")
	flagPlayerID      = flag.String("player", "", "Player ID of the viewer")
	flagSessionToken  = flag.String("token", "", "Session token")
	flagDebugLevel    = flag.String("debuglevel", "", "Logging level (trace, debug, info, warn, error)")
	flagHistoryDB     = flag.String("historydb", "", "Hand history database path, or none")
	flagMaxReconnects = flag.Int("maxreconnects", 0, "Give up after this many failed reconnects (0 = never)")
	flagSaveConfig    = flag.Bool("saveconfig", false, "Write the effective config to the datadir and continue")
)

func realMain() error {
	flag.Parse()

	cfg, err := client.LoadConfig(appName, *flagDataDir, client.ConfigOverrides{
		ServerURL:        *flagServerURL,
		ActionAddr:       *flagActionAddr,
		ActionServerCert: *flagActionCert,
		TableID:          *flagTableID,
		PlayerID:         *flagPlayerID,
		SessionToken:     *flagSessionToken,
		DebugLevel:       *flagDebugLevel,
		HistoryDB:        *flagHistoryDB,
	})
	if err != nil {
		return fmt.Errorf("configuration error: %v", err)
	}

	// Non-string flags only override the file when explicitly given.
	values := map[string]interface{}{}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "insecure":
			values["insecure"] = *flagInsecure
		case "maxreconnects":
			values["maxreconnects"] = *flagMaxReconnects
		}
	})
	cfg.SetConfigValues(values)

	if err := utils.EnsureDataDirExists(cfg.DataDir); err != nil {
		return err
	}
	if *flagSaveConfig {
		path := filepath.Join(cfg.DataDir, appName+".conf")
		if err := cfg.Save(path); err != nil {
			return fmt.Errorf("unable to save config: %v", err)
		}
		fmt.Printf("Config written to %s\n", path)
	}
	if err := cfg.ValidateConfig(); err != nil {
		return err
	}

	logBackend, err := client.NewLogBackend(cfg.LogFile(), cfg.DebugLevel, cfg.MaxLogFiles, nil)
	if err != nil {
		return fmt.Errorf("logging error: %v", err)
	}
	defer logBackend.Close()

	log := logBackend.Logger("MAIN")
	log.Infof("Following table %s as %s via %s", cfg.TableID, cfg.PlayerID, cfg.ServerURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ntfns := client.NewNotificationManager()
	ntfns.UpdateUIConfig(client.UINotificationsConfig{
		YourTurn:              true,
		HandResults:           true,
		MaxLength:             120,
		EmitInterval:          time.Second,
		CancelEmissionChannel: ctx.Done(),
	})

	tc, err := client.NewTableClient(ctx, &client.TableClientConfig{
		App:           cfg,
		Notifications: ntfns,
		LogBackend:    logBackend,
	})
	if err != nil {
		return err
	}
	defer tc.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return tc.Run(gctx) })
	g.Go(func() error {
		defer cancel()
		return runUI(gctx, tc, ntfns)
	})

	err = g.Wait()
	if err != nil {
		log.Errorf("Exiting: %v", err)
	}
	return err
}

func main() {
	if err := realMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

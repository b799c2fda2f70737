// worker_sync manages the offline trip cache of a worker device.
//
//	worker_sync stage --file trip.json   stage one completed trip (stdin when --file is omitted)
//	worker_sync sync                     upload every pending trip to the gateway
//	worker_sync list [--pending]         print staged trips as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dispatch-ledger/internal/config"
	"github.com/dispatch-ledger/internal/domain/settlement"
	"github.com/dispatch-ledger/internal/logger"
	"github.com/dispatch-ledger/internal/offline_cache"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: worker_sync <stage|sync|list> [flags]")
	}
	command, args := args[0], args[1:]

	var dbPath, gatewayURL, file string
	var pending bool
	flagSet := pflag.NewFlagSet("worker_sync "+command, pflag.ContinueOnError)
	flagSet.StringVar(&dbPath, "db", "", "path to the SQLite cache file (default OFFLINE_DB_PATH)")
	flagSet.StringVar(&gatewayURL, "gateway", "", "gateway base URL (default OFFLINE_GATEWAY_URL)")
	flagSet.StringVar(&file, "file", "", "trip JSON to stage; stdin when empty")
	flagSet.BoolVar(&pending, "pending", false, "list only trips not yet synced")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadConfig("worker_sync")
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if dbPath != "" {
		cfg.OfflineCache.DBPath = dbPath
	}
	if gatewayURL != "" {
		cfg.OfflineCache.GatewayURL = gatewayURL
	}

	// stdout carries command output
	log := logger.New(os.Stderr, cfg)
	uploader := offline_cache.NewHTTPUploader(cfg.OfflineCache.GatewayURL, cfg.OfflineCache.HTTPTimeout)
	cache, err := offline_cache.Open(cfg.OfflineCache.DBPath, uploader, log, cfg.OfflineCache.SyncConcurrency)
	if err != nil {
		return err
	}
	defer cache.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "stage":
		return stage(ctx, cache, file)
	case "sync":
		report, err := cache.Sync(ctx)
		if err != nil {
			return err
		}
		if err := printJSON(report); err != nil {
			return err
		}
		if report.Failed > 0 {
			return fmt.Errorf("%d trips failed to sync", report.Failed)
		}
		return nil
	case "list":
		list := cache.List
		if pending {
			list = cache.Pending
		}
		entries, err := list(ctx)
		if err != nil {
			return err
		}
		if entries == nil {
			entries = []*offline_cache.Entry{}
		}
		return printJSON(entries)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func stage(ctx context.Context, cache *offline_cache.Cache, file string) error {
	var r io.Reader = os.Stdin
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	var trip settlement.Trip
	if err := json.NewDecoder(r).Decode(&trip); err != nil {
		return fmt.Errorf("decode trip: %w", err)
	}
	staged, err := cache.Stage(ctx, trip)
	if err != nil {
		return err
	}
	if !staged {
		fmt.Println("trip already synced, not staged:", trip.CallID)
		return nil
	}
	fmt.Println("staged:", trip.CallID)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

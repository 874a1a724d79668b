package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mcdev12/sideline/go/internal/config"
	"github.com/mcdev12/sideline/go/internal/match/codec"
	"github.com/mcdev12/sideline/go/internal/match/persistence"
	"github.com/mcdev12/sideline/go/internal/match/remote"
)

func main() {
	var (
		file    = flag.String("file", "go/internal/assets/match.json", "match snapshot to seed")
		matchID = flag.String("match", os.Getenv("MATCH_ID"), "match identifier")
		writers = flag.String("writers", "", "comma-separated user ids to register as writers")
		force   = flag.Bool("force", false, "overwrite an existing remote snapshot")
		local   = flag.Bool("local", false, "also write the snapshot to the configured local store")
	)
	flag.Parse()

	// 1) Load and normalize the JSON snapshot
	data, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	st, err := codec.Decode(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "decode snapshot: %v\n", err)
		os.Exit(1)
	}
	snapshot, err := codec.Marshal(st)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode snapshot: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(os.Getenv("SIDELINE_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *matchID == "" {
		*matchID = cfg.MatchID
	}
	if err := remote.ValidateMatchID(*matchID); err != nil {
		fmt.Fprintf(os.Stderr, "match id: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// 2) Connect to the shared store
	natsCfg := remote.DefaultNATSConfig()
	if cfg.NATS.URL != "" {
		natsCfg.URL = cfg.NATS.URL
	}
	natsCfg.Bucket = cfg.NATS.Bucket
	store, err := remote.NewNATSStore(ctx, natsCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	// 3) Seed the snapshot and writers
	key := remote.StateKey(*matchID)
	status := "created"
	if *force {
		_, err = store.Put(ctx, key, snapshot)
		status = "written"
	} else {
		_, err = store.Create(ctx, key, snapshot)
		if errors.Is(err, remote.ErrKeyExists) {
			status, err = "skipped (exists)", nil
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed snapshot: %v\n", err)
		os.Exit(1)
	}

	var registered, errs int
	for _, uid := range strings.Split(*writers, ",") {
		uid = strings.TrimSpace(uid)
		if uid == "" {
			continue
		}
		if _, err := store.Put(ctx, remote.WriterKey(*matchID, uid), []byte("true")); err != nil {
			fmt.Fprintf(os.Stderr, "error registering writer %s: %v\n", uid, err)
			errs++
			continue
		}
		registered++
	}

	// 4) Optionally mirror into the local store
	if *local {
		if err := seedLocal(ctx, cfg, *matchID, snapshot); err != nil {
			fmt.Fprintf(os.Stderr, "seed local store: %v\n", err)
			errs++
		}
	}

	// 5) Print summary
	fmt.Printf(
		"Match seed complete: %s snapshot %s, %d writers registered, %d errors\n",
		*matchID, status, registered, errs,
	)
}

func seedLocal(ctx context.Context, cfg config.Config, matchID string, snapshot []byte) error {
	var kv persistence.KV
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pg, err := persistence.OpenPostgres(ctx, cfg.Database.DSN(), cfg.Store.MaxValueBytes)
		if err != nil {
			return err
		}
		defer pg.Close()
		kv = pg
	default:
		lite, err := persistence.OpenSQLite(cfg.Store.Path, cfg.Store.MaxValueBytes)
		if err != nil {
			return err
		}
		defer lite.Close()
		kv = lite
	}

	if err := kv.Set(ctx, persistence.StateKey, string(snapshot)); err != nil {
		return err
	}
	return persistence.NewRepository(kv).SaveRemoteConfig(ctx, persistence.RemoteConfig{Game: matchID})
}

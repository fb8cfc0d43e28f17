// Command triekvd runs one node of the trie-of-pages store: a primary
// serves reads and writes on its public port and fans writes out to any
// configured replicas; a replica serves reads on its public port and
// accepts forwarded writes on its replication port.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/intellect4all/triekv/engine"
	"github.com/intellect4all/triekv/httpapi"
	"github.com/intellect4all/triekv/internal/config"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	app := &cli.App{
		Name:  "triekvd",
		Usage: "trie-of-pages key-value storage node",
		Flags: config.Flags,
		Action: func(c *cli.Context) error {
			return run(c)
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("triekvd exited")
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c)
	if err != nil {
		return err
	}

	eng, err := engine.New(cfg.Engine)
	if err != nil {
		return err
	}
	defer eng.Close()

	log.Info().
		Str("data_dir", cfg.Engine.DataDir).
		Bool("is_replica", cfg.Engine.IsReplica).
		Int("replicas", len(cfg.Engine.Replicas)).
		Str("cache_budget", humanize.IBytes(uint64(cfg.Engine.CacheSizeBytes))).
		Msg("engine ready")

	publicRole := httpapi.RolePublic
	publicSrv, err := httpapi.NewServer(eng, publicRole)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		log.Info().Str("addr", addr).Msg("serving public port")
		errCh <- http.ListenAndServe(addr, publicSrv)
	}()

	if cfg.Engine.IsReplica {
		replSrv, err := httpapi.NewServer(eng, httpapi.RoleReplication)
		if err != nil {
			return err
		}
		go func() {
			addr := fmt.Sprintf(":%d", cfg.ReplicationPort)
			log.Info().Str("addr", addr).Msg("serving replication port")
			errCh <- http.ListenAndServe(addr, replSrv)
		}()
	}

	return <-errCh
}

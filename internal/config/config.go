// Package config loads a triekvd process's settings from an optional YAML
// file with CLI flag overrides layered on top, then turns them into an
// engine.Config plus the ambient HTTP listen ports (spec §6).
package config

import (
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/intellect4all/triekv/engine"
)

// fileConfig mirrors the recognized YAML option set.
type fileConfig struct {
	DataDir          string   `yaml:"data_dir"`
	Port             int      `yaml:"port"`
	ReplicationPort  int      `yaml:"replication_port"`
	CacheSizeMiB     int64    `yaml:"cache_size"`
	MaxPageBytes     int64    `yaml:"max_page_bytes"`
	MaxRangeResponse int      `yaml:"max_range_response"`
	Fsync            string   `yaml:"fsync"`
	IsReplica        bool     `yaml:"is_replica"`
	Replicas         []string `yaml:"replicas"`
}

// Config is the fully resolved daemon configuration: the engine's own
// tunables plus the ambient listen ports that only the HTTP layer needs.
type Config struct {
	Engine          engine.Config
	Port            int
	ReplicationPort int
}

// Flags are the urfave/cli flags triekvd registers; Load reads their
// resolved values out of *cli.Context.
var Flags = []cli.Flag{
	&cli.StringFlag{Name: "config", Usage: "path to a YAML config file"},
	&cli.StringFlag{Name: "data-dir", Value: "./data"},
	&cli.IntFlag{Name: "port", Value: 8080},
	&cli.IntFlag{Name: "replication-port", Value: 8081},
	&cli.Int64Flag{Name: "cache-size", Value: 128, Usage: "resident cache budget, MiB"},
	&cli.Int64Flag{Name: "max-page-bytes", Value: engine.DefaultMaxPageBytes},
	&cli.IntFlag{Name: "max-range-response", Value: engine.DefaultMaxRangeResponse},
	&cli.StringFlag{Name: "fsync", Value: string(engine.FsyncDefault), Usage: "default|strict"},
	&cli.BoolFlag{Name: "is-replica"},
	&cli.StringSliceFlag{Name: "replicas", Usage: "replica base URLs (primary only)"},
}

// Load resolves a Config from an optional YAML file (c.String("config"))
// with CLI flags layered on top; any flag explicitly set on the command
// line wins over the file, which wins over the flag's own default.
func Load(c *cli.Context) (Config, error) {
	fc := fileConfig{}
	if path := c.String("config"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "read config file %s", path)
		}
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return Config{}, errors.Wrapf(err, "parse config file %s", path)
		}
	}

	dataDir := firstNonEmpty(flagIfSet(c, "data-dir"), fc.DataDir, c.String("data-dir"))
	port := firstNonZeroInt(flagIntIfSet(c, "port"), fc.Port, c.Int("port"))
	replPort := firstNonZeroInt(flagIntIfSet(c, "replication-port"), fc.ReplicationPort, c.Int("replication-port"))
	cacheMiB := firstNonZeroInt64(flagInt64IfSet(c, "cache-size"), fc.CacheSizeMiB, c.Int64("cache-size"))
	maxPageBytes := firstNonZeroInt64(flagInt64IfSet(c, "max-page-bytes"), fc.MaxPageBytes, c.Int64("max-page-bytes"))
	maxRange := firstNonZeroInt(flagIntIfSet(c, "max-range-response"), fc.MaxRangeResponse, c.Int("max-range-response"))
	fsync := firstNonEmpty(flagIfSet(c, "fsync"), fc.Fsync, c.String("fsync"))

	isReplica := fc.IsReplica
	if c.IsSet("is-replica") {
		isReplica = c.Bool("is-replica")
	}
	replicas := fc.Replicas
	if vals := c.StringSlice("replicas"); len(vals) > 0 {
		replicas = vals
	}

	durability := engine.FsyncDefault
	if fsync == string(engine.FsyncStrict) {
		durability = engine.FsyncStrict
	}

	return Config{
		Engine: engine.Config{
			DataDir:          dataDir,
			MaxPageBytes:     maxPageBytes,
			CacheSizeBytes:   cacheMiB * 1024 * 1024,
			MaxRangeResponse: maxRange,
			Durability:       durability,
			IsReplica:        isReplica,
			Replicas:         replicas,
		},
		Port:            port,
		ReplicationPort: replPort,
	}, nil
}

func flagIfSet(c *cli.Context, name string) string {
	if c.IsSet(name) {
		return c.String(name)
	}
	return ""
}

func flagIntIfSet(c *cli.Context, name string) int {
	if c.IsSet(name) {
		return c.Int(name)
	}
	return 0
}

func flagInt64IfSet(c *cli.Context, name string) int64 {
	if c.IsSet(name) {
		return c.Int64(name)
	}
	return 0
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZeroInt(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstNonZeroInt64(vals ...int64) int64 {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

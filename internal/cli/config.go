package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/docmodel/internal/logger"
	"github.com/mesh-intelligence/docmodel/internal/paths"
	"github.com/mesh-intelligence/docmodel/pkg/types"
)

// Config keys, shared by config.yaml, DOCMODEL_* variables and flags.
const (
	keyBackend     = "backend"
	keyDataDir     = "data_dir"
	keySync        = "sync"
	keyMongoURI    = "mongo.uri"
	keyMongoDB     = "mongo.database"
	keySchema      = "schema"
	keyLogLevel    = "log.level"
	keyLogPretty   = "log.pretty"
	keyMetricsFile = "metrics_file"
)

const envPrefix = "DOCMODEL"

// defaultConfigYAML is written by init when config.yaml does not exist.
const defaultConfigYAML = `# docmodel configuration

# Storage backend: sqlite or mongo
backend: sqlite

# sqlite: data directory (overridable by --data-dir) and JSONL sync
# strategy, immediate or on_close
# data_dir:
sync: immediate

# mongo: connection string and database
mongo:
  uri: ""
  database: docmodel

# Model definitions, relative to this directory
schema: schema.yaml

log:
  level: warn
  pretty: false

# Prometheus textfile written after each command
# metrics_file:
`

// settings is the resolved configuration of one invocation.
type settings struct {
	ConfigDir   string
	Backend     string
	DataDir     string
	Sync        string
	MongoURI    string
	MongoDB     string
	SchemaPath  string
	LogLevel    string
	LogPretty   bool
	MetricsFile string
}

// flagBindings maps config keys to the persistent flags that override them.
var flagBindings = map[string]string{
	keyBackend:     "backend",
	keySync:        "sync",
	keyMongoURI:    "mongo-uri",
	keyMongoDB:     "mongo-database",
	keySchema:      "schema",
	keyLogLevel:    "log-level",
	keyMetricsFile: "metrics-file",
}

// loadSettings reads config.yaml from configDir through viper, layering
// DOCMODEL_* variables and flags on top. A missing config.yaml is not an
// error.
func loadSettings(configDir, dataDirFlag string, flags *pflag.FlagSet) (settings, error) {
	v := viper.New()
	v.SetDefault(keyBackend, types.BackendSQLite)
	v.SetDefault(keySync, types.SyncImmediate)
	v.SetDefault(keyMongoDB, types.DefaultMongoDatabase)
	v.SetDefault(keyLogLevel, logger.DefaultLevel)
	v.SetConfigFile(paths.ConfigFile(configDir))
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, name := range flagBindings {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return settings{}, fmt.Errorf("binding --%s: %w", name, err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return settings{}, fmt.Errorf("read config: %w", err)
		}
	}

	dataDir, err := paths.ResolveDataDir(dataDirFlag, v.GetString(keyDataDir))
	if err != nil {
		return settings{}, fmt.Errorf("resolve data dir: %w", err)
	}

	return settings{
		ConfigDir:   configDir,
		Backend:     v.GetString(keyBackend),
		DataDir:     dataDir,
		Sync:        v.GetString(keySync),
		MongoURI:    v.GetString(keyMongoURI),
		MongoDB:     v.GetString(keyMongoDB),
		SchemaPath:  paths.SchemaFile(configDir, v.GetString(keySchema)),
		LogLevel:    v.GetString(keyLogLevel),
		LogPretty:   v.GetBool(keyLogPretty),
		MetricsFile: v.GetString(keyMetricsFile),
	}, nil
}

// storeConfig converts settings to the backend configuration.
func (s settings) storeConfig() types.Config {
	return types.Config{
		Backend:      s.Backend,
		DataDir:      s.DataDir,
		SyncStrategy: s.Sync,
		MongoURI:     s.MongoURI,
		MongoDB:      s.MongoDB,
	}
}

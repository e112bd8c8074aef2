// Package config reads process settings from the environment and pipeline
// definitions from YAML.
package config

import (
	"fmt"
	"os"
	"strings"
)

type LookupFunc func(string) (string, bool)

const (
	RunModeServer = "server"
	RunModeJob    = "job"
)

type Config struct {
	DataDir        string
	DefaultDBAlias string
	PipelinesFile  string
	AvroCodec      string

	RunMode     string
	JobPipeline string

	Port    string
	APIKey  string
	GinMode string

	// GCPProjectID is the project for bigquery databases that do not name one.
	GCPProjectID string
}

// LoadFromEnv reads the configuration from the process environment.
func LoadFromEnv() (Config, error) {
	return Load(os.LookupEnv)
}

func Load(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}
	cfg := Config{
		DataDir:        "./data",
		DefaultDBAlias: "dwh",
		PipelinesFile:  "pipelines.yaml",
		AvroCodec:      "deflate",
		RunMode:        RunModeServer,
		Port:           "8080",
	}

	applyString(lookup, "DATA_DIR", &cfg.DataDir)
	applyString(lookup, "DEFAULT_DB_ALIAS", &cfg.DefaultDBAlias)
	applyString(lookup, "PIPELINES_FILE", &cfg.PipelinesFile)
	applyString(lookup, "AVRO_CODEC", &cfg.AvroCodec)
	applyString(lookup, "RUN_MODE", &cfg.RunMode)
	applyString(lookup, "JOB_PIPELINE", &cfg.JobPipeline)
	applyString(lookup, "PORT", &cfg.Port)
	applyString(lookup, "API_KEY", &cfg.APIKey)
	applyString(lookup, "GIN_MODE", &cfg.GinMode)
	applyString(lookup, "GCP_PROJECT_ID", &cfg.GCPProjectID)

	cfg.RunMode = strings.ToLower(cfg.RunMode)
	switch cfg.RunMode {
	case RunModeServer:
	case RunModeJob:
		if cfg.JobPipeline == "" {
			return Config{}, fmt.Errorf("JOB_PIPELINE is required when RUN_MODE=job")
		}
	default:
		return Config{}, fmt.Errorf("unknown RUN_MODE %q", cfg.RunMode)
	}
	if cfg.DataDir == "" {
		return Config{}, fmt.Errorf("DATA_DIR must not be empty")
	}
	return cfg, nil
}

func applyString(lookup LookupFunc, key string, target *string) {
	if raw, ok := lookup(key); ok && strings.TrimSpace(raw) != "" {
		*target = strings.TrimSpace(raw)
	}
}

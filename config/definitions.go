package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"avro-exporter/db"
)

// Definitions is the content of the pipelines file.
type Definitions struct {
	Databases map[string]db.Definition `yaml:"databases"`
	Pipelines []PipelineDefinition     `yaml:"pipelines"`
}

type PipelineDefinition struct {
	ID          string              `yaml:"id"`
	Description string              `yaml:"description"`
	BaseDir     string              `yaml:"base_dir"`
	Commands    []CommandDefinition `yaml:"commands"`
}

type CommandDefinition struct {
	ID             string         `yaml:"id"`
	Type           string         `yaml:"type"`
	FileName       string         `yaml:"file_name"`
	Schema         map[string]any `yaml:"schema"`
	SchemaFileName string         `yaml:"schema_file_name"`
	SQLQuery       string         `yaml:"sql_query"`
	SQLFileName    string         `yaml:"sql_file_name"`
	Replace        []Replacement  `yaml:"replace"`
	DBAlias        string         `yaml:"db_alias"`
}

type Replacement struct {
	Find string `yaml:"find"`
	With string `yaml:"with"`
}

// LoadDefinitions reads the pipelines file at path. Database DSNs go through
// environment expansion; relative base directories are resolved against the file's directory.
func LoadDefinitions(path string) (Definitions, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Definitions{}, err
	}
	defs, err := ParseDefinitions(raw)
	if err != nil {
		return Definitions{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	for i := range defs.Pipelines {
		p := &defs.Pipelines[i]
		if p.BaseDir == "" {
			p.BaseDir = dir
		} else if !filepath.IsAbs(p.BaseDir) {
			p.BaseDir = filepath.Join(dir, p.BaseDir)
		}
	}
	return defs, nil
}

// ParseDefinitions decodes a pipelines document. Unknown keys are rejected.
func ParseDefinitions(raw []byte) (Definitions, error) {
	var defs Definitions
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&defs); err != nil {
		return Definitions{}, err
	}
	for alias, d := range defs.Databases {
		d.DSN = os.ExpandEnv(d.DSN)
		d.Project = os.ExpandEnv(d.Project)
		defs.Databases[alias] = d
	}
	return defs, nil
}

// SetDefaultProject fills in project for every bigquery database without one.
func (d Definitions) SetDefaultProject(project string) {
	if project == "" {
		return
	}
	for alias, def := range d.Databases {
		if def.Kind == db.KindBigQuery && def.Project == "" {
			def.Project = project
			d.Databases[alias] = def
		}
	}
}

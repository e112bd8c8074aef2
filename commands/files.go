// Package commands contains the pipeline commands that export query results to files.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"avro-exporter/pipeline"
)

// QuerySource is where a command gets its SQL from: a Literal, a Generator or a FileRef.
type QuerySource interface {
	querySource()
}

// Literal is SQL given inline.
type Literal string

// Generator produces the SQL when the command runs.
type Generator func() string

// FileRef is a SQL file relative to the pipeline base directory.
type FileRef string

func (Literal) querySource()   {}
func (Generator) querySource() {}
func (FileRef) querySource()   {}

// Replacement is a literal find/replace applied to the query text.
type Replacement struct {
	Find string `yaml:"find" json:"find"`
	With string `yaml:"with" json:"with"`
}

type WriteAvroFileOptions struct {
	// ID defaults to FileName.
	ID string

	// FileName is the output file, relative to the data directory.
	FileName string

	// Schema and SchemaFileName are mutually exclusive. With neither, the schema is inferred.
	Schema         map[string]any
	SchemaFileName string

	// Exactly one of SQLQuery, SQLQueryFunc and SQLFileName must be set.
	SQLQuery     string
	SQLQueryFunc func() string
	SQLFileName  string

	Replace []Replacement

	// DBAlias defaults to the configured default alias.
	DBAlias string
}

// WriteAvroFile runs a query and writes the result to an Avro file.
type WriteAvroFile struct {
	id             string
	fileName       string
	schema         map[string]any
	schemaFileName string
	query          QuerySource
	replace        []Replacement
	dbAlias        string

	pipeline *pipeline.Pipeline
}

// NewWriteAvroFile validates opts. It does not touch the filesystem.
func NewWriteAvroFile(opts WriteAvroFileOptions) (*WriteAvroFile, error) {
	if opts.FileName == "" {
		return nil, fmt.Errorf("%w: file name is required", pipeline.ErrConfiguration)
	}

	var sources []QuerySource
	if opts.SQLQuery != "" {
		sources = append(sources, Literal(opts.SQLQuery))
	}
	if opts.SQLQueryFunc != nil {
		sources = append(sources, Generator(opts.SQLQueryFunc))
	}
	if opts.SQLFileName != "" {
		sources = append(sources, FileRef(opts.SQLFileName))
	}
	if len(sources) != 1 {
		return nil, fmt.Errorf("%w: provide either sql_query or sql_file_name (but not both)", pipeline.ErrConfiguration)
	}
	if opts.Schema != nil && opts.SchemaFileName != "" {
		return nil, fmt.Errorf("%w: schema and schema_file_name can not both be provided", pipeline.ErrConfiguration)
	}

	id := opts.ID
	if id == "" {
		id = opts.FileName
	}
	return &WriteAvroFile{
		id:             id,
		fileName:       opts.FileName,
		schema:         opts.Schema,
		schemaFileName: opts.SchemaFileName,
		query:          sources[0],
		replace:        append([]Replacement(nil), opts.Replace...),
		dbAlias:        opts.DBAlias,
	}, nil
}

func (c *WriteAvroFile) ID() string {
	return c.id
}

func (c *WriteAvroFile) Attach(p *pipeline.Pipeline) {
	c.pipeline = p
}

// BasePath is the base directory of the pipeline the command is attached to.
func (c *WriteAvroFile) BasePath() (string, error) {
	if c.pipeline == nil {
		return "", fmt.Errorf("%w: command %q", pipeline.ErrStructural, c.id)
	}
	return c.pipeline.BasePath(), nil
}

func (c *WriteAvroFile) resolvePath(name string) (string, error) {
	base, err := c.BasePath()
	if err != nil {
		return "", err
	}
	return filepath.Abs(filepath.Join(base, name))
}

// DBAlias returns the configured alias, falling back to defaultAlias.
func (c *WriteAvroFile) DBAlias(defaultAlias string) string {
	if c.dbAlias != "" {
		return c.dbAlias
	}
	return defaultAlias
}

// ResolveSchema returns the schema document, reading it from disk when a schema file is set.
// A nil result means the schema is inferred from the data.
func (c *WriteAvroFile) ResolveSchema(ctx context.Context) (map[string]any, error) {
	if c.schemaFileName == "" {
		return c.schema, nil
	}
	path, err := c.resolvePath(c.schemaFileName)
	if err != nil {
		return nil, err
	}
	pipeline.Logger(ctx).InfoContext(ctx, "Load AVRO schema from file", "path", path)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("failed to parse schema file %s: %w", path, err)
	}
	return schema, nil
}

// ResolveQuery returns the SQL to run with all replacements applied.
// A generator is called once per invocation.
func (c *WriteAvroFile) ResolveQuery(ctx context.Context) (string, error) {
	var query string
	switch src := c.query.(type) {
	case Literal:
		query = string(src)
	case Generator:
		query = src()
	case FileRef:
		path, err := c.resolvePath(string(src))
		if err != nil {
			return "", err
		}
		pipeline.Logger(ctx).InfoContext(ctx, "Read SQL query from file", "path", path)
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		query = string(raw)
	default:
		return "", fmt.Errorf("%w: command %q has no query source", pipeline.ErrConfiguration, c.id)
	}

	for _, r := range c.replace {
		query = strings.ReplaceAll(query, r.Find, r.With)
	}
	return query, nil
}

// Run resolves schema and query, reads the result set and writes it to the data directory.
// Errors are returned as they occur; nothing is retried.
func (c *WriteAvroFile) Run(ctx context.Context, env *pipeline.Env) error {
	log := pipeline.Logger(ctx)

	schema, err := c.ResolveSchema(ctx)
	if err != nil {
		return err
	}
	query, err := c.ResolveQuery(ctx)
	if err != nil {
		return err
	}

	alias := c.DBAlias(env.Settings.DefaultDBAlias)
	log.InfoContext(ctx, "Read data from SQL", "db_alias", alias)
	table, err := env.Tables.ReadTable(ctx, alias, query)
	if err != nil {
		return err
	}

	path := filepath.Join(env.Settings.DataDir, c.fileName)
	log.InfoContext(ctx, "Write to AVRO file", "path", path, "rows", table.NumRows())
	return env.Encoder.WriteTable(path, table, schema)
}

func (c *WriteAvroFile) DocItems() []pipeline.DocItem {
	items := []pipeline.DocItem{{Label: "file name", Value: c.fileName}}

	switch {
	case c.schemaFileName != "":
		items = append(items, pipeline.DocItem{Label: "schema file name", Value: c.schemaFileName})
	case c.schema != nil:
		raw, err := json.Marshal(c.schema)
		if err == nil {
			items = append(items, pipeline.DocItem{Label: "schema", Value: string(raw)})
		}
	default:
		items = append(items, pipeline.DocItem{Label: "schema", Value: "inferred"})
	}

	switch src := c.query.(type) {
	case Literal:
		items = append(items, pipeline.DocItem{Label: "sql query", Value: string(src)})
	case Generator:
		items = append(items, pipeline.DocItem{Label: "sql query", Value: "generated at run time"})
	case FileRef:
		items = append(items, pipeline.DocItem{Label: "sql file name", Value: string(src)})
	}

	for _, r := range c.replace {
		items = append(items, pipeline.DocItem{Label: "replace", Value: fmt.Sprintf("%s -> %s", r.Find, r.With)})
	}

	alias := c.dbAlias
	if alias == "" {
		alias = "(default)"
	}
	return append(items, pipeline.DocItem{Label: "db alias", Value: alias})
}

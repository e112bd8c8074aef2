package commands

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"avro-exporter/config"
	"avro-exporter/pipeline"
)

const TypeWriteAvroFile = "write_avro_file"

// Build constructs the command described by def.
func Build(def config.CommandDefinition) (pipeline.Command, error) {
	switch def.Type {
	case TypeWriteAvroFile, "":
		replace := make([]Replacement, len(def.Replace))
		for i, r := range def.Replace {
			replace[i] = Replacement{Find: r.Find, With: r.With}
		}
		return NewWriteAvroFile(WriteAvroFileOptions{
			ID:             def.ID,
			FileName:       def.FileName,
			Schema:         def.Schema,
			SchemaFileName: def.SchemaFileName,
			SQLQuery:       def.SQLQuery,
			SQLFileName:    def.SQLFileName,
			Replace:        replace,
			DBAlias:        def.DBAlias,
		})
	default:
		return nil, fmt.Errorf("%w: unknown command type %q", pipeline.ErrConfiguration, def.Type)
	}
}

// BuildPipelines constructs every pipeline in defs, keyed by id.
// All invalid pipelines and commands are reported in one error.
func BuildPipelines(defs []config.PipelineDefinition) (map[string]*pipeline.Pipeline, error) {
	out := make(map[string]*pipeline.Pipeline, len(defs))
	var errs *multierror.Error
	for _, pd := range defs {
		if _, dup := out[pd.ID]; dup {
			errs = multierror.Append(errs, fmt.Errorf("%w: duplicate pipeline id %q", pipeline.ErrConfiguration, pd.ID))
			continue
		}
		p, err := pipeline.New(pd.ID, pd.Description, pd.BaseDir)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		for i, cd := range pd.Commands {
			cmd, err := Build(cd)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("pipeline %q command %d: %w", pd.ID, i, err))
				continue
			}
			if err := p.Add(cmd); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
		out[p.ID] = p
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return out, nil
}

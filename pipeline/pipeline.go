package pipeline

import (
	"context"
	"errors"
	"fmt"

	"avro-exporter/dataframe"
)

var (
	// ErrConfiguration is returned when a command or pipeline is constructed with invalid arguments.
	ErrConfiguration = errors.New("configuration error")
	// ErrStructural is returned when a command needs its owning pipeline but is not attached to one.
	ErrStructural = errors.New("command is not attached to a pipeline")
)

// Settings is the process-wide configuration a command reads while running.
type Settings struct {
	DataDir        string
	DefaultDBAlias string
}

// TableReader runs a query against the database registered under alias.
type TableReader interface {
	ReadTable(ctx context.Context, alias, query string) (*dataframe.Table, error)
}

// TableEncoder writes a table to path, using schema when it is not nil.
type TableEncoder interface {
	WriteTable(path string, table *dataframe.Table, schema map[string]any) error
}

// Env carries everything a command needs at run time.
type Env struct {
	Settings Settings
	Tables   TableReader
	Encoder  TableEncoder
}

// DocItem is a label/value pair describing a command for display.
type DocItem struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type Command interface {
	ID() string
	Run(ctx context.Context, env *Env) error
	DocItems() []DocItem
}

// Attacher is implemented by commands that resolve files relative to their pipeline.
type Attacher interface {
	Attach(p *Pipeline)
}

type Pipeline struct {
	ID          string
	Description string
	BaseDir     string
	Commands    []Command
}

func New(id, description, baseDir string) (*Pipeline, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: pipeline id is empty", ErrConfiguration)
	}
	if baseDir == "" {
		return nil, fmt.Errorf("%w: pipeline %q has no base directory", ErrConfiguration, id)
	}
	return &Pipeline{ID: id, Description: description, BaseDir: baseDir}, nil
}

// Add appends cmd to the pipeline and attaches it when it supports attachment.
func (p *Pipeline) Add(cmd Command) error {
	for _, c := range p.Commands {
		if c.ID() == cmd.ID() {
			return fmt.Errorf("%w: duplicate command id %q in pipeline %q", ErrConfiguration, cmd.ID(), p.ID)
		}
	}
	if a, ok := cmd.(Attacher); ok {
		a.Attach(p)
	}
	p.Commands = append(p.Commands, cmd)
	return nil
}

func (p *Pipeline) BasePath() string {
	return p.BaseDir
}

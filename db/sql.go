package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"avro-exporter/dataframe"
)

// SQLHandle runs queries through a database/sql driver.
// Every query opens a fresh connection and closes it afterwards.
type SQLHandle struct {
	kind   string
	driver string
	dsn    string

	// Open defaults to sql.Open.
	Open func(driverName, dsn string) (*sql.DB, error)
}

func NewSQLHandle(kind, driver, dsn string) *SQLHandle {
	return &SQLHandle{kind: kind, driver: driver, dsn: dsn, Open: sql.Open}
}

func (h *SQLHandle) Kind() string {
	return h.kind
}

func (h *SQLHandle) ExecuteQuery(ctx context.Context, query string) (*dataframe.Table, error) {
	open := h.Open
	if open == nil {
		open = sql.Open
	}
	db, err := open(h.driver, h.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", h.kind, err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.WarnContext(ctx, "Failed to close connection", "kind", h.kind, "error", err)
		}
	}()
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", h.kind, err)
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query on %s: %w", h.kind, err)
	}
	defer rows.Close()

	t, err := dataframe.FromRows(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read result from %s: %w", h.kind, err)
	}
	return t, nil
}

package db

import (
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
)

const (
	KindMySQL     = "mysql"
	KindPostgres  = "postgres"
	KindDuckDB    = "duckdb"
	KindSQLServer = "sqlserver"
	KindBigQuery  = "bigquery"
)

// driver names as registered with database/sql
var sqlDrivers = map[string]string{
	KindMySQL:     "mysql",
	KindPostgres:  "pgx",
	KindDuckDB:    "duckdb",
	KindSQLServer: "sqlserver",
}

func init() {
	for kind, driver := range sqlDrivers {
		RegisterKind(kind, sqlFactory(kind, driver))
	}
	RegisterKind(KindBigQuery, func(def Definition) (Handle, error) {
		return NewBigQueryHandle(def.Project, def.Location), nil
	})
}

func sqlFactory(kind, driver string) Factory {
	return func(def Definition) (Handle, error) {
		// duckdb accepts an empty DSN for an in-memory database
		if def.DSN == "" && kind != KindDuckDB {
			return nil, fmt.Errorf("%s database requires a dsn", kind)
		}
		return NewSQLHandle(kind, driver, def.DSN), nil
	}
}

package db

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"cloud.google.com/go/bigquery"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/iterator"

	"avro-exporter/dataframe"
)

// BigQueryHandle runs queries as BigQuery jobs.
type BigQueryHandle struct {
	projectID string
	location  string
}

// NewBigQueryHandle returns a handle for projectID. An empty projectID is detected
// from the default credentials on first use.
func NewBigQueryHandle(projectID, location string) *BigQueryHandle {
	return &BigQueryHandle{projectID: projectID, location: location}
}

func (h *BigQueryHandle) Kind() string {
	return KindBigQuery
}

func (h *BigQueryHandle) resolveProject(ctx context.Context) (string, error) {
	if h.projectID != "" {
		return h.projectID, nil
	}
	creds, err := google.FindDefaultCredentials(ctx, bigquery.Scope)
	if err != nil {
		return "", fmt.Errorf("failed to find default credentials: %w", err)
	}
	if creds.ProjectID == "" {
		return "", fmt.Errorf("bigquery project is not set and could not be detected from credentials")
	}
	slog.InfoContext(ctx, "Detected Project ID", "project_id", creds.ProjectID)
	return creds.ProjectID, nil
}

func (h *BigQueryHandle) ExecuteQuery(ctx context.Context, query string) (*dataframe.Table, error) {
	projectID, err := h.resolveProject(ctx)
	if err != nil {
		return nil, err
	}
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigquery client: %w", err)
	}
	defer client.Close()

	q := client.Query(query)
	q.Location = h.location
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query on BigQuery: %w", err)
	}

	var rows [][]any
	for {
		var values []bigquery.Value
		err := it.Next(&values)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read BigQuery row: %w", err)
		}
		row := make([]any, len(values))
		for i, v := range values {
			var fieldType bigquery.FieldType
			if i < len(it.Schema) {
				fieldType = it.Schema[i].Type
			}
			row[i] = convertBigQueryValue(v, fieldType)
		}
		rows = append(rows, row)
	}

	// the schema is only populated once Next has been called
	t := &dataframe.Table{Columns: make([]dataframe.Column, len(it.Schema)), Rows: rows}
	for i, f := range it.Schema {
		t.Columns[i] = dataframe.Column{Name: f.Name, DatabaseType: string(f.Type)}
	}
	return t, nil
}

func convertBigQueryValue(v bigquery.Value, fieldType bigquery.FieldType) any {
	switch x := v.(type) {
	case *big.Rat:
		if x == nil {
			return nil
		}
		return x.FloatString(9)
	case []bigquery.Value, map[string]bigquery.Value:
		return fmt.Sprint(x)
	default:
		return dataframe.Normalize(x, string(fieldType))
	}
}

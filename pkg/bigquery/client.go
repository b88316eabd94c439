package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/angelmondragon/escrowpay-backend/pkg/config"
	"github.com/angelmondragon/escrowpay-backend/pkg/logger"
)

const metadataTimeout = 10 * time.Second

var errNotInitialized = errors.New("bigquery client not initialized")

// Client streams settlement analytics into one dataset. Tables are checked at
// start-up against the schema the writer will send, so a missing column fails
// the deploy instead of every insert.
type Client struct {
	client  *bigquery.Client
	dataset *bigquery.Dataset
	cfg     config.BigQueryConfig
	schemas map[string]bigquery.Schema
}

// Option configures NewClient.
type Option func(*Client)

// WithTableSchema makes start-up and Ping verify that table has every field
// of schema.
func WithTableSchema(table string, schema bigquery.Schema) Option {
	return func(c *Client) {
		c.schemas[strings.TrimSpace(table)] = schema
	}
}

// NewClient connects and verifies the dataset and settlement table.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errors.New("gcp project id is required")
	}
	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, errors.New("bigquery dataset is required")
	}
	table := strings.TrimSpace(cfg.SettlementEventsTable)
	if table == "" {
		return nil, errors.New("bigquery settlement table is required")
	}

	raw, err := bigquery.NewClient(ctx, projectID, credentials(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}
	c := &Client{
		client:  raw,
		dataset: raw.Dataset(datasetID),
		cfg:     cfg,
		schemas: map[string]bigquery.Schema{table: nil},
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.verify(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"dataset": datasetID, "table": table}), "bigquery client ready")
	}
	return c, nil
}

// credentials prefers inline JSON over a credentials file. With neither set
// the library falls back to application default credentials.
func credentials(gcp config.GCPConfig) []option.ClientOption {
	if js := strings.TrimSpace(gcp.CredentialsJSON); js != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(js))}
	}
	if file := strings.TrimSpace(gcp.ApplicationCredentials); file != "" {
		return []option.ClientOption{option.WithCredentialsFile(file)}
	}
	return nil
}

// SettlementTable is the table settlement rows land in.
func (c *Client) SettlementTable() string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.cfg.SettlementEventsTable)
}

func (c *Client) verify(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		return describe("dataset", c.dataset.DatasetID, err)
	}
	for table, want := range c.schemas {
		meta, err := c.dataset.Table(table).Metadata(ctx)
		if err != nil {
			return describe("table", table, err)
		}
		if missing := missingFields(meta.Schema, want); len(missing) > 0 {
			return fmt.Errorf("table %q is missing columns %s", table, strings.Join(missing, ", "))
		}
	}
	return nil
}

// missingFields lists the top-level fields of want that are absent from have.
func missingFields(have, want bigquery.Schema) []string {
	present := make(map[string]struct{}, len(have))
	for _, f := range have {
		present[strings.ToLower(f.Name)] = struct{}{}
	}
	var missing []string
	for _, f := range want {
		if _, ok := present[strings.ToLower(f.Name)]; !ok {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

func describe(kind, name string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return fmt.Errorf("%s %q does not exist", kind, name)
	}
	return fmt.Errorf("read %s %q metadata: %w", kind, name, err)
}

// Ping re-runs the start-up checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.verify(ctx)
}

// InsertRows streams rows into table. Rows that carry an insert ID are
// deduplicated by BigQuery on redelivery.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errors.New("bigquery table name is required")
	}
	if len(rows) == 0 {
		return nil
	}
	return c.dataset.Table(table).Inserter().Put(ctx, rows)
}

// Close releases the client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/sethvargo/go-retry"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/escrowpay-backend/internal/analytics/types"
	pkgbigquery "github.com/angelmondragon/escrowpay-backend/pkg/bigquery"
)

const (
	defaultBatchSize      = 1
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

// Config controls the analytics writer behavior.
type Config struct {
	SettlementTable string
	BatchSize       int
	RetryPolicy     RetryPolicy
}

// RetryPolicy controls how many times BigQuery inserts are attempted.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// BigQueryWriter streams settlement rows into BigQuery with retries and optional batching.
type BigQueryWriter struct {
	client    tableInserter
	table     string
	batchSize int
	retry     RetryPolicy

	buffer []types.SettlementEventRow
}

// New creates a new BigQueryWriter backed by a shared client.
func New(client *pkgbigquery.Client, cfg Config) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table := strings.TrimSpace(cfg.SettlementTable)
	if table == "" {
		return nil, errors.New("settlement table is required")
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	policy := cfg.RetryPolicy
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = defaultMaxAttempts
	}
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = defaultInitialBackoff
	}
	if policy.MaximumBackoff <= 0 {
		policy.MaximumBackoff = defaultMaximumBackoff
	}
	if policy.MaximumBackoff < policy.InitialBackoff {
		policy.MaximumBackoff = policy.InitialBackoff
	}

	return &BigQueryWriter{
		client:    client,
		table:     table,
		batchSize: batchSize,
		retry:     policy,
	}, nil
}

// InsertSettlement buffers a row and flushes once the batch is full.
func (w *BigQueryWriter) InsertSettlement(ctx context.Context, row types.SettlementEventRow) error {
	w.buffer = append(w.buffer, row)
	if len(w.buffer) >= w.batchSize {
		return w.Flush(ctx)
	}
	return nil
}

// Flush writes any buffered rows immediately. Each row carries its event id as
// the insert id so BigQuery drops duplicates from redelivered messages.
func (w *BigQueryWriter) Flush(ctx context.Context) error {
	if len(w.buffer) == 0 {
		return nil
	}
	rows := make([]any, len(w.buffer))
	for i := range w.buffer {
		rows[i] = &cbigquery.StructSaver{
			Struct:   &w.buffer[i],
			InsertID: w.buffer[i].EventID,
		}
	}

	if err := w.insertWithRetry(ctx, rows); err != nil {
		return err
	}
	w.buffer = w.buffer[:0]
	return nil
}

func (w *BigQueryWriter) insertWithRetry(ctx context.Context, rows []any) error {
	backoff := retry.NewExponential(w.retry.InitialBackoff)
	backoff = retry.WithCappedDuration(w.retry.MaximumBackoff, backoff)
	backoff = retry.WithMaxRetries(uint64(w.retry.MaxAttempts-1), backoff)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := w.client.InsertRows(ctx, w.table, rows)
		if err != nil && isRetryableBigQueryError(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("insert %s rows: %w", w.table, err)
	}
	return nil
}

// isRetryableBigQueryError reports whether every failure inside err is
// transient. One permanent row error makes the whole insert permanent.
func isRetryableBigQueryError(err error) bool {
	var (
		multi   cbigquery.MultiError
		putErr  cbigquery.PutMultiError
		rowErr  *cbigquery.RowInsertionError
		apiErr  *googleapi.Error
		grpcErr interface{ GRPCStatus() *status.Status }
	)
	switch {
	case err == nil:
		return false
	case errors.As(err, &multi):
		return allRetryable(multi)
	case errors.As(err, &putErr):
		if len(putErr) == 0 {
			return false
		}
		for _, row := range putErr {
			if !allRetryable(row.Errors) {
				return false
			}
		}
		return true
	case errors.As(err, &rowErr):
		return rowErr != nil && allRetryable(rowErr.Errors)
	case errors.As(err, &apiErr):
		return retryableHTTPStatus[apiErr.Code]
	case errors.As(err, &grpcErr):
		st := grpcErr.GRPCStatus()
		return st != nil && retryableGRPCCode[st.Code()]
	}
	return false
}

func allRetryable(errs []error) bool {
	if len(errs) == 0 {
		return false
	}
	for _, inner := range errs {
		if !isRetryableBigQueryError(inner) {
			return false
		}
	}
	return true
}

var retryableHTTPStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

var retryableGRPCCode = map[codes.Code]bool{
	codes.Aborted:           true,
	codes.DeadlineExceeded:  true,
	codes.Internal:          true,
	codes.ResourceExhausted: true,
	codes.Unavailable:       true,
}

// EncodeJSON turns a decoded event payload into a BigQuery JSON column value.
// Raw JSON passes through untouched; empty input becomes NULL.
func EncodeJSON(payload any) (cbigquery.NullJSON, error) {
	var raw []byte
	switch value := payload.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case cbigquery.NullJSON:
		return value, nil
	case json.RawMessage:
		raw = value
	case []byte:
		raw = value
	default:
		marshaled, err := json.Marshal(payload)
		if err != nil {
			return cbigquery.NullJSON{}, fmt.Errorf("marshal json: %w", err)
		}
		raw = marshaled
	}
	if len(raw) == 0 {
		return cbigquery.NullJSON{}, nil
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
}

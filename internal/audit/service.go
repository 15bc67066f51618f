package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/technosupport/frl-toolbox/internal/codec"
)

const insertTransaction = `
		INSERT INTO cops_transactions (
			event_id, kind, request_id, session_id, npd_id, device_id, os_user_id,
			app_id, app_version, request_timestamp, response_timestamp, upstream_status,
			result, reason_code, client_ip, response_bytes, path, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (event_id) DO NOTHING
	`

func insertArgs(tx Transaction) []interface{} {
	return []interface{}{
		tx.EventID, tx.Kind, tx.RequestID, tx.SessionID, tx.PackageID, tx.DeviceID, tx.OSUserID,
		tx.AppID, tx.AppVersion, tx.RequestTimestamp, tx.ResponseTimestamp, tx.UpstreamStatus,
		tx.Result, tx.ReasonCode, tx.ClientIP, tx.ResponseBytes, tx.Path, tx.CreatedAt,
	}
}

func (s *Service) Write(ctx context.Context, tx Transaction) error {
	// Idempotency: If EventID is empty, generate it.
	if tx.EventID == uuid.Nil {
		tx.EventID = uuid.New()
	}

	_, err := s.DB.ExecContext(ctx, insertTransaction, insertArgs(tx)...)
	if err == nil {
		return nil
	}

	if s.Spool == nil {
		return fmt.Errorf("transaction log write failed: %w", err)
	}
	log.Printf("[audit] DB write failed: %v. Spooling transaction %s", err, tx.EventID)
	if spoolErr := s.Spool.Append(tx); spoolErr != nil {
		log.Printf("[audit] CRITICAL: spool failed for transaction %s: %v", tx.EventID, spoolErr)
		return fmt.Errorf("transaction log critical failure: %w", spoolErr)
	}
	if s.OnSpool != nil {
		s.OnSpool()
	}
	return nil // Swallow DB error if spooled successfully
}

const selectTransactions = `SELECT id, event_id, kind, request_id, npd_id, device_id, app_id,
	      upstream_status, result, reason_code, path, created_at
	      FROM cops_transactions
	      WHERE 1 = 1`

const (
	defaultPageSize = 100
	maxPageSize     = 1000
	exportPageSize  = 1000
	maxExportRows   = 10000 // Safety Bound
)

// ErrInvalidCursor is returned for a cursor Query did not produce.
var ErrInvalidCursor = errors.New("invalid transaction cursor")

// EncodeCursor returns the keyset cursor positioned after tx.
func EncodeCursor(tx Transaction) string {
	return codec.EncodeString(tx.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + tx.ID.String())
}

func decodeCursor(cursor string) (time.Time, uuid.UUID, error) {
	raw, err := codec.DecodeString(cursor)
	if err != nil {
		return time.Time{}, uuid.Nil, ErrInvalidCursor
	}
	ts, id, ok := strings.Cut(raw, "|")
	if !ok {
		return time.Time{}, uuid.Nil, ErrInvalidCursor
	}
	createdAt, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}, uuid.Nil, ErrInvalidCursor
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return time.Time{}, uuid.Nil, ErrInvalidCursor
	}
	return createdAt, parsed, nil
}

// Query implements filters and keyset pagination, newest first. The
// returned cursor is empty when the page is the last one.
func (s *Service) Query(ctx context.Context, f Filter) ([]Transaction, string, error) {
	q := selectTransactions
	var args []interface{}
	add := func(clause string, v interface{}) {
		args = append(args, v)
		q += fmt.Sprintf(clause, len(args))
	}

	if f.PackageID != "" {
		add(" AND npd_id = $%d", f.PackageID)
	}
	if f.DeviceID != "" {
		add(" AND device_id = $%d", f.DeviceID)
	}
	if f.Result != "" {
		add(" AND result = $%d", f.Result)
	}
	if f.Since != nil {
		add(" AND created_at >= $%d", *f.Since)
	}
	if f.Cursor != "" {
		createdAt, id, err := decodeCursor(f.Cursor)
		if err != nil {
			return nil, "", err
		}
		args = append(args, createdAt, id.String())
		q += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", len(args)-1, len(args))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	q += " ORDER BY created_at DESC, id DESC"
	add(" LIMIT $%d", limit)

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var tx Transaction
		if err := rows.Scan(&tx.ID, &tx.EventID, &tx.Kind, &tx.RequestID, &tx.PackageID, &tx.DeviceID,
			&tx.AppID, &tx.UpstreamStatus, &tx.Result, &tx.ReasonCode, &tx.Path, &tx.CreatedAt); err != nil {
			return nil, "", err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	if len(txs) < limit {
		return txs, "", nil
	}
	return txs, EncodeCursor(txs[len(txs)-1]), nil
}

// Export streams matching transactions as JSON lines, following the cursor
// page by page. f.Limit sets the page size.
func (s *Service) Export(ctx context.Context, f Filter, w io.Writer) error {
	if f.Limit <= 0 || f.Limit > maxPageSize {
		f.Limit = exportPageSize
	}
	enc := json.NewEncoder(w)
	count := 0
	for count < maxExportRows {
		txs, cursor, err := s.Query(ctx, f)
		if err != nil {
			return err
		}
		for _, tx := range txs {
			if err := enc.Encode(tx); err != nil {
				return err
			}
			count++
		}
		if cursor == "" {
			return nil
		}
		f.Cursor = cursor
	}
	log.Printf("[audit] Export stopped at %d transactions", count)
	return nil
}

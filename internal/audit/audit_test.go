package audit_test

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/frl-toolbox/internal/audit"
	"github.com/technosupport/frl-toolbox/internal/cops"
)

func newService(t *testing.T) (*audit.Service, sqlmock.Sqlmock, string) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	dir := t.TempDir()
	spool, err := audit.NewSpool(dir, 1)
	require.NoError(t, err)
	return audit.NewService(db, spool), mock, dir
}

func activation() *cops.Request {
	return &cops.Request{
		Kind:      cops.Activation,
		RequestID: "req-1",
		SessionID: "sess-1",
		PackageID: "YzQ5",
		DeviceID:  "dev",
		OSUserID:  "user",
		AppID:     "Photoshop1",
		Timestamp: "2021-06-25T11:18:36.123-0700",
	}
}

func TestNewTransaction(t *testing.T) {
	req := activation()
	resp := cops.NewResponse(req, []byte(`{"ok":true}`))

	tx := audit.NewTransaction(req, resp, 200, nil)
	assert.NotEqual(t, uuid.Nil, tx.EventID)
	assert.Equal(t, "activation", tx.Kind)
	assert.Equal(t, "YzQ5", tx.PackageID)
	assert.Equal(t, audit.ResultSuccess, tx.Result)
	assert.Equal(t, 11, tx.ResponseBytes)
	assert.Equal(t, resp.Timestamp, tx.ResponseTimestamp)

	tx = audit.NewTransaction(req, nil, 0, errors.New("dial tcp: connection refused"))
	assert.Equal(t, audit.ResultFailure, tx.Result)
	assert.Equal(t, "dial tcp: connection refused", tx.ReasonCode)

	tx = audit.NewTransaction(req, resp, 503, nil)
	assert.Equal(t, audit.ResultFailure, tx.Result)

	tx = audit.RejectedTransaction("/x", "10.0.0.1", &cops.BadRequest{Reason: "Unknown endpoint path: /x"})
	assert.Equal(t, audit.ResultBadRequest, tx.Result)
	assert.Equal(t, "10.0.0.1", tx.ClientIP)
	assert.Empty(t, tx.Kind)
	assert.Equal(t, "/x", tx.Path)
}

func TestWrite_Success(t *testing.T) {
	s, mock, dir := newService(t)

	mock.ExpectExec("INSERT INTO cops_transactions").WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.Write(context.Background(), audit.NewTransaction(activation(), nil, 200, nil)))
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err := os.Stat(filepath.Join(dir, "transactions.jsonl"))
	assert.True(t, os.IsNotExist(err))
}

func TestWrite_Failover(t *testing.T) {
	s, mock, dir := newService(t)

	spooled := 0
	s.OnSpool = func() { spooled++ }
	mock.ExpectExec("INSERT INTO cops_transactions").WillReturnError(sql.ErrConnDone)

	// Should NOT return error, but spool
	require.NoError(t, s.Write(context.Background(), audit.NewTransaction(activation(), nil, 200, nil)))
	assert.Equal(t, 1, spooled)

	f, err := os.Open(filepath.Join(dir, "transactions.jsonl"))
	require.NoError(t, err)
	defer f.Close()
	lines := 0
	for sc := bufio.NewScanner(f); sc.Scan(); {
		lines++
		assert.Contains(t, sc.Text(), `"request_id":"req-1"`)
	}
	assert.Equal(t, 1, lines)
}

func TestWrite_NoSpool(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := audit.NewService(db, nil)

	mock.ExpectExec("INSERT INTO cops_transactions").WillReturnError(sql.ErrConnDone)
	assert.ErrorIs(t, s.Write(context.Background(), audit.Transaction{}), sql.ErrConnDone)
}

func TestSpool_Full(t *testing.T) {
	dir := t.TempDir()
	spool, err := audit.NewSpool(dir, 1)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "filler"), make([]byte, 1024*1024), 0600))

	assert.ErrorIs(t, spool.Append(audit.Transaction{}), audit.ErrSpoolFull)
}

func TestReplay_Idempotency(t *testing.T) {
	s, mock, dir := newService(t)
	require.NoError(t, s.Spool.Append(audit.NewTransaction(activation(), nil, 200, nil)))
	require.NoError(t, s.Spool.Append(audit.NewTransaction(activation(), nil, 200, nil)))

	mock.ExpectExec("INSERT INTO cops_transactions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO cops_transactions").WillReturnError(sql.ErrConnDone)

	assert.Equal(t, 1, s.ReplaySpool(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())

	// the failed transaction is back in the spool, the replay file is gone
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "transactions.jsonl", entries[0].Name())

	// nothing left after a successful replay
	mock.ExpectExec("INSERT INTO cops_transactions").WillReturnResult(sqlmock.NewResult(1, 1))
	assert.Equal(t, 1, s.ReplaySpool(context.Background()))
	assert.Equal(t, 0, s.ReplaySpool(context.Background()))
}

var transactionColumns = []string{"id", "event_id", "kind", "request_id", "npd_id", "device_id", "app_id",
	"upstream_status", "result", "reason_code", "path", "created_at"}

func TestQuery(t *testing.T) {
	s, mock, _ := newService(t)
	rows := sqlmock.NewRows(transactionColumns).
		AddRow(uuid.New(), uuid.New(), "activation", "req-1", "YzQ5", "dev", "Photoshop1", 200, "success", "", "", time.Now())

	mock.ExpectQuery(`(?s)SELECT id, event_id.*AND npd_id = \$1 AND result = \$2 ORDER BY created_at DESC, id DESC LIMIT \$3`).
		WithArgs("YzQ5", "success", 100).
		WillReturnRows(rows)

	txs, cursor, err := s.Query(context.Background(), audit.Filter{PackageID: "YzQ5", Result: "success"})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "Photoshop1", txs[0].AppID)
	assert.Empty(t, cursor, "a short page is the last one")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuery_InvalidCursor(t *testing.T) {
	s, _, _ := newService(t)
	_, _, err := s.Query(context.Background(), audit.Filter{Cursor: "not a cursor"})
	assert.ErrorIs(t, err, audit.ErrInvalidCursor)
}

func TestExport_FollowsKeysetAcrossPages(t *testing.T) {
	s, mock, _ := newService(t)

	// rows sharing a timestamp straddle the page boundary
	same := time.Date(2025, 3, 1, 10, 0, 0, 500, time.UTC)
	ids := []uuid.UUID{
		uuid.MustParse("f0000000-0000-0000-0000-000000000000"),
		uuid.MustParse("a0000000-0000-0000-0000-000000000000"),
		uuid.MustParse("50000000-0000-0000-0000-000000000000"),
	}
	first := sqlmock.NewRows(transactionColumns).
		AddRow(ids[0], uuid.New(), "activation", "req-1", "YzQ5", "dev", "", 200, "success", "", "", same).
		AddRow(ids[1], uuid.New(), "activation", "req-2", "YzQ5", "dev", "", 200, "success", "", "", same)
	second := sqlmock.NewRows(transactionColumns).
		AddRow(ids[2], uuid.New(), "deactivation", "req-3", "YzQ5", "dev", "", 200, "success", "", "", same)

	mock.ExpectQuery(`ORDER BY created_at DESC, id DESC LIMIT \$1`).
		WithArgs(2).
		WillReturnRows(first)
	mock.ExpectQuery(`AND \(created_at, id\) < \(\$1, \$2\) ORDER BY created_at DESC, id DESC LIMIT \$3`).
		WithArgs(same, ids[1].String(), 2).
		WillReturnRows(second)

	var buf bytes.Buffer
	require.NoError(t, s.Export(context.Background(), audit.Filter{Limit: 2}, &buf))
	assert.NoError(t, mock.ExpectationsWereMet())

	out := buf.String()
	assert.Equal(t, 3, strings.Count(out, "\n"))
	for _, req := range []string{"req-1", "req-2", "req-3"} {
		assert.Equal(t, 1, strings.Count(out, `"request_id":"`+req+`"`), req)
	}
}

func TestEncodeCursor(t *testing.T) {
	tx := audit.Transaction{
		ID:        uuid.MustParse("a0000000-0000-0000-0000-000000000000"),
		CreatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	s, mock, _ := newService(t)
	mock.ExpectQuery(`\(created_at, id\) < \(\$1, \$2\)`).
		WithArgs(tx.CreatedAt, tx.ID.String(), 100).
		WillReturnRows(sqlmock.NewRows(transactionColumns))

	txs, cursor, err := s.Query(context.Background(), audit.Filter{Cursor: audit.EncodeCursor(tx)})
	require.NoError(t, err)
	assert.Empty(t, txs)
	assert.Empty(t, cursor)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplay_KeepsFileAfterOversizedLine(t *testing.T) {
	s, mock, dir := newService(t)

	line := func(req string) []byte {
		tx := audit.NewTransaction(activation(), nil, 200, nil)
		tx.RequestID = req
		b, err := json.Marshal(audit.FailoverEvent{EventID: tx.EventID.String(), Payload: tx})
		require.NoError(t, err)
		return append(b, '\n')
	}
	var spool bytes.Buffer
	spool.Write(line("before"))
	spool.WriteString(`{"payload":{"reason_code":"` + strings.Repeat("x", 2*1024*1024) + `"}}` + "\n")
	spool.Write(line("after"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "transactions.jsonl"), spool.Bytes(), 0600))

	mock.ExpectExec("INSERT INTO cops_transactions").WillReturnResult(sqlmock.NewResult(1, 1))

	assert.Equal(t, 1, s.ReplaySpool(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "failed_"), entries[0].Name())

	kept, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(kept), `"request_id":"after"`)
}

func TestRetention(t *testing.T) {
	assert.Error(t, audit.CheckRetentionPolicy(1))
	assert.NoError(t, audit.CheckRetentionPolicy(90))

	now := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 1, 30, 0, 0, 0, 0, time.UTC), audit.SafePurgeDate(now, 60))

	s, mock, _ := newService(t)
	mock.ExpectExec("DELETE FROM cops_transactions WHERE created_at <").WillReturnResult(sqlmock.NewResult(0, 3))
	n, err := s.Purge(context.Background(), 90)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = s.Purge(context.Background(), 7)
	assert.Error(t, err)
}

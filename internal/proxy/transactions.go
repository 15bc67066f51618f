package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/technosupport/frl-toolbox/internal/audit"
)

// TransactionSource reads recorded transactions. *audit.Service satisfies it.
type TransactionSource interface {
	Query(ctx context.Context, f audit.Filter) ([]audit.Transaction, string, error)
	Export(ctx context.Context, f audit.Filter, w io.Writer) error
}

type transactionPage struct {
	Transactions []audit.Transaction `json:"transactions"`
	NextCursor   string              `json:"next_cursor,omitempty"`
}

// listTransactions serves one page, newest first.
func listTransactions(src TransactionSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := parseFilter(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		txs, next, err := src.Query(r.Context(), f)
		if errors.Is(err, audit.ErrInvalidCursor) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err != nil {
			log.Printf("[proxy] transaction query failed: %v", err)
			http.Error(w, "transaction query failed", http.StatusInternalServerError)
			return
		}
		if txs == nil {
			txs = []audit.Transaction{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(transactionPage{Transactions: txs, NextCursor: next})
	}
}

// exportTransactions streams every matching transaction as JSON lines.
func exportTransactions(src TransactionSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := parseFilter(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		if err := src.Export(r.Context(), f, w); err != nil {
			// headers are gone once rows were written
			log.Printf("[proxy] transaction export failed: %v", err)
		}
	}
}

func parseFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	f := audit.Filter{
		PackageID: q.Get("npd_id"),
		DeviceID:  q.Get("device_id"),
		Result:    q.Get("result"),
		Cursor:    q.Get("cursor"),
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("since must be an RFC 3339 timestamp")
		}
		f.Since = &since
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, errors.New("limit must be a positive integer")
		}
		f.Limit = n
	}
	return f, nil
}

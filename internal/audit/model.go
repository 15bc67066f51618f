package audit

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/technosupport/frl-toolbox/internal/cops"
)

// Transaction results.
const (
	ResultSuccess    = "success"
	ResultFailure    = "failure"
	ResultBadRequest = "bad_request"
	ResultCached     = "cached"
)

// Transaction is one COPS request forwarded by the proxy and its outcome.
// Api keys and response bodies are never recorded.
type Transaction struct {
	ID                uuid.UUID `json:"id"`       // DB Primary Key
	EventID           uuid.UUID `json:"event_id"` // Idempotency Key
	Kind              string    `json:"kind"`
	RequestID         string    `json:"request_id,omitempty"`
	SessionID         string    `json:"session_id,omitempty"`
	PackageID         string    `json:"npd_id,omitempty"`
	DeviceID          string    `json:"device_id,omitempty"`
	OSUserID          string    `json:"os_user_id,omitempty"`
	AppID             string    `json:"app_id,omitempty"`
	AppVersion        string    `json:"app_version,omitempty"`
	RequestTimestamp  string    `json:"request_timestamp,omitempty"`
	ResponseTimestamp string    `json:"response_timestamp,omitempty"`
	UpstreamStatus    int       `json:"upstream_status"`
	Result            string    `json:"result"`
	ReasonCode        string    `json:"reason_code,omitempty"`
	Path              string    `json:"path,omitempty"`
	ClientIP          string    `json:"client_ip,omitempty"`
	ResponseBytes     int       `json:"response_bytes"`
	CreatedAt         time.Time `json:"created_at"`
}

// FailoverEvent wrapper for JSONL spooling
type FailoverEvent struct {
	EventID   string      `json:"event_id"`
	Payload   Transaction `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Filter for querying
type Filter struct {
	PackageID string
	DeviceID  string
	Result    string
	Since     *time.Time
	Limit     int
	Cursor    string // from EncodeCursor
}

// Service records transactions in postgres and spools them locally while
// the database is unreachable.
type Service struct {
	DB    *sql.DB
	Spool *Spool

	// Optional observers, used for metrics.
	OnSpool  func()
	OnReplay func(n int)
}

func NewService(db *sql.DB, spool *Spool) *Service {
	return &Service{DB: db, Spool: spool}
}

// NewTransaction builds the record of an exchange. resp is nil when the
// upstream call failed, err is the failure.
func NewTransaction(req *cops.Request, resp *cops.Response, status int, err error) Transaction {
	tx := Transaction{
		EventID:          uuid.New(),
		Kind:             strings.ToLower(req.Kind.String()),
		RequestID:        req.RequestID,
		SessionID:        req.SessionID,
		PackageID:        req.PackageID,
		DeviceID:         req.DeviceID,
		OSUserID:         req.OSUserID,
		AppID:            req.AppID,
		AppVersion:       req.AppVersion,
		RequestTimestamp: req.Timestamp,
		UpstreamStatus:   status,
		Result:           ResultSuccess,
		CreatedAt:        time.Now().UTC(),
	}
	if resp != nil {
		tx.ResponseTimestamp = resp.Timestamp
		tx.ResponseBytes = len(resp.Body)
	}
	if err != nil {
		tx.Result = ResultFailure
		tx.ReasonCode = err.Error()
	} else if status >= 400 {
		tx.Result = ResultFailure
		tx.ReasonCode = "upstream_status"
	}
	return tx
}

// RejectedTransaction records a request the proxy refused to forward. The
// kind is unknown at that point; the path is kept with the reason.
func RejectedTransaction(path, clientIP string, err error) Transaction {
	return Transaction{
		EventID:    uuid.New(),
		Path:       path,
		Result:     ResultBadRequest,
		ReasonCode: err.Error(),
		ClientIP:   clientIP,
		CreatedAt:  time.Now().UTC(),
	}
}

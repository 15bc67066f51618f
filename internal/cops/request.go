package cops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	ActivationPath   = "/asnp/frl_connected/values/v2"
	DeactivationPath = "/asnp/frl_connected/v1"
)

const (
	headerAPIKey    = "X-Api-Key"
	headerRequestID = "X-Request-Id"
	headerSessionID = "X-Session-Id"
)

// Kind distinguishes the two COPS calls.
type Kind int

const (
	Activation Kind = iota
	Deactivation
)

func (k Kind) String() string {
	if k == Deactivation {
		return "Deactivation"
	}
	return "Activation"
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Request holds the values of an FRL Online call, collected from its
// headers, query and body. Timestamp is stamped locally at decode time so
// requests can be ordered even without a device timestamp.
type Request struct {
	Kind         Kind   `json:"kind"`
	APIKey       string `json:"apiKey"`
	RequestID    string `json:"requestId"`
	SessionID    string `json:"sessionId,omitempty"`
	PackageID    string `json:"npdId"`
	AsnpID       string `json:"asnpTemplateId,omitempty"`
	DeviceID     string `json:"deviceId"`
	DeviceDate   string `json:"deviceDate,omitempty"`
	IsVDI        bool   `json:"isVdi"`
	IsVirtual    bool   `json:"isVirtual"`
	OSName       string `json:"osName,omitempty"`
	OSVersion    string `json:"osVersion,omitempty"`
	OSUserID     string `json:"osUserId"`
	IsDomainUser bool   `json:"isDomainUser"`
	AppID        string `json:"appId,omitempty"`
	AppVersion   string `json:"appVersion,omitempty"`
	NglVersion   string `json:"nglVersion,omitempty"`
	Timestamp    string `json:"timestamp"`
}

// FromNetwork decodes a request received by the proxy. body is the fully
// read request body; it is ignored for deactivation.
func FromNetwork(r *http.Request, body []byte) (*Request, error) {
	switch r.URL.Path {
	case ActivationPath:
		if r.Method != http.MethodPost {
			return nil, badRequest("Activation method must be POST")
		}
		return fromActivation(r.Header, body)
	case DeactivationPath:
		if r.Method != http.MethodDelete {
			return nil, badRequest("Deactivation method must be DELETE")
		}
		return fromDeactivation(r.Header, r.URL.Query())
	default:
		return nil, badRequest("Unknown endpoint path: " + r.URL.Path)
	}
}

func fromActivation(h http.Header, body []byte) (*Request, error) {
	req := &Request{Kind: Activation, Timestamp: CurrentTimestamp()}
	if err := req.readHeaders(h); err != nil {
		return nil, err
	}

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil || len(doc) == 0 {
		return nil, badRequest("Malformed activation request body")
	}
	if err := requireStrings(doc,
		field{"npdId", &req.PackageID},
		field{"asnpTemplateId", &req.AsnpID},
	); err != nil {
		return nil, err
	}

	if _, ok := doc["appDetails"]; !ok {
		return nil, badRequest("Missing appDetails object in request.")
	}
	app, _ := doc["appDetails"].(map[string]any)
	if err := requireStrings(app,
		field{"nglAppId", &req.AppID},
		field{"nglAppVersion", &req.AppVersion},
		field{"nglLibVersion", &req.NglVersion},
	); err != nil {
		return nil, err
	}

	if _, ok := doc["deviceDetails"]; !ok {
		return nil, badRequest("Missing deviceDetails object in request.")
	}
	device, _ := doc["deviceDetails"].(map[string]any)
	if err := requireStrings(device,
		field{"currentDate", &req.DeviceDate},
		field{"deviceId", &req.DeviceID},
		field{"osUserId", &req.OSUserID},
		field{"osName", &req.OSName},
		field{"osVersion", &req.OSVersion},
	); err != nil {
		return nil, err
	}
	req.IsVDI = optionalBool(device, "enableVdiMarkerExists")
	req.IsDomainUser = optionalBool(device, "isOsUserAccountInDomain")
	req.IsVirtual = optionalBool(device, "isVirtualEnvironment")
	return req, nil
}

func fromDeactivation(h http.Header, q url.Values) (*Request, error) {
	req := &Request{Kind: Deactivation, Timestamp: CurrentTimestamp()}
	if err := req.readHeaders(h); err != nil {
		return nil, err
	}
	for _, p := range []field{
		{"npdId", &req.PackageID},
		{"deviceId", &req.DeviceID},
		{"osUserId", &req.OSUserID},
	} {
		if !q.Has(p.key) {
			return nil, badRequest(fmt.Sprintf("Missing '%s' parameter", p.key))
		}
		*p.dest = q.Get(p.key)
	}
	req.IsVDI = strings.EqualFold(q.Get("enableVdiMarkerExists"), "true")
	return req, nil
}

func (r *Request) readHeaders(h http.Header) error {
	r.APIKey = h.Get(headerAPIKey)
	r.RequestID = h.Get(headerRequestID)
	r.SessionID = h.Get(headerSessionID)
	if r.APIKey == "" || r.RequestID == "" {
		return badRequest("Missing required header field")
	}
	if r.Kind == Activation && r.SessionID == "" {
		return badRequest("Missing required header field")
	}
	return nil
}

// ToNetwork builds the request that submits r to the server at
// scheme://host.
func (r *Request) ToNetwork(ctx context.Context, scheme, host string) (*http.Request, error) {
	if r.Kind == Deactivation {
		return r.toDeactivation(ctx, scheme, host)
	}
	return r.toActivation(ctx, scheme, host)
}

type activationBody struct {
	NpdID          string        `json:"npdId"`
	AsnpTemplateID string        `json:"asnpTemplateId"`
	AppDetails     appDetails    `json:"appDetails"`
	DeviceDetails  deviceDetails `json:"deviceDetails"`
}

type appDetails struct {
	NglAppID      string `json:"nglAppId"`
	NglAppVersion string `json:"nglAppVersion"`
	NglLibVersion string `json:"nglLibVersion"`
}

type deviceDetails struct {
	CurrentDate             string `json:"currentDate"`
	DeviceID                string `json:"deviceId"`
	EnableVdiMarkerExists   bool   `json:"enableVdiMarkerExists"`
	IsOsUserAccountInDomain bool   `json:"isOsUserAccountInDomain"`
	IsVirtualEnvironment    bool   `json:"isVirtualEnvironment"`
	OsName                  string `json:"osName"`
	OsUserID                string `json:"osUserId"`
	OsVersion               string `json:"osVersion"`
}

func (r *Request) toActivation(ctx context.Context, scheme, host string) (*http.Request, error) {
	body, err := json.Marshal(activationBody{
		NpdID:          r.PackageID,
		AsnpTemplateID: r.AsnpID,
		AppDetails: appDetails{
			NglAppID:      r.AppID,
			NglAppVersion: r.AppVersion,
			NglLibVersion: r.NglVersion,
		},
		DeviceDetails: deviceDetails{
			CurrentDate:             r.DeviceDate,
			DeviceID:                r.DeviceID,
			EnableVdiMarkerExists:   r.IsVDI,
			IsOsUserAccountInDomain: r.IsDomainUser,
			IsVirtualEnvironment:    r.IsVirtual,
			OsName:                  r.OSName,
			OsUserID:                r.OSUserID,
			OsVersion:               r.OSVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode activation body: %w", err)
	}
	u := url.URL{Scheme: scheme, Host: host, Path: ActivationPath}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Host = host
	req.Header.Set(headerAPIKey, r.APIKey)
	req.Header.Set(headerSessionID, r.SessionID)
	req.Header.Set(headerRequestID, r.RequestID)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent())
	return req, nil
}

func (r *Request) toDeactivation(ctx context.Context, scheme, host string) (*http.Request, error) {
	// parameter order matches what NGL clients send
	query := strings.Join([]string{
		"npdId=" + url.QueryEscape(r.PackageID),
		"deviceId=" + url.QueryEscape(r.DeviceID),
		"osUserId=" + url.QueryEscape(r.OSUserID),
		"enableVdiMarkerExists=" + strconv.FormatBool(r.IsVDI),
	}, "&")
	u := url.URL{Scheme: scheme, Host: host, Path: DeactivationPath, RawQuery: query}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Host = host
	req.Header.Set(headerAPIKey, r.APIKey)
	req.Header.Set(headerRequestID, r.RequestID)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent())
	return req, nil
}

// field binds a wire name to the Request member it fills.
type field struct {
	key  string
	dest *string
}

// requireStrings fills every field from obj, failing on the first one that
// is absent or not a string.
func requireStrings(obj map[string]any, fields ...field) error {
	for _, f := range fields {
		s, ok := obj[f.key].(string)
		if !ok {
			return badRequest(fmt.Sprintf("Missing %s field in request.", f.key))
		}
		*f.dest = s
	}
	return nil
}

func optionalBool(obj map[string]any, key string) bool {
	b, _ := obj[key].(bool)
	return b
}

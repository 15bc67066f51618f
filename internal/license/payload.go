package license

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/technosupport/frl-toolbox/internal/codec"
)

// censusCodeLength is the length of a well-formed isolated challenge code.
const censusCodeLength = 18

// payloadInfo is what a license payload contributes to a record.
type payloadInfo struct {
	mode      DeploymentMode
	expiry    string
	hasExpiry bool
}

// applyLicenseData is the second build phase: it decodes the signed payload
// of data and fills in the mode and expiry of oc.
func (d *Decoder) applyLicenseData(ctx context.Context, oc *OperatingConfig, data map[string]any) error {
	info, err := d.decodePayload(data)
	if err != nil {
		return err
	}
	oc.Mode = info.mode
	if info.hasExpiry {
		oc.ExpiryDate = info.expiry
		return nil
	}
	oc.ExpiryDate = ServerControlled
	if d.platform != nil {
		if date, err := d.CachedExpiry(ctx, *oc); err == nil {
			oc.ExpiryDate = date
		}
	}
	return nil
}

func (d *Decoder) decodePayload(data map[string]any) (payloadInfo, error) {
	raw, ok := data["payload"].(string)
	if !ok {
		return payloadInfo{}, MissingFieldError("payload")
	}
	if d.cache != nil {
		if info, ok := d.cache.get(raw); ok {
			return info, nil
		}
	}

	payload, err := codec.DecodeJSONMap(raw)
	if err != nil {
		return payloadInfo{}, fmt.Errorf("payload: %w", err)
	}
	mode, err := decodeMode(payload)
	if err != nil {
		return payloadInfo{}, err
	}
	info := payloadInfo{mode: mode}
	if ts, ok := lookupString(payload, "asnpData", "adobeCertSignedValues", "values", "licenseExpiryTimestamp"); ok {
		date, err := dateFromEpochMillis(ts, d.location)
		if err != nil {
			return payloadInfo{}, err
		}
		info.expiry = date
		info.hasExpiry = true
	}

	if d.cache != nil {
		d.cache.add(raw, info)
	}
	return info, nil
}

func decodeMode(payload map[string]any) (DeploymentMode, error) {
	mode, ok := payload["deploymentMode"].(string)
	if !ok {
		return DeploymentMode{}, MissingFieldError("deploymentMode")
	}
	switch mode {
	case "FRL_CONNECTED":
		server, ok := payload["profileServerUrl"].(string)
		if !ok || server == "" {
			server = DefaultOnlineServer
		}
		return FrlOnline(server), nil
	case "FRL_LAN":
		server, ok := payload["profileServerUrl"].(string)
		if !ok {
			return DeploymentMode{}, MissingFieldError("profileServerUrl")
		}
		return FrlLan(server), nil
	case "FRL_ISOLATED":
		return decodeIsolated(payload)
	case "NAMED_USER_EDUCATION_LAB", "SDL":
		return Sdl(), nil
	default:
		return Unknown(mode), nil
	}
}

// decodeIsolated reads the census codes bound into an isolated license.
// A first code longer than a census code marks the offline variant, which
// upstream encodes the same way.
func decodeIsolated(payload map[string]any) (DeploymentMode, error) {
	const valuesPath = "asnpData.customerCertSignedValues.values"
	raw, ok := lookupString(payload, "asnpData", "customerCertSignedValues", "values")
	if !ok {
		return DeploymentMode{}, MissingFieldError(valuesPath)
	}
	values, err := codec.DecodeJSONMap(raw)
	if err != nil {
		return DeploymentMode{}, fmt.Errorf("%s: %w", valuesPath, err)
	}
	list, ok := values["challengeCodes"].([]any)
	if !ok || len(list) == 0 {
		return DeploymentMode{}, MissingFieldError("challengeCodes")
	}
	codes := make([]string, 0, len(list))
	for _, v := range list {
		code, ok := v.(string)
		if !ok {
			return DeploymentMode{}, MissingFieldError("challengeCodes")
		}
		codes = append(codes, code)
	}

	if utf8.RuneCountInString(codes[0]) > censusCodeLength {
		return FrlOffline(), nil
	}
	for i, code := range codes {
		codes[i] = formatCensusCode(code)
	}
	return FrlIsolated(codes), nil
}

// formatCensusCode groups an 18 character code as 6-6-6.
func formatCensusCode(code string) string {
	r := []rune(code)
	if len(r) != censusCodeLength {
		return InvalidCensusCode
	}
	return strings.Join([]string{string(r[0:6]), string(r[6:12]), string(r[12:18])}, "-")
}

func dateFromEpochMillis(ts string, loc *time.Location) (string, error) {
	ms, err := strconv.ParseInt(strings.TrimSpace(ts), 10, 64)
	if err != nil {
		return "", FormatError(fmt.Sprintf("timestamp '%s' is not epoch milliseconds", ts))
	}
	if loc == nil {
		loc = time.Local
	}
	return formatDate(time.UnixMilli(ms).In(loc)), nil
}

// lookup walks nested JSON objects.
func lookup(m map[string]any, path ...string) (any, bool) {
	var cur any = m
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func lookupString(m map[string]any, path ...string) (string, bool) {
	v, ok := lookup(m, path...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

package license

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/technosupport/frl-toolbox/internal/codec"
)

// Platform is the pair of platform capabilities the decoder can use to
// enrich its output. Both are optional for correctness.
type Platform interface {
	DeviceID(ctx context.Context) (string, error)
	SavedCredential(ctx context.Context, key string) (string, bool, error)
}

// DecoderConfig configures a Decoder. The zero value decodes dates in the
// local time zone without a cache or platform.
type DecoderConfig struct {
	Location  *time.Location
	Platform  Platform
	CacheSize int // 0 disables the payload cache
}

// Decoder turns license artifacts into OperatingConfig records. It holds no
// per-call state and is safe for concurrent use.
type Decoder struct {
	location *time.Location
	platform Platform
	cache    *PayloadCache
}

func NewDecoder(cfg DecoderConfig) *Decoder {
	d := &Decoder{location: cfg.Location, platform: cfg.Platform}
	if d.location == nil {
		d.location = time.Local
	}
	if cfg.CacheSize > 0 {
		d.cache = NewPayloadCache(cfg.CacheSize)
	}
	return d
}

// ReportKind tells the presentation layer how records were obtained.
type ReportKind string

const (
	KindPreconditioning  ReportKind = "preconditioning"
	KindOperatingConfigs ReportKind = "operating-configs"
)

// Report is the result of decoding a path.
type Report struct {
	Source  string            `json:"source"`
	Kind    ReportKind        `json:"kind"`
	Configs []OperatingConfig `json:"configs"`
}

// DecodePath decodes a directory or a single license artifact.
func (d *Decoder) DecodePath(ctx context.Context, path string) (*Report, error) {
	info, err := NewFileInfo(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir {
		return d.DecodeDirectory(ctx, info.Pathname)
	}
	return d.DecodeFile(ctx, info)
}

// DecodeFile dispatches on the extension of info.
func (d *Decoder) DecodeFile(ctx context.Context, info FileInfo) (*Report, error) {
	switch {
	case strings.EqualFold(info.Extension, ExtPreconditioning):
		ocs, err := d.DecodePreconditioningFile(ctx, info)
		if err != nil {
			return nil, err
		}
		return &Report{Source: info.Pathname, Kind: KindPreconditioning, Configs: ocs}, nil
	case strings.EqualFold(info.Extension, ExtCCP):
		ocs, err := d.DecodeCCPFile(ctx, info)
		if err != nil {
			return nil, err
		}
		return &Report{Source: info.Pathname, Kind: KindPreconditioning, Configs: ocs}, nil
	case strings.EqualFold(info.Extension, ExtOperatingConfig):
		oc, err := d.DecodeLicenseFile(ctx, info)
		if err != nil {
			return nil, err
		}
		return &Report{Source: info.Pathname, Kind: KindOperatingConfigs, Configs: []OperatingConfig{oc}}, nil
	}
	return nil, InvalidFilenameError(info.Pathname, "not a license file")
}

// DecodeLicenseFile decodes a single .operatingconfig file.
func (d *Decoder) DecodeLicenseFile(ctx context.Context, info FileInfo) (OperatingConfig, error) {
	oc, err := skeleton(info)
	if err != nil {
		return OperatingConfig{}, err
	}
	data, err := readFile(info.Pathname)
	if err != nil {
		return OperatingConfig{}, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return OperatingConfig{}, PathError(info.Pathname, fmt.Errorf("%w: %v", ErrFormat, err))
	}
	if err := d.applyLicenseData(ctx, &oc, doc); err != nil {
		return OperatingConfig{}, PathError(info.Pathname, err)
	}
	return oc, nil
}

// DecodePreconditioningFile decodes an ngl-preconditioning-data.json bundle.
func (d *Decoder) DecodePreconditioningFile(ctx context.Context, info FileInfo) ([]OperatingConfig, error) {
	data, err := readFile(info.Pathname)
	if err != nil {
		return nil, err
	}
	ocs, err := d.DecodePreconditioning(ctx, data)
	if err != nil {
		return nil, PathError(info.Pathname, err)
	}
	return ocs, nil
}

type preconditioningDoc struct {
	OperatingConfigs []map[string]any `json:"operatingConfigs"`
}

// DecodePreconditioning decodes the JSON of a preconditioning bundle. The
// result is ordered by app id; entries with equal ids keep bundle order.
func (d *Decoder) DecodePreconditioning(ctx context.Context, data []byte) ([]OperatingConfig, error) {
	var doc preconditioningDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: preconditioning data: %v", ErrFormat, err)
	}

	result := make([]OperatingConfig, 0, len(doc.OperatingConfigs))
	for i, entry := range doc.OperatingConfigs {
		oc, err := d.decodePreconditioningEntry(ctx, entry)
		if err != nil {
			return nil, fmt.Errorf("operatingConfigs[%d]: %w", i, err)
		}
		result = append(result, oc)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].AppID < result[j].AppID
	})
	return result, nil
}

func (d *Decoder) decodePreconditioningEntry(ctx context.Context, entry map[string]any) (OperatingConfig, error) {
	name, ok := entry["name"].(string)
	if !ok {
		return OperatingConfig{}, MissingFieldError("name")
	}
	ext, ok := entry["extension"].(string)
	if !ok {
		return OperatingConfig{}, MissingFieldError("extension")
	}
	oc, err := skeleton(VirtualFileInfo(name, ext))
	if err != nil {
		return OperatingConfig{}, err
	}
	content, ok := entry["content"].(string)
	if !ok {
		return oc, nil
	}
	data, err := codec.DecodeJSONMap(content)
	if err != nil {
		return OperatingConfig{}, fmt.Errorf("%s: content: %w", oc.Filename, err)
	}
	if err := d.applyLicenseData(ctx, &oc, data); err != nil {
		return OperatingConfig{}, fmt.Errorf("%s: %w", oc.Filename, err)
	}
	return oc, nil
}

// CachedExpiry looks up the locally cached activation of oc in the platform
// credential store and returns its expiry date.
func (d *Decoder) CachedExpiry(ctx context.Context, oc OperatingConfig) (string, error) {
	if d.platform == nil {
		return "", fmt.Errorf("%w: no credential store configured", ErrNotFound)
	}
	value, ok, err := d.platform.SavedCredential(ctx, oc.AppKey().CredentialKey())
	if err != nil {
		return "", fmt.Errorf("%w: credential store: %v", ErrIO, err)
	}
	if !ok {
		return "", fmt.Errorf("%w: no cached activation for %s", ErrNotFound, oc.AppID)
	}
	cred, err := decodeCredential(value)
	if err != nil {
		return "", err
	}
	ts, ok := lookupString(cred, "licenseExpiryTimestamp")
	if !ok {
		ts, ok = lookupString(cred, "asnpData", "adobeCertSignedValues", "values", "licenseExpiryTimestamp")
	}
	if !ok {
		return "", MissingFieldError("licenseExpiryTimestamp")
	}
	return dateFromEpochMillis(ts, d.location)
}

// decodeCredential accepts a cached credential stored as plain or
// base64-wrapped JSON.
func decodeCredential(value string) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(value), &m); err == nil && m != nil {
		return m, nil
	}
	return codec.DecodeJSONMap(strings.TrimSpace(value))
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return data, nil
}

package license_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/technosupport/frl-toolbox/internal/codec"
	"github.com/technosupport/frl-toolbox/internal/license"
)

const (
	photoshopStem   = "UGhvdG9zaG9wMXt9MjAxODA3MjAwNA-ODU0YjU5OGQtOTE1Ni00NDZiLWFlZDYtMGQ1ZGM2ZmVhZDBi-80"
	illustratorStem = "SWxsdXN0cmF0b3Ixe30yMDE4MDcyMDA0-MmE0N2E4M2UtNjFmNS00NmM2LWE0N2ItOGE0Njc2MTliOTI5-80"

	// 2025-01-01T12:00:00Z
	expiryMillis = "1735732800000"
)

func utcDecoder() *license.Decoder {
	return license.NewDecoder(license.DecoderConfig{Location: time.UTC})
}

func encodeJSON(t *testing.T, v any) string {
	t.Helper()
	s, err := codec.EncodeJSON(v)
	require.NoError(t, err)
	return s
}

// licenseDoc wraps payload the way an operating config file does.
func licenseDoc(t *testing.T, payload map[string]any) map[string]any {
	return map[string]any{
		"ocSpecVersion": "1.0.0",
		"signatures":    []any{},
		"payload":       encodeJSON(t, payload),
	}
}

func connectedPayload() map[string]any {
	return map[string]any{
		"npdId":          "ODU0YjU5OGQtOTE1Ni00NDZiLWFlZDYtMGQ1ZGM2ZmVhZDBi",
		"nglAppId":       "Photoshop1",
		"deploymentMode": "FRL_CONNECTED",
	}
}

func isolatedPayload(t *testing.T, codes []string) map[string]any {
	values := map[string]any{
		"npdId":          "MmE0N2E4M2UtNjFmNS00NmM2LWE0N2ItOGE0Njc2MTliOTI5",
		"challengeCodes": codes,
	}
	return map[string]any{
		"deploymentMode": "FRL_ISOLATED",
		"asnpData": map[string]any{
			"customerCertSignedValues": map[string]any{
				"values": encodeJSON(t, values),
			},
			"adobeCertSignedValues": map[string]any{
				"values": map[string]any{"licenseExpiryTimestamp": expiryMillis},
			},
		},
	}
}

func stemFor(appID, group, packageID string, p license.Precedence) string {
	return license.FormatFilename(license.Fields{
		AppKey:     license.AppKey{AppID: appID, CertGroupID: group},
		PackageID:  packageID,
		Precedence: p,
	})
}

func writeJSON(t *testing.T, path string, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func writeLicense(t *testing.T, dir, stem string, payload map[string]any) string {
	t.Helper()
	return writeJSON(t, filepath.Join(dir, stem+".operatingconfig"), licenseDoc(t, payload))
}

// bundle builds a preconditioning document from stem -> payload pairs; a
// nil payload produces an entry without content.
func bundle(t *testing.T, entries []bundleEntry) []byte {
	var ocs []any
	for _, e := range entries {
		m := map[string]any{"name": e.stem, "extension": "operatingconfig"}
		if e.payload != nil {
			m["content"] = encodeJSON(t, licenseDoc(t, e.payload))
		}
		ocs = append(ocs, m)
	}
	data, err := json.Marshal(map[string]any{"operatingConfigs": ocs})
	require.NoError(t, err)
	return data
}

type bundleEntry struct {
	stem    string
	payload map[string]any
}

func pkgConfigXML(doc []byte) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<CCPPackage>
  <PackageName>FRL Test</PackageName>
  <Preconditioning>` + string(doc) + `</Preconditioning>
</CCPPackage>`
}

func ccpArchive(t *testing.T, xmlText string) []byte {
	return zipWith(t, "Build/PkgConfig.xml", xmlText, "Build/Setup.exe", "MZ")
}

// zipWith builds an archive from name, content pairs.
func zipWith(t *testing.T, pairs ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i := 0; i+1 < len(pairs); i += 2 {
		w, err := zw.Create(pairs[i])
		require.NoError(t, err)
		_, err = w.Write([]byte(pairs[i+1]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// fakePlatform is a test double for both platform capabilities.
type fakePlatform struct {
	deviceID    string
	credentials map[string]string
	err         error
}

func (f *fakePlatform) DeviceID(ctx context.Context) (string, error) {
	return f.deviceID, f.err
}

func (f *fakePlatform) SavedCredential(ctx context.Context, key string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	v, ok := f.credentials[key]
	return v, ok, nil
}

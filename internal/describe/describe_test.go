package describe_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/technosupport/frl-toolbox/internal/describe"
	"github.com/technosupport/frl-toolbox/internal/license"
)

func photoshop() license.OperatingConfig {
	return license.OperatingConfig{
		Filename:        "UGhvdG9zaG9wMXt9MjAxODA3MjAwNA-ODU0YjU5OGQtOTE1Ni00NDZiLWFlZDYtMGQ1ZGM2ZmVhZDBi-80.operatingconfig",
		AppID:           "Photoshop1",
		CertGroupID:     "2018072004",
		NpdID:           "ODU0YjU5OGQtOTE1Ni00NDZiLWFlZDYtMGQ1ZGM2ZmVhZDBi",
		PackageID:       "854b598d-9156-446b-aed6-0d5dc6fead0b",
		Precedence:      license.CCSingleApp,
		Mode:            license.FrlOnline(license.DefaultOnlineServer),
		ExpiryDate:      license.ServerControlled,
		InstallDatetime: "2021-06-25 11:18:36 PDT",
	}
}

func illustrator() license.OperatingConfig {
	oc := photoshop()
	oc.Filename = "SWxsdXN0cmF0b3Ixe30yMDE4MDcyMDA0-ODU0YjU5OGQtOTE1Ni00NDZiLWFlZDYtMGQ1ZGM2ZmVhZDBi-80.operatingconfig"
	oc.AppID = "Illustrator1"
	return oc
}

func render(t *testing.T, report *license.Report, opts describe.Options) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, describe.Render(context.Background(), &buf, report, opts))
	return buf.String()
}

func TestRender_OperatingConfigs(t *testing.T) {
	report := &license.Report{Kind: license.KindOperatingConfigs, Configs: []license.OperatingConfig{illustrator(), photoshop()}}
	want := `License files for npdId: ODU0YjU5OGQtOTE1Ni00NDZiLWFlZDYtMGQ1ZGM2ZmVhZDBi:
    License type: FRL Online (server: http://lcs-cops.adobe.io)
    License expiry date: controlled by server
    Precedence: 80 (CC Single App)
Filenames (shown with '...' where the npdId appears):
 1: SWxsdXN0cmF0b3Ixe30yMDE4MDcyMDA0-...-80.operatingconfig
    App ID: Illustrator1
    Install date: 2021-06-25 11:18:36 PDT
 2: UGhvdG9zaG9wMXt9MjAxODA3MjAwNA-...-80.operatingconfig
    App ID: Photoshop1
    Install date: 2021-06-25 11:18:36 PDT
`
	assert.Equal(t, want, render(t, report, describe.Options{}))
}

func TestRender_Verbose(t *testing.T) {
	oc := photoshop()
	oc.Mode = license.FrlIsolated([]string{"123456-789012-345678", "abcdef-ghijkl-mnopqr"})
	oc.ExpiryDate = "2025-01-01"
	report := &license.Report{Kind: license.KindOperatingConfigs, Configs: []license.OperatingConfig{oc}}

	out := render(t, report, describe.Options{Verbosity: 1})
	assert.Contains(t, out, "    Package UUID: 854b598d-9156-446b-aed6-0d5dc6fead0b\n")
	assert.Contains(t, out, "    License type: FRL Isolated (2 codes)\n")
	assert.Contains(t, out, "    Census codes: 123456-789012-345678, abcdef-ghijkl-mnopqr\n")
	assert.Contains(t, out, "    App ID: Photoshop1, Certificate Group: 2018072004\n")
	assert.NotContains(t, out, "cached activation")

	oc.Mode = license.FrlIsolated([]string{"123456-789012-345678"})
	report.Configs[0] = oc
	out = render(t, report, describe.Options{Verbosity: 1})
	assert.Contains(t, out, "    Census code: 123456-789012-345678\n")
}

func TestRender_CachedActivation(t *testing.T) {
	report := &license.Report{Kind: license.KindOperatingConfigs, Configs: []license.OperatingConfig{illustrator(), photoshop()}}
	lookup := func(ctx context.Context, oc license.OperatingConfig) (string, error) {
		if oc.AppID == "Photoshop1" {
			return "2025-01-01", nil
		}
		return "", errors.New("none")
	}

	out := render(t, report, describe.Options{Verbosity: 2, CachedExpiry: lookup})
	assert.Contains(t, out, "    Install date: 2021-06-25 11:18:36 PDT\n    No cached activation\n 2:")
	assert.True(t, strings.HasSuffix(out, "    Cached activation expires: 2025-01-01\n"))

	out = render(t, report, describe.Options{Verbosity: 2})
	assert.Equal(t, 2, strings.Count(out, "No cached activation"))
}

func TestRender_Preconditioning(t *testing.T) {
	report := &license.Report{Kind: license.KindPreconditioning, Configs: []license.OperatingConfig{illustrator(), photoshop()}}
	want := `Preconditioning data for npdId: ODU0YjU5OGQtOTE1Ni00NDZiLWFlZDYtMGQ1ZGM2ZmVhZDBi
    License type: FRL Online (server: http://lcs-cops.adobe.io)
    License expiry date: controlled by server
    Precedence: 80 (CC Single App)
Application Licenses:
 1: App ID: Illustrator1
 2: App ID: Photoshop1
`
	assert.Equal(t, want, render(t, report, describe.Options{Format: describe.FormatText}))
}

func TestRender_JSON(t *testing.T) {
	report := &license.Report{Source: "/tmp/x", Kind: license.KindOperatingConfigs, Configs: []license.OperatingConfig{photoshop()}}
	out := render(t, report, describe.Options{Format: describe.FormatJSON})

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "operating-configs", decoded["kind"])
	configs := decoded["configs"].([]any)
	require.Len(t, configs, 1)
	first := configs[0].(map[string]any)
	assert.Equal(t, "Photoshop1", first["appId"])
	assert.Equal(t, float64(80), first["precedence"])
	assert.Equal(t, "FRL_ONLINE", first["mode"].(map[string]any)["kind"])
}

func TestRender_Table(t *testing.T) {
	report := &license.Report{Kind: license.KindOperatingConfigs, Configs: []license.OperatingConfig{illustrator(), photoshop()}}
	out := render(t, report, describe.Options{Format: describe.FormatTable})
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "APP ID")
	assert.Contains(t, lines[1], "Illustrator1")
	assert.Contains(t, lines[2], "FRL Online (server: http://lcs-cops.adobe.io)")
	assert.NotContains(t, lines[0], "CERTIFICATE GROUP")

	out = render(t, report, describe.Options{Format: describe.FormatTable, Verbosity: 1})
	assert.Contains(t, out, "CERTIFICATE GROUP")
	assert.Contains(t, out, "854b598d-9156-446b-aed6-0d5dc6fead0b")
}

func TestFormat_Set(t *testing.T) {
	var f describe.Format
	assert.Equal(t, "text", f.String())
	require.NoError(t, f.Set("JSON"))
	assert.Equal(t, describe.FormatJSON, f)
	assert.Error(t, f.Set("yaml"))
	assert.Equal(t, "format", f.Type())

	var unset *describe.Format
	assert.Equal(t, "text", unset.String())

	err := describe.Render(context.Background(), &bytes.Buffer{}, &license.Report{}, describe.Options{Format: "yaml"})
	assert.Error(t, err)
}

package license

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PreconditioningFilename is the bundle file looked up in a directory.
const PreconditioningFilename = "ngl-preconditioning-data.json"

// Extensions of the three license artifact formats.
const (
	ExtOperatingConfig = "operatingconfig"
	ExtPreconditioning = "json"
	ExtCCP             = "ccp"
)

// Sentinel values used until the payload has been decoded.
const (
	UnknownValue        = "Unknown"
	ServerControlled    = "controlled by server"
	InvalidCensusCode   = "invalid-census-code"
	DefaultOnlineServer = "http://lcs-cops.adobe.io"
)

// OperatingConfig is the normalized description of one license file or
// preconditioning entry. Mode and ExpiryDate are filled in once the payload
// has been decoded.
type OperatingConfig struct {
	Filename        string         `json:"filename"`
	AppID           string         `json:"appId"`
	CertGroupID     string         `json:"certGroupId"`
	NpdID           string         `json:"npdId"`
	PackageID       string         `json:"packageId"`
	Precedence      Precedence     `json:"precedence"`
	Mode            DeploymentMode `json:"mode"`
	ExpiryDate      string         `json:"expiryDate"`
	InstallDatetime string         `json:"installDatetime"`
}

// AppKey returns the app id / cert group pair of the record.
func (oc OperatingConfig) AppKey() AppKey {
	return AppKey{AppID: oc.AppID, CertGroupID: oc.CertGroupID}
}

// ModeKind discriminates DeploymentMode.
type ModeKind int

const (
	ModeUnknown ModeKind = iota
	ModeFrlOnline
	ModeFrlLan
	ModeFrlIsolated
	ModeFrlOffline
	ModeSdl
)

var modeKindNames = map[ModeKind]string{
	ModeUnknown:     "UNKNOWN",
	ModeFrlOnline:   "FRL_ONLINE",
	ModeFrlLan:      "FRL_LAN",
	ModeFrlIsolated: "FRL_ISOLATED",
	ModeFrlOffline:  "FRL_OFFLINE",
	ModeSdl:         "SDL",
}

func (k ModeKind) String() string {
	if s, ok := modeKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ModeKind(%d)", int(k))
}

func (k ModeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// DeploymentMode is a tagged variant: ServerURL is set for online and LAN,
// CensusCodes for isolated, Raw for unknown modes.
type DeploymentMode struct {
	Kind        ModeKind `json:"kind"`
	ServerURL   string   `json:"serverUrl,omitempty"`
	CensusCodes []string `json:"censusCodes,omitempty"`
	Raw         string   `json:"raw,omitempty"`
}

func FrlOnline(server string) DeploymentMode {
	return DeploymentMode{Kind: ModeFrlOnline, ServerURL: server}
}

func FrlLan(server string) DeploymentMode {
	return DeploymentMode{Kind: ModeFrlLan, ServerURL: server}
}

func FrlIsolated(codes []string) DeploymentMode {
	return DeploymentMode{Kind: ModeFrlIsolated, CensusCodes: codes}
}

func FrlOffline() DeploymentMode {
	return DeploymentMode{Kind: ModeFrlOffline}
}

func Sdl() DeploymentMode {
	return DeploymentMode{Kind: ModeSdl}
}

func Unknown(raw string) DeploymentMode {
	return DeploymentMode{Kind: ModeUnknown, Raw: raw}
}

// String renders the license type line of the description output.
func (m DeploymentMode) String() string {
	switch m.Kind {
	case ModeFrlOnline:
		return fmt.Sprintf("FRL Online (server: %s)", m.ServerURL)
	case ModeFrlLan:
		return fmt.Sprintf("FRL LAN (server: %s)", m.ServerURL)
	case ModeFrlIsolated:
		switch len(m.CensusCodes) {
		case 0:
			return "FRL Offline"
		case 1:
			return "FRL Isolated (1 code)"
		default:
			return fmt.Sprintf("FRL Isolated (%d codes)", len(m.CensusCodes))
		}
	case ModeFrlOffline:
		return "FRL Offline"
	case ModeSdl:
		return "SDL"
	default:
		return m.Raw
	}
}

// Precedence is the package precedence code carried in the filename.
type Precedence int

const (
	AcrobatStandard Precedence = 70
	CCSingleApp     Precedence = 80
	CCAllApps       Precedence = 90
	AcrobatPro      Precedence = 100
)

// ParsePrecedence accepts only the four legal codes.
func ParsePrecedence(s string) (Precedence, error) {
	switch s {
	case "70":
		return AcrobatStandard, nil
	case "80":
		return CCSingleApp, nil
	case "90":
		return CCAllApps, nil
	case "100":
		return AcrobatPro, nil
	}
	return 0, fmt.Errorf("%w: precedence (%s) must be 70, 80, 90, or 100", ErrInvalidFilename, s)
}

func (p Precedence) String() string {
	switch p {
	case AcrobatStandard:
		return "70 (Acrobat Standard)"
	case CCSingleApp:
		return "80 (CC Single App)"
	case CCAllApps:
		return "90 (CC All Apps)"
	case AcrobatPro:
		return "100 (Acrobat Pro)"
	}
	return fmt.Sprintf("%d (Unknown)", int(p))
}

// FileInfo describes a license file on disk, or a virtual one synthesized
// from a preconditioning entry.
type FileInfo struct {
	Pathname  string
	Filename  string
	Name      string
	Extension string
	IsDir     bool
	ModDate   string
}

// NewFileInfo stats path after expanding a leading ~ and environment variables.
func NewFileInfo(path string) (FileInfo, error) {
	path = expandPath(path)
	st, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return FileInfo{}, fmt.Errorf("%w: %v", ErrIO, err)
	}
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return FileInfo{
		Pathname:  path,
		Filename:  base,
		Name:      strings.TrimSuffix(base, ext),
		Extension: strings.TrimPrefix(ext, "."),
		IsDir:     st.IsDir(),
		ModDate:   st.ModTime().Local().Format("2006-01-02 15:04:05 MST"),
	}, nil
}

// VirtualFileInfo builds the FileInfo of a preconditioning entry.
func VirtualFileInfo(name, extension string) FileInfo {
	filename := name + "." + extension
	return FileInfo{
		Pathname:  filename,
		Filename:  filename,
		Name:      name,
		Extension: extension,
		ModDate:   UnknownValue,
	}
}

func expandPath(path string) string {
	path = os.ExpandEnv(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func formatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

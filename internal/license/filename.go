package license

import (
	"fmt"
	"strings"

	"github.com/technosupport/frl-toolbox/internal/codec"
)

// appKeySeparator joins the app id and certificate group id inside the
// first filename segment.
const appKeySeparator = "{}"

// AppKey is the app id / certificate group pair encoded in a license filename.
type AppKey struct {
	AppID       string
	CertGroupID string
}

// ParseAppKey splits a decoded app segment on the {} separator.
func ParseAppKey(s string) (AppKey, error) {
	parts := strings.SplitN(s, appKeySeparator, 2)
	if len(parts) < 2 {
		return AppKey{}, fmt.Errorf("%w: app segment '%s' has no %s separator", ErrInvalidFilename, s, appKeySeparator)
	}
	return AppKey{AppID: parts[0], CertGroupID: parts[1]}, nil
}

func (k AppKey) String() string {
	return k.AppID + appKeySeparator + k.CertGroupID
}

// EncodedName is the base64 form used as the first filename segment.
func (k AppKey) EncodedName() string {
	return codec.EncodeString(k.String())
}

// CredentialKey is the credential store key under which NGL caches the
// activation of this app. The certificate group id is trimmed of
// surrounding whitespace before it is joined.
func (k AppKey) CredentialKey() string {
	adjusted := AppKey{AppID: k.AppID, CertGroupID: strings.TrimSpace(k.CertGroupID)}
	return adjusted.EncodedName()
}

// Fields are the values carried by a license filename stem.
type Fields struct {
	AppKey
	NpdID      string
	PackageID  string
	Precedence Precedence
}

// ParseFilename extracts the fields of a stem of the form
// <base64 appId{}certGroupId>-<base64 packageId>-<precedence>.
func ParseFilename(stem string) (Fields, error) {
	parts := strings.Split(stem, "-")
	if len(parts) != 3 {
		return Fields{}, InvalidFilenameError(stem, fmt.Sprintf("expected 3 dash-separated parts, found %d", len(parts)))
	}
	appPart, err := codec.DecodeString(parts[0])
	if err != nil {
		return Fields{}, InvalidFilenameError(stem, err.Error())
	}
	key, err := ParseAppKey(appPart)
	if err != nil {
		return Fields{}, fmt.Errorf("%s: %w", stem, err)
	}
	packageID, err := codec.DecodeString(parts[1])
	if err != nil {
		return Fields{}, InvalidFilenameError(stem, err.Error())
	}
	precedence, err := ParsePrecedence(parts[2])
	if err != nil {
		return Fields{}, fmt.Errorf("%s: %w", stem, err)
	}
	return Fields{
		AppKey:     key,
		NpdID:      parts[1],
		PackageID:  packageID,
		Precedence: precedence,
	}, nil
}

// FormatFilename is the inverse of ParseFilename.
func FormatFilename(f Fields) string {
	return fmt.Sprintf("%s-%s-%d", f.EncodedName(), codec.EncodeString(f.PackageID), int(f.Precedence))
}

// ShortenFilename replaces the npdId segment with "...".
func ShortenFilename(name string) string {
	parts := strings.Split(name, "-")
	if len(parts) != 3 {
		return name
	}
	return parts[0] + "-...-" + parts[2]
}

// skeleton builds the first-phase record from the filename alone.
func skeleton(info FileInfo) (OperatingConfig, error) {
	f, err := ParseFilename(info.Name)
	if err != nil {
		return OperatingConfig{}, err
	}
	return OperatingConfig{
		Filename:        info.Filename,
		AppID:           f.AppID,
		CertGroupID:     f.CertGroupID,
		NpdID:           f.NpdID,
		PackageID:       f.PackageID,
		Precedence:      f.Precedence,
		Mode:            Unknown(UnknownValue),
		ExpiryDate:      UnknownValue,
		InstallDatetime: info.ModDate,
	}, nil
}

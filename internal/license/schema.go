package license

import (
	"encoding/json"
	"fmt"

	"github.com/technosupport/frl-toolbox/internal/codec"
)

// Encoded is a JSON value that travels as a base64-wrapped JSON string.
// It unmarshals from the wrapped form and marshals the decoded value, so
// re-encoding a Document produces a fully unwrapped view of it.
type Encoded[T any] struct {
	Value T
}

func (e *Encoded[T]) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: expected base64 string: %v", ErrFormat, err)
	}
	return codec.DecodeJSON(s, &e.Value)
}

func (e Encoded[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Value)
}

// Document is the full schema of an operating config file. Signatures are
// carried but never verified.
type Document struct {
	OcSpecVersion string               `json:"ocSpecVersion"`
	Signatures    []SignatureSpecifier `json:"signatures"`
	Payload       Encoded[Payload]     `json:"payload"`
}

type Payload struct {
	ID                           string                       `json:"id"`
	NpdID                        string                       `json:"npdId"`
	NglAppID                     string                       `json:"nglAppId"`
	NpdPrecedence                int                          `json:"npdPrecedence"`
	AsnpData                     *AsnpData                    `json:"asnpData,omitempty"`
	ProfileServerURL             string                       `json:"profileServerUrl"`
	ProfileRequestPayloadParams  *ProfileRequestPayloadParams `json:"profileRequestPayloadParams,omitempty"`
	DeploymentMode               string                       `json:"deploymentMode"`
	Branding                     Branding                     `json:"branding"`
	ProfileServerCertFingerprint *string                      `json:"profileServerCertFingerprint,omitempty"` // LAN only
}

type AsnpData struct {
	TemplateID               string                `json:"templateId"`
	CustomerCertHeaders      []SignatureSpecifier  `json:"customerCertHeaders"`
	AdobeCertSignedValues    *AdobeSignedValues    `json:"adobeCertSignedValues,omitempty"`
	CustomerCertSignedValues *CustomerSignedValues `json:"customerCertSignedValues,omitempty"`
}

type Branding struct {
	Name *string `json:"name"`
}

type ProfileRequestPayloadParams struct {
	DeviceParams []string `json:"deviceParams"`
	AppParams    []string `json:"appParams"`
}

type AdobeSignedValues struct {
	Signatures AdobeSignatures `json:"signatures"`
	Values     AdobeValues     `json:"values"`
}

type AdobeSignatures struct {
	Signature1 string `json:"signature1"`
	Signature2 string `json:"signature2"`
}

type AdobeValues struct {
	LicenseExpiryTimestamp             string `json:"licenseExpiryTimestamp"`
	EnigmaData                         string `json:"enigmaData"`
	GraceTime                          string `json:"graceTime"`
	ProfileStatus                      string `json:"profileStatus"`
	EffectiveEndTimestamp              string `json:"effectiveEndTimestamp"`
	LicenseExpiryWarningStartTimestamp string `json:"licenseExpiryWarningStartTimestamp"`
	NglLibRefreshInterval              string `json:"nglLibRefreshInterval"`
	LicenseID                          string `json:"licenseId"`
	LicensedFeatures                   string `json:"licensedFeatures"`
	AppRefreshInterval                 string `json:"appRefreshInterval"`
	AppEntitlementStatus               string `json:"appEntitlementStatus"`
}

type CustomerSignedValues struct {
	Signatures CustomerSignatures      `json:"signatures"`
	Values     Encoded[CustomerValues] `json:"values"`
}

type CustomerSignatures struct {
	CustomerSignature1 string `json:"customerSignature1"`
	CustomerSignature2 string `json:"customerSignature2"`
}

type CustomerValues struct {
	NpdID                     string                    `json:"npdId"`
	AsnpID                    string                    `json:"asnpId"`
	CreationTimestamp         uint64                    `json:"creationTimestamp"`
	CacheLifetime             uint64                    `json:"cacheLifetime"`
	ResponseType              string                    `json:"responseType"`
	CacheExpiryWarningControl CacheExpiryWarningControl `json:"cacheExpiryWarningControl"`
	ChallengeCodes            []string                  `json:"challengeCodes"`
}

type CacheExpiryWarningControl struct {
	WarningStartTimestamp uint64 `json:"warningStartTimestamp"`
	WarningInterval       uint64 `json:"warningInterval"`
}

type SignatureSpecifier struct {
	Header    Encoded[SignatureHeader] `json:"header"`
	Signature string                   `json:"signature"`
}

type SignatureHeader struct {
	ContentSignatureAlg         string               `json:"contentSignatureAlg"`
	TrustedCertFingerprintAlg   string               `json:"trustedCertFingerprintAlg"`
	TrustedCertFingerprintIndex int                  `json:"trustedCertFingerprintIndex"`
	CertificateDetails          []CertificateDetails `json:"certificateDetails"`
}

type CertificateDetails struct {
	ID              string `json:"id"`
	SubjectName     string `json:"subjectName"`
	HexSerialNumber string `json:"hexSerialNumber"`
	SHA1Hash        string `json:"sha1Hash"`
	Sequence        int    `json:"sequence"`
	DownloadPath    string `json:"downloadPath"`
}

// ParseDocument unwraps every base64 layer of an operating config file.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		if isCodecError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return &doc, nil
}

// ReadDocument reads and parses an operating config file.
func ReadDocument(path string) (*Document, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, PathError(path, err)
	}
	return doc, nil
}

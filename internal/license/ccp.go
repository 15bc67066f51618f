package license

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode/utf8"
)

// PkgConfigEntry is the archive member of a .ccp package holding the
// preconditioning document.
const PkgConfigEntry = "PkgConfig.xml"

const (
	preconditioningOpen  = "<Preconditioning"
	preconditioningClose = "</Preconditioning>"
)

// maxPkgConfigSize bounds how much of the archive entry is read.
const maxPkgConfigSize = 16 * 1024 * 1024

// DecodeCCPFile decodes a .ccp package file.
func (d *Decoder) DecodeCCPFile(ctx context.Context, info FileInfo) ([]OperatingConfig, error) {
	data, err := readFile(info.Pathname)
	if err != nil {
		return nil, err
	}
	ocs, err := d.DecodeCCP(ctx, data)
	if err != nil {
		return nil, PathError(info.Pathname, err)
	}
	return ocs, nil
}

// DecodeCCP decodes a .ccp package held in memory. The package is either a
// zip archive with a PkgConfig.xml member, or that XML text itself.
func (d *Decoder) DecodeCCP(ctx context.Context, data []byte) ([]OperatingConfig, error) {
	doc, err := ExtractPreconditioning(data)
	if err != nil {
		return nil, err
	}
	return d.DecodePreconditioning(ctx, doc)
}

// ExtractPreconditioning recovers the preconditioning JSON embedded in a
// .ccp package.
func ExtractPreconditioning(data []byte) ([]byte, error) {
	text, err := pkgConfigText(data)
	if err != nil {
		return nil, err
	}
	start := elementStart(text)
	if start < 0 {
		return nil, FormatError("package config has no Preconditioning element")
	}
	end := strings.Index(text[start:], preconditioningClose)
	if end < 0 {
		return nil, FormatError("package config has an unterminated Preconditioning element")
	}
	element := text[start : start+end+len(preconditioningClose)]

	// Entity-escaped and CDATA bodies go through the XML decoder; a body that
	// is not well-formed XML is taken verbatim.
	var el struct {
		Body string `xml:",chardata"`
	}
	var body string
	if err := xml.Unmarshal([]byte(element), &el); err == nil {
		body = el.Body
	} else if open := strings.Index(element, ">"); open >= 0 && open < len(element)-len(preconditioningClose) {
		body = element[open+1 : len(element)-len(preconditioningClose)]
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, FormatError("Preconditioning element is empty")
	}
	return []byte(body), nil
}

// elementStart finds the Preconditioning start tag, skipping elements whose
// names merely begin with it (PreconditioningVersion and the like).
func elementStart(text string) int {
	offset := 0
	for {
		i := strings.Index(text[offset:], preconditioningOpen)
		if i < 0 {
			return -1
		}
		at := offset + i
		next := at + len(preconditioningOpen)
		if next < len(text) {
			switch text[next] {
			case '>', ' ', '\t', '\n', '\r':
				return at
			}
		}
		offset = next
	}
}

// pkgConfigText returns the package XML, reading it from the archive when
// data is a zip file.
func pkgConfigText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if !utf8.Valid(data) {
			return "", FormatError("package is neither a zip archive nor UTF-8 text")
		}
		return string(data), nil
	}
	for _, f := range zr.File {
		if !strings.EqualFold(path.Base(f.Name), PkgConfigEntry) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrFormat, f.Name, err)
		}
		b, err := io.ReadAll(io.LimitReader(rc, maxPkgConfigSize))
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrFormat, f.Name, err)
		}
		if !utf8.Valid(b) {
			return "", FormatError(PkgConfigEntry + " is not UTF-8 text")
		}
		return string(b), nil
	}
	return "", FormatError("archive has no " + PkgConfigEntry)
}

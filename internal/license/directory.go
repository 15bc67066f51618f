package license

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DecodeDirectory decodes the license artifacts of dir. The first match
// wins: a preconditioning bundle, then the first .ccp package, then every
// .operatingconfig file. A bad file aborts the whole directory.
func (d *Decoder) DecodeDirectory(ctx context.Context, dir string) (*Report, error) {
	if info, err := NewFileInfo(filepath.Join(dir, PreconditioningFilename)); err == nil && !info.IsDir {
		return d.DecodeFile(ctx, info)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, dir)
		}
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	if name, ok := firstWithExtension(entries, ExtCCP); ok {
		info, err := NewFileInfo(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		return d.DecodeFile(ctx, info)
	}

	var ocs []OperatingConfig
	for _, e := range entries {
		if e.IsDir() || !hasExtension(e.Name(), ExtOperatingConfig) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := NewFileInfo(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		oc, err := d.DecodeLicenseFile(ctx, info)
		if err != nil {
			return nil, err
		}
		ocs = append(ocs, oc)
	}
	if len(ocs) == 0 {
		return nil, fmt.Errorf("%w: no license files found in directory: %s", ErrNotFound, dir)
	}
	SortByPackage(ocs)
	return &Report{Source: dir, Kind: KindOperatingConfigs, Configs: ocs}, nil
}

// SortByPackage orders records by npdId, then app id.
func SortByPackage(ocs []OperatingConfig) {
	sort.SliceStable(ocs, func(i, j int) bool {
		if ocs[i].NpdID != ocs[j].NpdID {
			return ocs[i].NpdID < ocs[j].NpdID
		}
		return ocs[i].AppID < ocs[j].AppID
	})
}

// firstWithExtension relies on os.ReadDir returning entries sorted by name.
func firstWithExtension(entries []os.DirEntry, ext string) (string, bool) {
	for _, e := range entries {
		if !e.IsDir() && hasExtension(e.Name(), ext) {
			return e.Name(), true
		}
	}
	return "", false
}

func hasExtension(name, ext string) bool {
	return strings.EqualFold(strings.TrimPrefix(filepath.Ext(name), "."), ext)
}

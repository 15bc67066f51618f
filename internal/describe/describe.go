// Package describe renders decoded license reports for people.
package describe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/technosupport/frl-toolbox/internal/license"
)

// ExpiryLookup returns the expiry date of the activation cached locally for oc.
type ExpiryLookup func(ctx context.Context, oc license.OperatingConfig) (string, error)

// Options control a rendering. Verbosity 1 adds package and certificate
// details; 2 also reports locally cached activations through CachedExpiry.
type Options struct {
	Format       Format
	Verbosity    int
	CachedExpiry ExpiryLookup
}

// Render writes report to w.
func Render(ctx context.Context, w io.Writer, report *license.Report, opts Options) error {
	switch opts.Format {
	case FormatJSON:
		return renderJSON(w, report)
	case FormatTable:
		return renderTable(w, report, opts)
	case FormatText, "":
		p := &printer{w: w, opts: opts}
		if report.Kind == license.KindPreconditioning {
			p.preconditioning(report.Configs)
		} else {
			p.operatingConfigs(ctx, report.Configs)
		}
		return p.err
	}
	return fmt.Errorf("unsupported output format %q", opts.Format)
}

// printer keeps the first write error so the text layout reads top to bottom.
type printer struct {
	w    io.Writer
	opts Options
	err  error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) operatingConfigs(ctx context.Context, ocs []license.OperatingConfig) {
	current := ""
	for i, oc := range ocs {
		if !strings.EqualFold(current, oc.NpdID) {
			current = oc.NpdID
			p.printf("License files for npdId: %s:\n", oc.NpdID)
			p.pkg(oc)
			p.printf("Filenames (shown with '...' where the npdId appears):\n")
		}
		p.printf("%2d: %s\n", i+1, license.ShortenFilename(oc.Filename))
		p.app(-1, oc)
		p.printf("    Install date: %s\n", oc.InstallDatetime)
		if p.opts.Verbosity > 1 {
			p.cached(ctx, oc)
		}
	}
}

func (p *printer) cached(ctx context.Context, oc license.OperatingConfig) {
	if p.opts.CachedExpiry != nil {
		if date, err := p.opts.CachedExpiry(ctx, oc); err == nil {
			p.printf("    Cached activation expires: %s\n", date)
			return
		}
	}
	p.printf("    No cached activation\n")
}

func (p *printer) preconditioning(ocs []license.OperatingConfig) {
	for i, oc := range ocs {
		if i == 0 {
			p.printf("Preconditioning data for npdId: %s\n", oc.NpdID)
			p.pkg(oc)
			p.printf("Application Licenses:\n")
		}
		p.app(i, oc)
	}
}

func (p *printer) pkg(oc license.OperatingConfig) {
	if p.opts.Verbosity > 0 {
		p.printf("    Package UUID: %s\n", oc.PackageID)
	}
	p.printf("    License type: %s\n", oc.Mode)
	if p.opts.Verbosity > 0 && oc.Mode.Kind == license.ModeFrlIsolated {
		if len(oc.Mode.CensusCodes) == 1 {
			p.printf("    Census code: %s\n", oc.Mode.CensusCodes[0])
		} else {
			p.printf("    Census codes: %s\n", strings.Join(oc.Mode.CensusCodes, ", "))
		}
	}
	p.printf("    License expiry date: %s\n", oc.ExpiryDate)
	p.printf("    Precedence: %s\n", oc.Precedence)
}

// app prints the App ID line, numbered when index is not negative.
func (p *printer) app(index int, oc license.OperatingConfig) {
	prefix := "    "
	if index >= 0 {
		prefix = fmt.Sprintf("%2d: ", index+1)
	}
	suffix := ""
	if p.opts.Verbosity > 0 {
		suffix = ", Certificate Group: " + oc.CertGroupID
	}
	p.printf("%sApp ID: %s%s\n", prefix, oc.AppID, suffix)
}

func renderJSON(w io.Writer, report *license.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

func renderTable(w io.Writer, report *license.Report, opts Options) error {
	header := []string{"#", "App ID", "npdId", "License Type", "Expiry", "Precedence"}
	if opts.Verbosity > 0 {
		header = append(header, "Certificate Group", "Package UUID")
	}
	header = append(header, "Installed")

	rows := make([][]string, 0, len(report.Configs))
	for i, oc := range report.Configs {
		row := []string{
			fmt.Sprint(i + 1),
			oc.AppID,
			oc.NpdID,
			oc.Mode.String(),
			oc.ExpiryDate,
			oc.Precedence.String(),
		}
		if opts.Verbosity > 0 {
			row = append(row, oc.CertGroupID, oc.PackageID)
		}
		rows = append(rows, append(row, oc.InstallDatetime))
	}
	printTable(w, header, rows)
	return nil
}

func printTable(writer io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(writer)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	table.AppendBulk(rows)
	table.Render()
}

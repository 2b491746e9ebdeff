package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// ScanFileName is the per-application override file looked up in the
// application root.
const ScanFileName = "boot.hcl"

// hclScanFile is the top-level structure of boot.hcl.
//
//	scan {
//	  enabled          = true
//	  timeout_seconds  = 2.5
//	  exclude          = ["apps/web/legacy"]
//	  include          = ["lib/shared"]
//	  max_workers      = 8
//	  poll_interval_ms = 50
//	}
type hclScanFile struct {
	Scan *hclScanBlock `hcl:"scan,block"`
	Rest hcl.Body      `hcl:",remain"`
}

type hclScanBlock struct {
	Enabled        *bool    `hcl:"enabled,optional"`
	TimeoutSeconds *float64 `hcl:"timeout_seconds,optional"`
	Exclude        []string `hcl:"exclude,optional"`
	Include        []string `hcl:"include,optional"`
	MaxWorkers     *int     `hcl:"max_workers,optional"`
	PollIntervalMS *int     `hcl:"poll_interval_ms,optional"`
}

// LoadScanFile overlays the scan block of the HCL file at path onto base.
// A missing file returns base unchanged. Attributes left out of the block
// keep their base value; lists replace the base lists.
func LoadScanFile(path string, base ScanConfig) (ScanConfig, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return base, nil
		}
		return base, err
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return base, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}

	var parsed hclScanFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return base, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}
	if parsed.Scan == nil {
		return base, nil
	}

	out := base
	s := parsed.Scan
	if s.Enabled != nil {
		out.Enabled = *s.Enabled
	}
	if s.TimeoutSeconds != nil {
		out.TimeoutSeconds = *s.TimeoutSeconds
	}
	if s.Exclude != nil {
		out.Exclude = s.Exclude
	}
	if s.Include != nil {
		out.Include = s.Include
	}
	if s.MaxWorkers != nil {
		out.MaxWorkers = min(max(*s.MaxWorkers, 1), 100)
	}
	if s.PollIntervalMS != nil {
		out.PollIntervalMS = *s.PollIntervalMS
	}
	return out, nil
}

package output

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/gitcache-dev/gitcache/pkg/hierarchy"
	"github.com/gitcache-dev/gitcache/pkg/localcache"
)

// Format represents an output format type.
type Format string

const (
	Table Format = "table"
	JSON  Format = "json"
	YAML  Format = "yaml"
)

// ParseFormat parses a format string into a Format type.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "table":
		return Table, nil
	case "json":
		return JSON, nil
	case "yaml":
		return YAML, nil
	default:
		return "", fmt.Errorf("invalid format: %s (valid: table, json, yaml)", s)
	}
}

// FormatOutput renders data in the requested format. Renderable values
// drive their own Render method; *TableData and *KeyValueData go through
// their dedicated renderers; everything else falls through to
// formatGeneric's JSON/YAML encoding (table format is not supported for
// arbitrary data, only for the structured builders).
func FormatOutput(data interface{}, format Format) error {
	switch v := data.(type) {
	case Renderable:
		return v.Render(format)
	case *TableData:
		return formatTableData(v, format)
	case *KeyValueData:
		return formatKeyValueData(v, format)
	default:
		return formatGeneric(data, format)
	}
}

func formatGeneric(data interface{}, format Format) error {
	switch format {
	case JSON:
		return EncodeJSON(os.Stdout, data)
	case YAML:
		return EncodeYAML(os.Stdout, data)
	case Table:
		return fmt.Errorf("table format not supported for this data type")
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// InstallSummary is the install orchestrator's user-facing report: what
// was already cached, what had to be built, what could not be resolved,
// and any npm SSH-to-HTTPS anomalies detected along the way (the
// supplemented anomaly-reporting feature).
type InstallSummary struct {
	CacheRoot    string   `json:"cacheRoot" yaml:"cacheRoot"`
	LockfileUsed string   `json:"lockfileUsed,omitempty" yaml:"lockfileUsed,omitempty"`
	Cached       int      `json:"cached" yaml:"cached"`
	Built        int      `json:"built" yaml:"built"`
	Unresolved   int      `json:"unresolved" yaml:"unresolved"`
	BuildErrors  []string `json:"buildErrors,omitempty" yaml:"buildErrors,omitempty"`
	Anomalies    []string `json:"anomalies,omitempty" yaml:"anomalies,omitempty"`
	ExitCode     int      `json:"exitCode" yaml:"exitCode"`
}

// Render implements Renderable.
func (s *InstallSummary) Render(format Format) error {
	if format != Table {
		return formatGeneric(s, format)
	}

	if s.LockfileUsed == "" {
		fmt.Println("gitcache: no lockfile found, acceleration skipped")
		return nil
	}

	fmt.Printf("gitcache: %d cached, %d built, %d unresolved\n", s.Cached, s.Built, s.Unresolved)
	for _, a := range s.Anomalies {
		color.Yellow("  notice: %s has a Git dependency resolving over SSH with an HTTPS lockfile URL", a)
	}
	for _, e := range s.BuildErrors {
		color.Red("  warning: %s", e)
	}
	return nil
}

// TierReport renders the cache hierarchy's per-tier diagnostic status for
// the `status` command.
type TierReport struct {
	Tiers []hierarchy.TierStatus `json:"tiers" yaml:"tiers"`
}

// Render implements Renderable.
func (r *TierReport) Render(format Format) error {
	if format != Table {
		return formatGeneric(r, format)
	}

	tb := NewTable("TIER", "AVAILABLE", "AUTHENTICATED")
	for _, t := range r.Tiers {
		available := "no"
		if t.Available {
			available = "yes"
		}
		authenticated := "-"
		if t.Tier == "registry" {
			authenticated = "no"
			if t.Authenticated {
				authenticated = "yes"
			}
		}
		tb.AddRow(t.Tier, available, authenticated)
	}
	return tb.WithRowColorizer(colorizeTierRow).Format(Table)
}

// colorizeTierRow greens a tier row's "yes" availability/authentication
// cells and reds its "no" cells, leaving the tier-name and "-" placeholder
// columns untouched.
func colorizeTierRow(row []string) []string {
	colored := make([]string, len(row))
	for i, cell := range row {
		switch cell {
		case "yes":
			colored[i] = color.GreenString(cell)
		case "no":
			colored[i] = color.RedString(cell)
		default:
			colored[i] = cell
		}
	}
	return colored
}

// CacheStatsReport renders the local tier's on-disk footprint for the
// `cache stats` command.
type CacheStatsReport struct {
	localcache.Stats
	MirrorCount int `json:"mirrorCount" yaml:"mirrorCount"`
}

// Render implements Renderable.
func (r *CacheStatsReport) Render(format Format) error {
	if format != Table {
		return formatGeneric(r, format)
	}
	return NewKeyValue("Cache Stats").
		Add("Tarballs", fmt.Sprintf("%d", r.ArtifactCount)).
		Add("Mirror clones", fmt.Sprintf("%d", r.MirrorCount)).
		AddBytes("Total size", r.TotalBytes).
		Format(Table)
}

// Package display formats command output for the tools binary as aligned
// tables for people or indented JSON for scripts.
package display

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
)

// Output formats accepted by --output.
const (
	OutputTable = "table"
	OutputJSON  = "json"
)

// VirtualEnv is one row of the virtualenv listing.
type VirtualEnv struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Healthy   bool      `json:"healthy"`
	CacheKey  string    `json:"cache_key,omitempty"`
	SizeBytes int64     `json:"size_bytes"`
	Modified  time.Time `json:"modified"`
}

// VirtualEnvs writes the cached virtualenvs in the given output format.
func VirtualEnvs(w io.Writer, envs []VirtualEnv, output string) error {
	if output == OutputJSON {
		if envs == nil {
			envs = []VirtualEnv{}
		}
		return writeJSON(w, envs)
	}

	if len(envs) == 0 {
		_, err := fmt.Fprintln(w, "No virtualenvs found")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATUS\tSIZE\tMODIFIED\tPATH")
	for _, env := range envs {
		status := "ok"
		if !env.Healthy {
			status = "broken"
		}
		modified := "-"
		if !env.Modified.IsZero() {
			modified = humanize.Time(env.Modified)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			env.Name, status, humanize.IBytes(uint64(env.SizeBytes)), modified, env.Path)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

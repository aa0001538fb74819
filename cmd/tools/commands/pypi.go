package commands

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/concave-dev/toolscripts/cli"
)

type pypiLatestParams struct {
	Package  string `help:"Distribution name"`
	IndexURL string `default:"https://pypi.org" metavar:"URL" help:"Package index base URL"`
}

// packageInfo is the subset of the index JSON API response used here.
type packageInfo struct {
	Info struct {
		Name           string `json:"name"`
		Version        string `json:"version"`
		RequiresPython string `json:"requires_python"`
	} `json:"info"`
}

// RegisterPyPI is the tools module querying a package index.
func RegisterPyPI(reg *cli.Registry) error {
	g, err := reg.Group(cli.GroupDef{Name: "pypi", Help: "Query the Python package index"})
	if err != nil {
		return err
	}
	_, err = g.Command(cli.CommandDef{
		Name:   "latest",
		Help:   "Print the latest released version of a package",
		Params: pypiLatestParams{},
		Run:    latestVersion,
	})
	return err
}

func latestVersion(ctx *cli.Context, args *cli.Args) error {
	var p pypiLatestParams
	if err := args.Bind(&p); err != nil {
		return err
	}

	endpoint := strings.TrimRight(p.IndexURL, "/") + "/pypi/" + url.PathEscape(p.Package) + "/json"
	var info packageInfo
	resp, err := ctx.Web().R().
		SetContext(ctx.Context()).
		SetHeader("Accept", "application/json").
		SetResult(&info).
		Get(endpoint)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", endpoint, err)
	}
	if resp.IsError() {
		if resp.StatusCode() == 404 {
			return ctx.Exit(1, fmt.Sprintf("Package '%s' was not found", p.Package))
		}
		return fmt.Errorf("index returned %s for %s", resp.Status(), endpoint)
	}

	ctx.Debug("%s requires python %q", info.Info.Name, info.Info.RequiresPython)
	ctx.Print(info.Info.Version)
	return nil
}

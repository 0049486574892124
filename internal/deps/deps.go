// Package deps reports which external command-line tools are available to
// the acquisition strategies.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"rawbench/internal/config"
)

// Requirement defines an external tool rawbench can use.
type Requirement struct {
	Name        string
	Command     string
	Description string
	// Fallback names the in-process strategy used when the tool is absent.
	// A requirement with a fallback is never fatal.
	Fallback string
}

// Status reports the availability of a tool.
type Status struct {
	Name        string
	Command     string
	Description string
	Fallback    string
	Available   bool
	Path        string
	Detail      string
}

// Usable reports whether the capability works, through the tool or its
// fallback.
func (s Status) Usable() bool {
	return s.Available || s.Fallback != ""
}

// AcquisitionTools lists the tools the fetch strategies try first.
func AcquisitionTools(cfg *config.Config) []Requirement {
	return []Requirement{
		{Name: "wget", Command: cfg.WgetBinary(), Description: "Downloads raw archives", Fallback: "net/http"},
		{Name: "unzip", Command: cfg.UnzipBinary(), Description: "Extracts nested zip archives", Fallback: "in-process zip"},
		{Name: "git", Command: cfg.GitBinary(), Description: "Clones repository-hosted corpora", Fallback: "go-git"},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Fallback:    req.Fallback,
		}
		switch path, err := exec.LookPath(cmd); {
		case cmd == "":
			status.Detail = "command not configured"
		case err != nil:
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
		default:
			status.Available = true
			status.Path = path
		}
		if !status.Available && status.Fallback != "" {
			status.Detail += fmt.Sprintf("; using %s", status.Fallback)
		}
		results = append(results, status)
	}
	return results
}

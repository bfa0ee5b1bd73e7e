// Package cluster queries the status of workloads in a namespace and renders
// it as the text table operators are used to seeing from kubectl.
//
// Two sources are provided. CommandSource shells out to a configurable
// command line (kubectl by default). KubeSource talks to the Kubernetes API
// directly with client-go. Both return an empty string rather than an error
// for "nothing to report", so callers can treat any failure as no data.
package cluster

import (
	"context"
	"strings"
)

const (
	// DefaultLimit is the number of pods a source lists at most.
	DefaultLimit = 20
)

// Source reports pod status for a namespace as newline separated rows.
//
// env is the environment of the deployment being observed, in KEY=VALUE
// form. Sources that spawn a process run it with exactly that environment;
// nil inherits the server's own.
type Source interface {
	Status(ctx context.Context, namespace string, env []string) (string, error)
}

// Rows splits status text into non-empty rows, keeping at most max of them.
// A max of zero or less keeps every row.
func Rows(text string, max int) []string {
	var rows []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rows = append(rows, line)
		if max > 0 && len(rows) == max {
			break
		}
	}
	return rows
}

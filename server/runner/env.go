package runner

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/nomis52/golaunch/config"
)

const (
	// MaskToken replaces secret values in rendered output.
	MaskToken = "***"
)

var passwordPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(--password[=\s]+)[^\s]+`),
	regexp.MustCompile(`(password[=:]["']?)[^"'>\s]+`),
}

// Request is the body of a deploy request.
type Request struct {
	// APIKey is the legacy single credential, exported as the deployment's env_var.
	APIKey string `json:"apiKey"`
	// InputData maps input field ids to the values the user entered.
	InputData map[string]string `json:"inputData"`
	Version   string            `json:"version"`
	DryRun    bool              `json:"dryRun"`

	PlatformURL   string `json:"platformUrl"`
	NIMProxyURL   string `json:"nimProxyUrl"`
	DataStoreURL  string `json:"dataStoreUrl"`
	IngressHost   string `json:"ingressHost"`
	NIMProxyHost  string `json:"nimProxyHost"`
	DataStoreHost string `json:"dataStoreHost"`

	// Host is the Host header the launcher was reached on.
	Host string `json:"-"`
}

// Validate rejects requests that supply neither an API key nor input data.
func (r *Request) Validate() error {
	if r.APIKey == "" && len(r.InputData) == 0 {
		return fmt.Errorf("%w: API key or input data is required", ErrValidation)
	}
	return nil
}

// secrets returns every non-empty user supplied value.
func (r *Request) secrets() []string {
	values := make([]string, 0, len(r.InputData)+1)
	if r.APIKey != "" {
		values = append(values, r.APIKey)
	}
	for _, v := range r.InputData {
		if v != "" {
			values = append(values, v)
		}
	}
	return values
}

// environment is the set of variables a deployment's commands run with.
type environment struct {
	vars map[string]string
	// secretKeys are the variables holding user supplied values.
	secretKeys []string
}

// buildEnvironment layers the request onto the ambient environment.
func buildEnvironment(ambient []string, d *config.Deployment, req *Request) *environment {
	env := &environment{vars: make(map[string]string, len(ambient)+16)}
	for _, kv := range ambient {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env.vars[k] = v
		}
	}

	if req.APIKey != "" && d.EnvVar != "" {
		env.set(d.EnvVar, req.APIKey, true)
	}
	for _, f := range d.InputFields {
		if v, ok := req.InputData[f.ID]; ok {
			env.set(f.EnvVar, v, true)
		}
	}

	version := req.Version
	if version == "" {
		version = d.DefaultVersion
	}
	env.set("VERSION", version, false)
	env.set("PLATFORM_URL", req.PlatformURL, false)
	env.set("NIM_PROXY_URL", req.NIMProxyURL, false)
	env.set("DATA_STORE_URL", req.DataStoreURL, false)
	env.set("INGRESS_HOST", req.IngressHost, false)
	env.set("NIM_PROXY_HOST", req.NIMProxyHost, false)
	env.set("DATA_STORE_HOST", req.DataStoreHost, false)
	return env
}

func (e *environment) set(key, value string, secret bool) {
	e.vars[key] = value
	if secret && !slices.Contains(e.secretKeys, key) {
		e.secretKeys = append(e.secretKeys, key)
	}
}

func (e *environment) version() string {
	return e.vars["VERSION"]
}

// list returns the variables as sorted KEY=value pairs for a child process.
func (e *environment) list() []string {
	out := make([]string, 0, len(e.vars))
	for k, v := range e.vars {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// masker replaces secret values and password arguments in rendered text.
type masker struct {
	secrets []string
}

func newMasker(secrets []string) masker {
	s := slices.Clone(secrets)
	// Longer values first so a secret containing another is masked whole.
	slices.SortFunc(s, func(a, b string) int {
		if c := cmp.Compare(len(b), len(a)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return masker{secrets: slices.Compact(s)}
}

func (m masker) mask(s string) string {
	for _, secret := range m.secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, MaskToken)
	}
	for _, re := range passwordPatterns {
		s = re.ReplaceAllString(s, "${1}"+MaskToken)
	}
	return s
}

func (m masker) maskAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = m.mask(s)
	}
	return out
}

// Package hostinfo derives the values used to turn service URL templates into
// links the user can open: the host's public IP and the base domain the
// launcher is being served from.
package hostinfo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/nomis52/golaunch/config"
)

const (
	// DefaultIPEndpoint echoes the caller's public address as plain text.
	DefaultIPEndpoint = "https://icanhazip.com"

	defaultLookupTimeout = 5 * time.Second

	// HostIPToken in a service URL is replaced with the host's public IP.
	HostIPToken = "${HOST_IP}"
	// BaseDomainToken in a service URL is replaced with the launcher's base domain.
	BaseDomainToken = "${BASE_DOMAIN}"
)

// baseDomainPattern matches from the first hyphen that starts a label
// remainder, e.g. "studio-abc123.example.com" -> "-abc123.example.com".
var baseDomainPattern = regexp.MustCompile(`(-[^.]+\..+)$`)

// Resolver looks up the host's public IP address.
type Resolver struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithEndpoint sets the IP echo endpoint.
func WithEndpoint(url string) Option {
	return func(r *Resolver) {
		r.endpoint = url
	}
}

// WithTimeout sets the lookup timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		r.client.Timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a Resolver.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		endpoint: DefaultIPEndpoint,
		client:   &http.Client{Timeout: defaultLookupTimeout},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveHostIP returns the public IP address of the host, or "" if it could
// not be determined.
func (r *Resolver) ResolveHostIP(ctx context.Context) string {
	ip, err := r.lookup(ctx)
	if err != nil {
		r.logger.Warn("failed to resolve public IP", "endpoint", r.endpoint, "error", err)
		return ""
	}
	r.logger.Info("derived host IP", "ip", ip)
	return ip
}

func (r *Resolver) lookup(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", err
	}
	ip := strings.TrimSpace(string(body))
	if net.ParseIP(ip) == nil {
		return "", fmt.Errorf("response %q is not an IP address", ip)
	}
	return ip, nil
}

// ExtractBaseDomain returns the base domain suffix of a Host header value,
// or "" when the host has none.
func ExtractBaseDomain(host string) string {
	if host == "" {
		return ""
	}
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	m := baseDomainPattern.FindStringSubmatch(host)
	if m == nil {
		return ""
	}
	return m[1]
}

// SubstituteServiceURLs returns copies of services with ${HOST_IP} and
// ${BASE_DOMAIN} replaced. An empty value leaves its placeholder untouched.
func SubstituteServiceURLs(services []config.Service, hostIP, baseDomain string) []config.Service {
	out := make([]config.Service, 0, len(services))
	for _, svc := range services {
		url := svc.URL
		if hostIP != "" {
			url = strings.ReplaceAll(url, HostIPToken, hostIP)
		}
		if baseDomain != "" {
			url = strings.ReplaceAll(url, BaseDomainToken, baseDomain)
		}
		svc.URL = url
		out = append(out, svc)
	}
	return out
}

package handlers

import (
	"net/http"
	"time"

	"github.com/nomis52/golaunch/config"
)

// UIOptions are server-level overrides for what the UI shows. Empty strings
// fall back to the deployment config.
type UIOptions struct {
	Heading      string
	ProjectName  string
	LauncherPath string
	ShowDryRun   bool
}

// MetadataProvider aggregates what GET /config reports.
type MetadataProvider interface {
	DeployConfigProvider
	DeploymentProvider
	UIOptions() UIOptions
}

// ConfigResponse describes the active deployment type to the UI.
type ConfigResponse struct {
	ActiveDeployment    string              `json:"active_deployment"`
	DeploymentTypes     []string            `json:"deployment_types"`
	Versions            []string            `json:"versions"`
	DefaultVersion      string              `json:"default_version"`
	Description         string              `json:"description"`
	ShowVersionSelector bool                `json:"show_version_selector"`
	Heading             string              `json:"heading"`
	ShowDryRun          bool                `json:"show_dry_run"`
	LauncherPath        string              `json:"launcher_path"`
	ProjectName         string              `json:"project_name"`
	HasUninstall        bool                `json:"has_uninstall"`
	Deployed            bool                `json:"deployed"`
	DeployedAt          *time.Time          `json:"deployed_at"`
	DeployedVersion     string              `json:"deployed_version"`
	InputFields         []config.InputField `json:"input_fields"`
	Services            []config.Service    `json:"services"`
}

// ConfigHandler handles requests for the deployment metadata.
type ConfigHandler struct {
	provider MetadataProvider
}

// NewConfigHandler creates a new ConfigHandler.
func NewConfigHandler(provider MetadataProvider) *ConfigHandler {
	return &ConfigHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *ConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg := h.provider.DeployConfig()
	if cfg == nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "No deployment configured"})
		return
	}
	d, ok := cfg.Active(h.provider.DeployType())
	if !ok {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "No deployment configured"})
		return
	}

	ui := h.provider.UIOptions()
	persisted := h.provider.Deployment()

	resp := ConfigResponse{
		ActiveDeployment:    d.Name,
		DeploymentTypes:     cfg.Names(),
		Versions:            nonNil(d.Versions),
		DefaultVersion:      d.DefaultVersion,
		Description:         d.Description,
		ShowVersionSelector: len(d.Versions) > 0,
		Heading:             firstNonEmpty(ui.Heading, d.Heading),
		ShowDryRun:          ui.ShowDryRun,
		LauncherPath:        firstNonEmpty(ui.LauncherPath, cfg.Meta.LauncherPath),
		ProjectName:         firstNonEmpty(ui.ProjectName, cfg.Meta.ProjectName),
		HasUninstall:        d.HasUninstall(),
		Deployed:            persisted.Deployed,
		DeployedAt:          persisted.DeployedAt,
		DeployedVersion:     persisted.Version,
		InputFields:         nonNil(d.InputFields),
		Services:            nonNil(persisted.Services),
	}
	writeJSON(w, http.StatusOK, resp)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// nonNil makes empty lists encode as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

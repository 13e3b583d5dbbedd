package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tvjuke/tvjuke/internal/config"
)

// ConfigProvider returns the current merged configuration. Hot reloads swap
// the value behind it.
type ConfigProvider func() *config.Config

// ConfigHandler serves the effective configuration.
type ConfigHandler struct {
	provider ConfigProvider
}

// NewConfigHandler creates a new config handler.
func NewConfigHandler(provider ConfigProvider) *ConfigHandler {
	return &ConfigHandler{provider: provider}
}

// ConfigOutput wraps the merged configuration.
type ConfigOutput struct {
	Body config.Config
}

// Register registers the config routes with the API.
func (h *ConfigHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getConfig",
		Method:      http.MethodGet,
		Path:        "/api/config",
		Summary:     "Get the effective configuration",
		Tags:        []string{"System"},
	}, h.GetConfig)
}

// GetConfig returns the full merged configuration.
func (h *ConfigHandler) GetConfig(ctx context.Context, _ *struct{}) (*ConfigOutput, error) {
	return &ConfigOutput{Body: *h.provider()}, nil
}

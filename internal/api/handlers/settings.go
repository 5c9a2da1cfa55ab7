package handlers

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/orrn/remoteprint/internal/config"
)

type SettingsHandler struct {
	config *config.Config
}

type DiskSummary struct {
	Name   string `json:"name"`
	Driver string `json:"driver"`
}

// ServerConfigResponse is the running configuration with credentials left out.
type ServerConfigResponse struct {
	Port                   int            `json:"port"`
	DatabasePath           string         `json:"database_path"`
	BackendURL             string         `json:"backend_url"`
	BackendAPIKeySet       bool           `json:"backend_api_key_set"`
	JobPath                string         `json:"job_path"`
	PrinterRefreshInterval string         `json:"printer_refresh_interval"`
	PrinterCacheTTL        string         `json:"printer_cache_ttl"`
	RedisEnabled           bool           `json:"redis_enabled"`
	Disks                  []DiskSummary  `json:"disks"`
	DefaultOptions         map[string]any `json:"default_options"`
	DefaultSource          string         `json:"default_source"`
	WebhookRetryCount      int            `json:"webhook_retry_count"`
	WebhookWorkerCount     int            `json:"webhook_worker_count"`
	ArchiveEnabled         bool           `json:"archive_enabled"`
	ArchiveRetentionDays   int            `json:"archive_retention_days"`
	LogLevel               string         `json:"log_level"`
	LogFormat              string         `json:"log_format"`
}

func NewSettingsHandler(cfg *config.Config) *SettingsHandler {
	return &SettingsHandler{config: cfg}
}

func (h *SettingsHandler) GetServerConfig(c *gin.Context) {
	cfg := h.config

	disks := make([]DiskSummary, 0, len(cfg.Storage.Disks))
	for name, disk := range cfg.Storage.Disks {
		disks = append(disks, DiskSummary{Name: name, Driver: disk.Driver})
	}
	sort.Slice(disks, func(i, j int) bool { return disks[i].Name < disks[j].Name })

	defaults := cfg.Jobs.DefaultOptions
	if defaults == nil {
		defaults = map[string]any{}
	}

	c.JSON(http.StatusOK, ServerConfigResponse{
		Port:                   cfg.Server.Port,
		DatabasePath:           cfg.Database.Path,
		BackendURL:             cfg.Backend.BaseURL,
		BackendAPIKeySet:       cfg.Backend.APIKey != "",
		JobPath:                cfg.Backend.JobPath,
		PrinterRefreshInterval: cfg.Printers.RefreshInterval.String(),
		PrinterCacheTTL:        cfg.Printers.CacheTTL.String(),
		RedisEnabled:           cfg.Redis.Enabled,
		Disks:                  disks,
		DefaultOptions:         defaults,
		DefaultSource:          cfg.Jobs.DefaultSource,
		WebhookRetryCount:      cfg.Webhooks.RetryCount,
		WebhookWorkerCount:     cfg.Webhooks.WorkerCount,
		ArchiveEnabled:         cfg.Archive.Enabled,
		ArchiveRetentionDays:   cfg.Archive.RetentionDays,
		LogLevel:               cfg.Logging.Level,
		LogFormat:              cfg.Logging.Format,
	})
}

func (h *SettingsHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/settings/server", h.GetServerConfig)
}

package main

import (
	"github.com/rs/zerolog/log"

	"github.com/bestsmilejp/ai-creative-compass-studio/internal/config"
)

// logConfigWarnings points out configurations that start fine but degrade
// behaviour in production.
func logConfigWarnings(cfg config.Config) {
	if cfg.N8NAPIKey == "" {
		log.Warn().Msg("WARNING [P0]: N8N_API_KEY is empty; every /api/n8n route answers 500")
	}
	if cfg.AdminAPIKey == "" {
		log.Warn().Msg("WARNING [P0]: ADMIN_API_KEY is empty; dashboard and admin routes are unauthenticated")
	}
	if !cfg.ReaperEnabled {
		log.Warn().Msg("WARNING [P0]: REAPER_ENABLED=false; jobs stuck in processing are never failed")
	}
	if !cfg.MetricsEnabled {
		log.Warn().Msg("WARNING [P1]: METRICS_ENABLED=false; no Prometheus metrics are exported")
	}
	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Warn().Msg("WARNING [P1]: STORE_DRIVER=memory; data is lost on restart and every instance runs background tasks")
	}
	if !cfg.TriggerEnabled {
		log.Info().Msg("INFO: TRIGGER_ENABLED=false; schedules only run when the workflow polls /api/n8n/schedules/due")
	}
}

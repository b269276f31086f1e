package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/tailrisk/internal/scheduler"
)

// SystemHandlers handles system monitoring and operations endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	startupTime time.Time
	scheduler   *scheduler.Scheduler
	refreshJob  scheduler.Job
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(log zerolog.Logger, sched *scheduler.Scheduler, refreshJob scheduler.Job) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		startupTime: time.Now(),
		scheduler:   sched,
		refreshJob:  refreshJob,
	}
}

// SystemHealthResponse represents the system health response
type SystemHealthResponse struct {
	Status            string  `json:"status"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
	Goroutines        int     `json:"goroutines"`
	CPUPercent        float64 `json:"cpu_percent"`
	MemoryUsedPercent float64 `json:"memory_used_percent"`
}

// SystemInfoResponse represents static build and runtime information
type SystemInfoResponse struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	NumCPU    int    `json:"num_cpu"`
	StartedAt string `json:"started_at"`
}

// HandleSystemHealth returns liveness plus resource usage
func (h *SystemHandlers) HandleSystemHealth(w http.ResponseWriter, r *http.Request) {
	cpuPercent, ramPercent := h.getSystemStats()

	response := SystemHealthResponse{
		Status:            "ok",
		UptimeSeconds:     time.Since(h.startupTime).Seconds(),
		Goroutines:        runtime.NumGoroutine(),
		CPUPercent:        cpuPercent,
		MemoryUsedPercent: ramPercent,
	}

	h.writeJSON(w, response)
}

// HandleSystemInfo returns static service information
func (h *SystemHandlers) HandleSystemInfo(w http.ResponseWriter, r *http.Request) {
	response := SystemInfoResponse{
		Service:   "tailrisk",
		Version:   "1.0.0",
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		NumCPU:    runtime.NumCPU(),
		StartedAt: h.startupTime.Format(time.RFC3339),
	}

	h.writeJSON(w, response)
}

// HandleTriggerRefresh runs the analysis refresh job immediately
// POST /api/v1/system/jobs/refresh
func (h *SystemHandlers) HandleTriggerRefresh(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil || h.refreshJob == nil {
		h.log.Warn().Msg("Refresh job not registered yet")
		h.writeJSON(w, map[string]string{
			"status":  "error",
			"message": "Refresh job not registered",
		})
		return
	}

	h.log.Info().Msg("Manual analysis refresh triggered")

	if err := h.scheduler.RunNow(h.refreshJob); err != nil {
		h.log.Error().Err(err).Msg("Failed to run analysis refresh")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, map[string]string{
		"status":  "success",
		"message": "Analysis refresh completed",
	})
}

// getSystemStats calculates CPU and RAM usage percentages
// Uses a short interval (100ms) so health checks respond quickly
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

// writeJSON writes a JSON response
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/events"
	"github.com/aristath/frontier/internal/reliability"
	"github.com/aristath/frontier/internal/scheduler"
)

// SystemHandlers serves status, maintenance and job endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	databases   []*database.DB
	scheduler   *scheduler.Scheduler
	backups     *reliability.BackupService
	bus         *events.Bus
}

// NewSystemHandlers creates the system handlers
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	databases []*database.DB,
	sched *scheduler.Scheduler,
	backups *reliability.BackupService,
	bus *events.Bus,
) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("handler", "system").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		databases:   databases,
		scheduler:   sched,
		backups:     backups,
		bus:         bus,
	}
}

// RegisterRoutes registers /api/system and /api/jobs
func (h *SystemHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/api/system", func(r chi.Router) {
		r.Get("/status", h.HandleSystemStatus)
		r.Get("/database/stats", h.HandleDatabaseStats)
		r.Get("/disk", h.HandleDiskUsage)
		r.Get("/backups", h.HandleListBackups)
	})
	r.Route("/api/jobs", func(r chi.Router) {
		r.Get("/", h.HandleListJobs)
		r.Post("/{name}", h.HandleTriggerJob)
	})
}

// SystemStatusResponse is the body of GET /api/system/status
type SystemStatusResponse struct {
	Status         string              `json:"status"`
	StartedAt      time.Time           `json:"started_at"`
	UptimeSeconds  int64               `json:"uptime_seconds"`
	CPUPercent     float64             `json:"cpu_percent"`
	MemoryPercent  float64             `json:"memory_percent"`
	Goroutines     int                 `json:"goroutines"`
	Databases      []*database.Stats   `json:"databases"`
	Subscribers    int                 `json:"event_subscribers"`
	Jobs           []scheduler.JobInfo `json:"jobs"`
	BackupsEnabled bool                `json:"backups_enabled"`
}

// DiskUsageResponse represents disk usage statistics
type DiskUsageResponse struct {
	DataDirMB   float64 `json:"data_dir_mb"`
	DownloadsMB float64 `json:"downloads_mb"`
	AvailableMB float64 `json:"available_mb"`
	UsedPercent float64 `json:"used_percent"`
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.getSystemStats()

	response := SystemStatusResponse{
		Status:         "healthy",
		StartedAt:      h.startupTime,
		UptimeSeconds:  int64(time.Since(h.startupTime).Seconds()),
		CPUPercent:     cpuPercent,
		MemoryPercent:  memPercent,
		Goroutines:     runtime.NumGoroutine(),
		Databases:      h.databaseStats(),
		Jobs:           h.scheduler.Jobs(),
		BackupsEnabled: h.backups != nil && h.backups.Enabled(),
	}
	if h.bus != nil {
		response.Subscribers = h.bus.SubscriberCount()
	}
	if len(response.Databases) < len(h.databases) {
		response.Status = "degraded"
	}

	writeJSON(w, http.StatusOK, response, h.log)
}

// HandleDatabaseStats handles GET /api/system/database/stats
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	stats := h.databaseStats()
	var totalBytes int64
	for _, s := range stats {
		totalBytes += s.SizeBytes + s.WALSizeBytes
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"databases":     stats,
		"total_size_mb": float64(totalBytes) / 1024 / 1024,
		"last_checked":  time.Now().Format(time.RFC3339),
	}, h.log)
}

// HandleDiskUsage handles GET /api/system/disk
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	response := DiskUsageResponse{
		DataDirMB:   h.getDirSize(h.dataDir),
		DownloadsMB: h.getDirSize(filepath.Join(h.dataDir, "downloads")),
	}

	usage, err := disk.UsageWithContext(r.Context(), h.dataDir)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get filesystem usage")
	} else {
		response.AvailableMB = float64(usage.Free) / 1024 / 1024
		response.UsedPercent = usage.UsedPercent
	}

	writeJSON(w, http.StatusOK, response, h.log)
}

// HandleListBackups handles GET /api/system/backups
func (h *SystemHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil || !h.backups.Enabled() {
		writeError(w, http.StatusServiceUnavailable, reliability.ErrStoreNotConfigured.Error(), h.log)
		return
	}

	backups, err := h.backups.ListBackups(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list backups")
		writeError(w, http.StatusBadGateway, err.Error(), h.log)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"backups": backups,
		"count":   len(backups),
	}, h.log)
}

// HandleListJobs handles GET /api/jobs
func (h *SystemHandlers) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs": h.scheduler.Jobs(),
	}, h.log)
}

// HandleTriggerJob handles POST /api/jobs/{name}. The job runs in the
// background; its outcome is logged.
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	err := h.scheduler.Trigger(name)
	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		writeError(w, http.StatusNotFound, err.Error(), h.log)
		return
	case errors.Is(err, scheduler.ErrJobRunning):
		writeError(w, http.StatusConflict, err.Error(), h.log)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error(), h.log)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "triggered",
		"job":    name,
	}, h.log)
}

func (h *SystemHandlers) databaseStats() []*database.Stats {
	stats := make([]*database.Stats, 0, len(h.databases))
	for _, db := range h.databases {
		s, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to get database stats")
			continue
		}
		stats = append(stats, s)
	}
	return stats
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// getSystemStats calculates CPU and RAM usage percentages.
// CPU is sampled over 100ms to keep the endpoint responsive.
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

package handler

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"livedetect/internal/config"
	"livedetect/internal/dto"
	"livedetect/internal/logger"
	"livedetect/internal/model"
	"livedetect/internal/repository"

	"github.com/google/uuid"
)

// GetSessionsHandler returns a filtered, paginated list of detection runs.
func GetSessionsHandler(logger *logger.Logger, sessionRepo repository.SessionRepository,
	detectionRepo repository.DetectionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		limit := atoiDefault(q.Get("limit"), 20)

		filter := &dto.SessionFilters{
			State:      q.Get("state"),
			Label:      q.Get("label"),
			DateAfter:  parseDate(q.Get("dateAfter")),
			DateBefore: parseDate(q.Get("dateBefore")),
			Limit:      limit,
			Offset:     (page - 1) * limit,
		}

		sessions, err := sessionRepo.GetAll(filter)
		if err != nil {
			logger.Error("Error querying sessions from database: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		totalCount, err := sessionRepo.GetTotalCount(filter)
		if err != nil {
			logger.Error("Error counting sessions: %v", err)
			totalCount = len(sessions)
		}

		infos := make([]dto.SessionInfo, 0, len(sessions))
		for _, s := range sessions {
			labels := []string{}
			if detectionRepo != nil {
				labels, err = detectionRepo.GetLabelsBySessionID(s.ID)
				if err != nil {
					logger.Error("Error getting labels for session %s: %v", s.ID, err)
					labels = []string{}
				}
			}

			infos = append(infos, dto.SessionInfo{
				ID:         s.ID,
				StartedAt:  s.StartedAt,
				FinishedAt: s.FinishedAt,
				State:      s.State,
				Frames:     s.Frames,
				Error:      s.Error,
				Labels:     labels,
			})
		}

		data := dto.SessionsData{
			Sessions:    infos,
			Length:      totalCount,
			TotalPages:  (totalCount + limit - 1) / limit,
			CurrentPage: page,
			Limit:       limit,
		}
		writeJSON(w, logger, data)
	}
}

// GetSessionDetectionsHandler returns every detection stored for one run.
func GetSessionDetectionsHandler(logger *logger.Logger, sessionRepo repository.SessionRepository,
	detectionRepo repository.DetectionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "Session id required", http.StatusBadRequest)
			return
		}

		session, err := sessionRepo.GetByID(id)
		if err != nil {
			logger.Error("Error loading session %s: %v", id, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if session == nil {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}

		detections, err := detectionRepo.GetBySessionID(id)
		if err != nil {
			logger.Error("Error loading detections of session %s: %v", id, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if detections == nil {
			detections = []model.Detection{}
		}
		writeJSON(w, logger, detections)
	}
}

// GetStatsHandler returns aggregate numbers over all runs.
func GetStatsHandler(logger *logger.Logger, sessionRepo repository.SessionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := sessionRepo.GetStats()
		if err != nil {
			logger.Error("Error computing session stats: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, logger, stats)
	}
}

// ActiveSession reports the id of the run in progress, or "" when none is.
type ActiveSession interface {
	ActiveSessionID() string
}

func activeID(active ActiveSession) string {
	if active == nil {
		return ""
	}
	return active.ActiveSessionID()
}

// DeleteSessionHandler removes a run, its detections and its snapshots.
// The run in progress cannot be deleted.
func DeleteSessionHandler(cfg *config.Config, logger *logger.Logger, sessionRepo repository.SessionRepository,
	active ActiveSession) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		parsed, err := uuid.Parse(r.URL.Query().Get("id"))
		if err != nil {
			http.Error(w, "Valid session id required", http.StatusBadRequest)
			return
		}
		id := parsed.String()
		if id == activeID(active) {
			http.Error(w, "Session is still running", http.StatusConflict)
			return
		}

		if err := sessionRepo.Delete(id); err != nil {
			logger.Error("Failed to delete session %s: %v", id, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if err := os.RemoveAll(filepath.Join(cfg.SnapshotDir, id)); err != nil {
			logger.Error("Failed to delete snapshots of %s: %v", id, err)
		}

		logger.Info("Deleted session: %s", id)
		writeJSON(w, logger, map[string]string{"status": "deleted", "id": id})
	}
}

// ClearSessionsHandler deletes every run and every snapshot except those of
// the run in progress.
func ClearSessionsHandler(cfg *config.Config, logger *logger.Logger, sessionRepo repository.SessionRepository,
	active ActiveSession) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		keep := activeID(active)
		if err := sessionRepo.DeleteAllExcept(keep); err != nil {
			logger.Error("Error clearing database: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		entries, err := os.ReadDir(cfg.SnapshotDir)
		if err != nil && !os.IsNotExist(err) {
			logger.Error("Error reading snapshot directory: %v", err)
		}
		for _, entry := range entries {
			if keep != "" && entry.Name() == keep {
				continue
			}
			if err := os.RemoveAll(filepath.Join(cfg.SnapshotDir, entry.Name())); err != nil {
				logger.Error("Error deleting %s: %v", entry.Name(), err)
			}
		}

		logger.Info("All sessions cleared")
		w.WriteHeader(http.StatusNoContent)
	}
}

// ViewSnapshotHandler serves one snapshot named by the "name" query parameter.
func ViewSnapshotHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if name == "" {
			http.Error(w, "Name parameter is required", http.StatusBadRequest)
			return
		}

		clean := filepath.Clean(filepath.FromSlash(name))
		if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			http.Error(w, "Invalid name", http.StatusBadRequest)
			return
		}
		http.ServeFile(w, r, filepath.Join(cfg.SnapshotDir, clean))
	}
}

func writeJSON(w http.ResponseWriter, logger *logger.Logger, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

// parseDate parses a date string in the format "2006-01-02" from the request (HTML input format).
func parseDate(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}
	}
	return t
}

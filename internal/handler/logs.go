package handler

import (
	"net/http"
	"os"
	"path/filepath"

	"livedetect/internal/logger"
)

// ShowLogsHandler serves one of the level log files as text/plain.
func ShowLogsHandler(logger *logger.Logger, fileName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serveLogFile(w, r, logger.Dir(), fileName)
	}
}

// serveLogFile is a helper that sets headers and serves a log file if it exists.
func serveLogFile(w http.ResponseWriter, r *http.Request, logDir, filename string) {
	filePath := filepath.Join(logDir, filename)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("Log file not found: " + filename))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")

	http.ServeFile(w, r, filePath)
}

// ClearLogsHandler truncates one of the level log files.
func ClearLogsHandler(logger *logger.Logger, fileName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := logger.CleanLogs(fileName); err != nil {
			logger.Error("Error clearing logs: %v", err)
			http.Error(w, "Unable to clear logs", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

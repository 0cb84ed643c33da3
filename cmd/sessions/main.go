package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"time"

	"livedetect/internal/dto"
	"livedetect/internal/repository"
	"livedetect/internal/repository/sqlite"
)

func main() {
	dbPath := flag.String("db", "data/sessions.db", "Database path")
	state := flag.String("state", "", "Only list sessions in this state")
	label := flag.String("label", "", "Only list sessions that detected this label")
	limit := flag.Int("limit", 20, "Maximum number of sessions to list")
	flag.Parse()

	if _, err := os.Stat(*dbPath); err != nil {
		log.Fatalf("Database not found: %v", err)
	}

	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	filter := &dto.SessionFilters{State: *state, Label: *label, Limit: *limit}
	if err := report(os.Stdout, sqlite.NewSessionRepository(db), sqlite.NewDetectionRepository(db), filter); err != nil {
		log.Fatalf("Failed to read sessions: %v", err)
	}
}

// report prints the matching sessions followed by totals over the whole history.
func report(w io.Writer, sessions repository.SessionRepository, detections repository.DetectionRepository, filter *dto.SessionFilters) error {
	list, err := sessions.GetAll(filter)
	if err != nil {
		return err
	}

	if len(list) == 0 {
		fmt.Fprintln(w, "No sessions recorded")
	}
	for _, s := range list {
		labels, err := detections.GetLabelsBySessionID(s.ID)
		if err != nil {
			return err
		}
		finished := "running"
		if !s.FinishedAt.IsZero() {
			finished = s.FinishedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s  %s  %-8s %5d frames  %-8s %v\n",
			s.ID, s.StartedAt.Format("2006-01-02 15:04:05"), s.State, s.Frames, finished, labels)
		if s.Error != "" {
			fmt.Fprintf(w, "    error: %s\n", s.Error)
		}
	}

	stats, err := sessions.GetStats()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\nSessions: %d  Frames: %d  Detections: %d\n",
		stats.TotalSessions, stats.TotalFrames, stats.TotalDetections)

	for _, state := range sortedKeys(stats.PerState) {
		fmt.Fprintf(w, "  %-10s %d\n", state, stats.PerState[state])
	}
	if len(stats.LabelCounts) > 0 {
		fmt.Fprintln(w, "Labels:")
	}
	for _, label := range sortedKeys(stats.LabelCounts) {
		fmt.Fprintf(w, "  %-16s %d\n", label, stats.LabelCounts[label])
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	app "github.com/pulsehr/analytics_layer/internal/app"
	"github.com/pulsehr/analytics_layer/internal/app/domain/analytics"
	"github.com/pulsehr/analytics_layer/internal/app/domain/contribution"
	"github.com/pulsehr/analytics_layer/internal/app/domain/employee"
	"github.com/pulsehr/analytics_layer/internal/app/domain/engagement"
	"github.com/pulsehr/analytics_layer/internal/app/metrics"
	analyticssvc "github.com/pulsehr/analytics_layer/internal/app/services/analytics"
	backupsvc "github.com/pulsehr/analytics_layer/internal/app/services/backup"
	exportsvc "github.com/pulsehr/analytics_layer/internal/app/services/export"
	"github.com/pulsehr/analytics_layer/internal/app/storage"
	"github.com/pulsehr/analytics_layer/pkg/logger"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app   *app.Application
	audit *auditLog
	log   *logger.Logger
}

// HandlerOptions tunes the middleware stack around the REST API.
type HandlerOptions struct {
	// AuditPath persists audit entries as JSONL when non-empty. A sink open
	// failure falls back to in-memory only.
	AuditPath string
	// AllowedOrigins lists CORS origins; empty means allow all.
	AllowedOrigins []string
}

// NewHandler returns the REST API wrapped with tenant resolution, audit
// recording, CORS, and HTTP metrics.
func NewHandler(application *app.Application) http.Handler {
	return NewHandlerWithOptions(application, HandlerOptions{})
}

// NewHandlerWithAuditFile is NewHandler with a persistent audit sink.
func NewHandlerWithAuditFile(application *app.Application, auditPath string) http.Handler {
	return NewHandlerWithOptions(application, HandlerOptions{AuditPath: auditPath})
}

// NewHandlerWithOptions builds the REST API with the full middleware stack.
func NewHandlerWithOptions(application *app.Application, opts HandlerOptions) http.Handler {
	sink, err := newFileAuditSink(opts.AuditPath)
	var auditSink auditSink
	if err == nil && sink != nil {
		auditSink = sink
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	h := &handler{
		app:   application,
		audit: newAuditLog(0, auditSink),
		log:   logger.NewDefault("httpapi"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/employees", h.employees)
	mux.HandleFunc("/employees/", h.employeeResource)
	mux.HandleFunc("/contributions", h.contributions)
	mux.HandleFunc("/interactions", h.interactions)
	mux.HandleFunc("/kudos", h.kudos)
	mux.HandleFunc("/analytics/", h.analytics)
	mux.HandleFunc("/backups/", h.backups)
	mux.HandleFunc("/exports/", h.exports)
	mux.HandleFunc("/audit", h.auditEntries)
	mux.HandleFunc("/healthz", h.healthz)
	mux.Handle("/metrics", metrics.Handler())

	cors := newCORSMiddleware(origins)
	return metrics.InstrumentHandler(cors.handler(requireTenant(h.audit.record(mux))))
}

func (h *handler) employees(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFromContext(r.Context())
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Name       string `json:"name"`
			Team       string `json:"team"`
			Department string `json:"department"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		emp, err := h.app.Directory.CreateEmployee(r.Context(), tenant, employee.Employee{
			Name:       payload.Name,
			Team:       payload.Team,
			Department: payload.Department,
		})
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, employeeBody(emp))

	case http.MethodGet:
		page := pageFromQuery(r)
		items, total, err := h.app.Directory.ListEmployees(r.Context(), tenant, page)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		out := make([]any, 0, len(items))
		for _, emp := range items {
			out = append(out, employeeBody(emp))
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": out, "total": total})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) employeeResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/employees"), "/")
	if id == "" || strings.Contains(id, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	emp, err := h.app.Directory.GetEmployee(r.Context(), tenantFromContext(r.Context()), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, employeeBody(emp))
}

func (h *handler) contributions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		EmployeeID     string    `json:"employee_id"`
		ProblemSolving float64   `json:"problem_solving"`
		Collaboration  float64   `json:"collaboration"`
		Initiative     float64   `json:"initiative"`
		Overall        float64   `json:"overall_score"`
		CalculatedAt   time.Time `json:"calculated_at"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tenant := tenantFromContext(r.Context())
	rec, err := h.app.Directory.RecordContribution(r.Context(), tenant, contribution.Record{
		EmployeeID:     payload.EmployeeID,
		ProblemSolving: payload.ProblemSolving,
		Collaboration:  payload.Collaboration,
		Initiative:     payload.Initiative,
		Overall:        payload.Overall,
		CalculatedAt:   payload.CalculatedAt,
	})
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, storage.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	// The stored record is authoritative; a failed log append must not fail
	// the request.
	if _, err := h.app.Exports.AppendContribution(r.Context(), tenant, &rec); err != nil {
		if errors.Is(err, exportsvc.ErrLockTimeout) {
			metrics.RecordExportLockTimeout()
		}
		h.log.WithError(err).WithField("tenant_id", tenant).Warn("failed to append contribution log")
	}
	writeJSON(w, http.StatusCreated, contributionBody(rec))
}

func (h *handler) interactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		EmployeeID string    `json:"employee_id"`
		Kind       string    `json:"kind"`
		OccurredAt time.Time `json:"occurred_at"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	in, err := h.app.Directory.RecordInteraction(r.Context(), tenantFromContext(r.Context()), engagement.Interaction{
		EmployeeID: payload.EmployeeID,
		Kind:       payload.Kind,
		OccurredAt: payload.OccurredAt,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": in.ID})
}

func (h *handler) kudos(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		FromEmployeeID string `json:"from_employee_id"`
		ToEmployeeID   string `json:"to_employee_id"`
		Message        string `json:"message"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	k, err := h.app.Directory.RecordKudos(r.Context(), tenantFromContext(r.Context()), engagement.Kudos{
		FromEmployeeID: payload.FromEmployeeID,
		ToEmployeeID:   payload.ToEmployeeID,
		Message:        payload.Message,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": k.ID})
}

func (h *handler) analytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenant := tenantFromContext(r.Context())
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/analytics"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	start := time.Now()
	switch parts[0] {
	case "employee":
		if len(parts) < 2 || parts[1] == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		employeeID := parts[1]
		if len(parts) == 3 && parts[2] == "history" {
			points, err := h.app.Analytics.EmployeeHistory(r.Context(), tenant, employeeID)
			metrics.RecordAggregation("employee_history", time.Since(start), err)
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			out := make([]any, 0, len(points))
			for _, p := range points {
				out = append(out, map[string]any{
					"calculated_at":   p.CalculatedAt,
					"problem_solving": p.Scores.ProblemSolving,
					"collaboration":   p.Scores.Collaboration,
					"initiative":      p.Scores.Initiative,
					"overall_score":   p.Scores.Overall,
				})
			}
			writeJSON(w, http.StatusOK, out)
			return
		}
		if len(parts) != 2 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		m, err := h.app.Analytics.EmployeeMetrics(r.Context(), tenant, employeeID)
		metrics.RecordAggregation("employee_metrics", time.Since(start), err)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"employee_id":     m.EmployeeID,
			"name":            m.Name,
			"team":            m.Team,
			"department":      m.Department,
			"problem_solving": m.Scores.ProblemSolving,
			"collaboration":   m.Scores.Collaboration,
			"initiative":      m.Scores.Initiative,
			"overall_score":   m.Scores.Overall,
		})

	case "team":
		if len(parts) != 2 || parts[1] == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		m, err := h.app.Analytics.TeamMetrics(r.Context(), tenant, parts[1])
		metrics.RecordAggregation("team_metrics", time.Since(start), err)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"team":           m.Team,
			"member_count":   m.MemberCount,
			"average_scores": scoreBody(m.AverageScores),
		})

	case "department":
		if len(parts) != 2 || parts[1] == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		m, err := h.app.Analytics.DepartmentMetrics(r.Context(), tenant, parts[1])
		metrics.RecordAggregation("department_metrics", time.Since(start), err)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"department":     m.Department,
			"employee_count": m.EmployeeCount,
			"team_count":     m.TeamCount,
			"average_scores": scoreBody(m.AverageScores),
		})

	case "stats":
		stats, err := h.app.Analytics.OverallStats(r.Context(), tenant)
		metrics.RecordAggregation("overall_stats", time.Since(start), err)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"total_employees":    stats.TotalEmployees,
			"total_interactions": stats.TotalInteractions,
			"total_kudos":        stats.TotalKudos,
			"average_scores":     scoreBody(stats.AverageScores),
		})

	case "top-contributors":
		ranking, err := h.app.Analytics.TopContributors(r.Context(), tenant)
		metrics.RecordAggregation("top_contributors", time.Since(start), err)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		out := make([]any, 0, len(ranking))
		for _, entry := range ranking {
			out = append(out, map[string]any{
				"employee_id":   entry.EmployeeID,
				"name":          entry.Name,
				"team":          entry.Team,
				"department":    entry.Department,
				"overall_score": entry.Overall,
			})
		}
		writeJSON(w, http.StatusOK, out)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) backups(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/backups"), "/")
	switch trimmed {
	case "create":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var payload struct {
			Path string `json:"path"`
			Name string `json:"name"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		snap, err := h.app.Backups.CreateSnapshot(r.Context(), payload.Path, payload.Name)
		metrics.RecordBackup("create", err == nil)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, snapshotBody(snap))

	case "create-all":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		snaps, err := h.app.Backups.CreateAll(r.Context(), h.app.DataDir)
		metrics.RecordBackup("create_all", err == nil)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		out := make([]any, 0, len(snaps))
		for _, snap := range snaps {
			out = append(out, snapshotBody(snap))
		}
		writeJSON(w, http.StatusCreated, out)

	case "list":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		snaps, err := h.app.Backups.ListSnapshots(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		out := make([]any, 0, len(snaps))
		for _, snap := range snaps {
			out = append(out, snapshotBody(snap))
		}
		writeJSON(w, http.StatusOK, out)

	case "restore":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var payload struct {
			BackupFileName string `json:"backupFileName"`
			TargetFileName string `json:"targetFileName"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		err := h.app.Backups.RestoreSnapshot(r.Context(), payload.BackupFileName, payload.TargetFileName)
		metrics.RecordBackup("restore", err == nil)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case "verify":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var payload struct {
			BackupFileName   string `json:"backupFileName"`
			ExpectedChecksum string `json:"expectedChecksum"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		ok, err := h.app.Backups.VerifyIntegrity(r.Context(), payload.BackupFileName, payload.ExpectedChecksum)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"valid": ok})

	case "purge":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var payload struct {
			Days int `json:"days"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		deleted, err := h.app.Backups.PurgeOlderThan(r.Context(), payload.Days)
		metrics.RecordPurged(deleted)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})

	case "status":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		status, err := h.app.Backups.Status(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"dir":        status.Dir,
			"count":      status.Count,
			"total_size": status.TotalSize,
			"oldest":     status.Oldest,
			"newest":     status.Newest,
		})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) exports(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/exports"), "/")
	if trimmed != "employee-metrics" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenant := tenantFromContext(r.Context())
	path, rows, err := h.app.Exports.ExportEmployeeMetrics(r.Context(), tenant)
	if err != nil {
		if errors.Is(err, exportsvc.ErrLockTimeout) {
			metrics.RecordExportLockTimeout()
		}
		writeError(w, statusFor(err), err)
		return
	}
	metrics.RecordExport("employee-metrics", rows)
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "rows": rows})
}

func (h *handler) auditEntries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, h.audit.listLimit(limit))
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- helpers ----------------------------------------------------------------

func pageFromQuery(r *http.Request) storage.Page {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return storage.Page{Offset: offset, Limit: limit}
}

func statusFor(err error) int {
	switch {
	case analyticssvc.IsNotFound(err), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, exportsvc.ErrLockTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func employeeBody(emp employee.Employee) map[string]any {
	return map[string]any{
		"id":         emp.ID,
		"name":       emp.Name,
		"team":       emp.Team,
		"department": emp.Department,
		"created_at": emp.CreatedAt,
		"updated_at": emp.UpdatedAt,
	}
}

func contributionBody(rec contribution.Record) map[string]any {
	return map[string]any{
		"id":              rec.ID,
		"employee_id":     rec.EmployeeID,
		"problem_solving": rec.ProblemSolving,
		"collaboration":   rec.Collaboration,
		"initiative":      rec.Initiative,
		"overall_score":   rec.Overall,
		"calculated_at":   rec.CalculatedAt,
	}
}

func scoreBody(s analytics.ScoreSet) map[string]any {
	return map[string]any{
		"problem_solving": s.ProblemSolving,
		"collaboration":   s.Collaboration,
		"initiative":      s.Initiative,
		"overall_score":   s.Overall,
	}
}

func snapshotBody(snap backupsvc.Snapshot) map[string]any {
	return map[string]any{
		"name":        snap.Name,
		"source_path": snap.SourcePath,
		"path":        snap.Path,
		"size":        snap.Size,
		"created_at":  snap.CreatedAt,
		"checksum":    snap.Checksum,
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

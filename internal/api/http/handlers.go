package apihttp

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	accountifaces "gasledger/internal/account/interfaces"
	"gasledger/internal/auth"
	history "gasledger/internal/history/domain"
	"gasledger/internal/observability/metrics"
	"gasledger/internal/reconcile/application"
)

const entriesPrefix = "/api/v1/entries/"

// ResultSource exposes the latest reconciliation cycle per entry.
type ResultSource interface {
	Latest(entryID string) (*application.CycleResult, bool)
}

// EntriesHandler serves the per-entry read API:
//
//	GET /api/v1/entries/{id}/summary
//	GET /api/v1/entries/{id}/history[.csv]?from=&to=
//	GET /api/v1/entries/{id}/stats?from=&to=
//	GET /api/v1/entries/{id}/report.xlsx
//	GET /api/v1/entries/{id}/report.pdf
type EntriesHandler struct {
	store   history.Store
	results ResultSource
	logger  *log.Logger
}

// NewEntriesHandler constructs an EntriesHandler.
func NewEntriesHandler(store history.Store, results ResultSource, logger *log.Logger) *EntriesHandler {
	return &EntriesHandler{store: store, results: results, logger: logger}
}

// ServeHTTP routes entry requests.
func (h *EntriesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.store == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, entriesPrefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		http.NotFound(w, r)
		return
	}
	entryID, action := parts[0], parts[1]

	if !auth.EntryAllowed(r.Context(), entryID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	switch action {
	case "summary":
		h.serveSummary(w, r, entryID)
	case "history":
		h.serveHistory(w, r, entryID, false)
	case "history.csv":
		h.serveHistory(w, r, entryID, true)
	case "stats":
		h.serveStats(w, r, entryID)
	case "report.xlsx":
		h.serveReport(w, r, entryID, "xlsx")
	case "report.pdf":
		h.serveReport(w, r, entryID, "pdf")
	default:
		http.NotFound(w, r)
	}
}

func (h *EntriesHandler) serveSummary(w http.ResponseWriter, r *http.Request, entryID string) {
	if h.results != nil {
		if result, ok := h.results.Latest(entryID); ok {
			writeJSON(w, result)
			return
		}
	}
	// No cycle since startup: fall back to persisted state.
	state, ok := h.loadState(r.Context(), w, entryID)
	if !ok {
		return
	}
	writeJSON(w, summaryFromState(state))
}

func (h *EntriesHandler) serveHistory(w http.ResponseWriter, r *http.Request, entryID string, asCSV bool) {
	state, ok := h.loadState(r.Context(), w, entryID)
	if !ok {
		return
	}
	from, to := dateRange(r)
	records := state.DaysBetween(from, to)

	if !asCSV {
		writeJSON(w, records)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"date", "usage", "cost", "start_balance", "recharge_total", "flagged"})
	for _, record := range records {
		_ = writer.Write([]string{
			record.Date,
			formatFloat(record.Usage),
			formatFloat(record.Cost),
			formatFloat(record.StartBalance),
			formatFloat(record.RechargeTotal),
			strconv.FormatBool(record.Flagged),
		})
	}
	writer.Flush()
}

func (h *EntriesHandler) serveStats(w http.ResponseWriter, r *http.Request, entryID string) {
	state, ok := h.loadState(r.Context(), w, entryID)
	if !ok {
		return
	}
	from, to := dateRange(r)
	writeJSON(w, state.RollingStats(from, to))
}

func (h *EntriesHandler) serveReport(w http.ResponseWriter, r *http.Request, entryID, format string) {
	state, ok := h.loadState(r.Context(), w, entryID)
	if !ok {
		return
	}

	report := accountifaces.ReportFromState(state, time.Now())
	if h.results != nil {
		if result, resolved := h.results.Latest(entryID); resolved {
			report.Balance = result.Balance
			report.Arrears = result.Arrears
			report.MonthUsage = result.MonthUsage
			report.MonthCost = result.MonthCost
			report.TotalUsage = result.TotalUsage
			report.AvailableDays = result.AvailableDays
			report.ActiveTierPrice = result.ActiveTierPrice
		}
	}

	started := time.Now()
	var payload []byte
	var err error
	switch format {
	case "xlsx":
		payload, err = accountifaces.BuildUsageReportXLSX(report)
	default:
		payload, err = accountifaces.BuildUsageReportPDF(report)
	}
	if err != nil {
		metrics.ObserveReportExport(format, metrics.ResultError, time.Since(started))
		h.logf("api: report export failed entry=%s format=%s err=%v", entryID, format, err)
		http.Error(w, "report export error", http.StatusInternalServerError)
		return
	}
	metrics.ObserveReportExport(format, metrics.ResultSuccess, time.Since(started))

	switch format {
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	default:
		w.Header().Set("Content-Type", "application/pdf")
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+entryID+`-report.`+format+`"`)
	_, _ = w.Write(payload)
}

func (h *EntriesHandler) loadState(ctx context.Context, w http.ResponseWriter, entryID string) (*history.PersistedState, bool) {
	state, err := h.store.Load(ctx, entryID)
	if err != nil {
		h.logf("api: load state failed entry=%s err=%v", entryID, err)
		http.Error(w, "load state error", http.StatusInternalServerError)
		return nil, false
	}
	if !state.Initialized {
		http.Error(w, "entry not tracked", http.StatusNotFound)
		return nil, false
	}
	return state, true
}

func (h *EntriesHandler) logf(format string, args ...any) {
	if h.logger != nil {
		h.logger.Printf(format, args...)
	}
}

type stateSummary struct {
	EntryID    string               `json:"entry_id"`
	Balance    float64              `json:"balance"`
	LastPollAt time.Time            `json:"last_poll_at"`
	MonthUsage float64              `json:"month_usage"`
	Stats      history.RollingStats `json:"stats"`
}

func summaryFromState(state *history.PersistedState) stateSummary {
	return stateSummary{
		EntryID:    state.EntryID,
		Balance:    state.LastBalance,
		LastPollAt: state.LastPollAt,
		MonthUsage: state.MonthUsageTotal(),
		Stats:      state.RollingStats("", ""),
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func dateRange(r *http.Request) (string, string) {
	return r.URL.Query().Get("from"), r.URL.Query().Get("to")
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

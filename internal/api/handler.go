package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/machinepulse/machinepulse/internal/alerts"
	"github.com/machinepulse/machinepulse/internal/compute"
	"github.com/machinepulse/machinepulse/internal/store"
	"github.com/machinepulse/machinepulse/pkg/types"
)

// maxUploadBytes caps the body of POST /api/v1/analyze.
const maxUploadBytes = 32 << 20

// AlertSource supplies the alerts listed by the API.
type AlertSource interface {
	Active() []*alerts.Alert
}

// AnalyzeFunc parses an uploaded CSV document and analyses it.
type AnalyzeFunc func(r io.Reader) (*compute.Result, error)

// Option configures a Handler.
type Option func(*Handler)

// WithAlerts lists alerts from src on /api/v1/alerts and in snapshots.
func WithAlerts(src AlertSource) Option {
	return func(h *Handler) { h.alerts = src }
}

// WithAnalyzer enables POST /api/v1/analyze.
func WithAnalyzer(fn AnalyzeFunc) Option {
	return func(h *Handler) { h.analyze = fn }
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	store   *store.Store
	alerts  AlertSource
	analyze AnalyzeFunc
	mux     *http.ServeMux
}

// New creates a Handler wired to the given result store and registers all routes.
func New(st *store.Store, opts ...Option) http.Handler {
	h := &Handler{store: st, mux: http.NewServeMux()}
	for _, o := range opts {
		o(h)
	}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/lines", h.listLines)
	h.mux.HandleFunc("/api/v1/lines/", h.getLine) // subtree, extracts {id}
	h.mux.HandleFunc("/api/v1/alerts", h.listAlerts)
	h.mux.HandleFunc("/api/v1/snapshot", h.snapshot)
	h.mux.HandleFunc("/api/v1/analyze", h.analyzeUpload)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health: worst state and per-state counts.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entries := h.store.List()
	resp := HealthResponse{LineCount: len(entries), State: compute.StateUnknown}
	if h.alerts != nil {
		for _, a := range h.alerts.Active() {
			if a.State == alerts.StateFiring {
				resp.AlertCount++
			}
		}
	}

	worst := -1
	for _, e := range entries {
		res := e.Result
		switch res.State {
		case compute.StateLow:
			resp.LowCount++
		case compute.StateMedium:
			resp.MediumCount++
		case compute.StateHigh:
			resp.HighCount++
		default:
			resp.UnknownCount++
			continue
		}
		if rank := stateRank(res.State); rank > worst {
			worst = rank
			resp.State = res.State
		}
		if res.Indicators.FailureProbability > resp.MaxFailureProbability {
			resp.MaxFailureProbability = res.Indicators.FailureProbability
		}
		ttm := res.Indicators.TimeToMaintenance
		if resp.MinTimeToMaintenance == nil || ttm < *resp.MinTimeToMaintenance {
			resp.MinTimeToMaintenance = &ttm
		}
	}
	jsonResp(w, http.StatusOK, resp)
}

// listLines returns GET /api/v1/lines: all live lines.
func (h *Handler) listLines(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, lineResponses(h.store))
}

// getLine returns GET /api/v1/lines/{id}: a single live line.
func (h *Handler) getLine(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/lines/")
	if id == "" {
		h.listLines(w, r)
		return
	}

	e, ok := h.store.Get(id)
	if !ok {
		jsonErr(w, http.StatusNotFound, "line not found")
		return
	}
	jsonResp(w, http.StatusOK, ToLineResponse(e))
}

// listAlerts returns GET /api/v1/alerts: firing and recently resolved alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, alertViews(h.alerts))
}

// snapshot returns GET /api/v1/snapshot: every live line plus alerts.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, BuildSnapshot(h.store, h.alerts))
}

// analyzeUpload handles POST /api/v1/analyze: the request body is a CSV
// document, the response the analysed line.
func (h *Handler) analyzeUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.analyze == nil {
		jsonErr(w, http.StatusNotFound, "analysis is not enabled")
		return
	}

	res, err := h.analyze(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, fmt.Sprintf("analyze: %v", err))
		return
	}
	if res.LineID == "" {
		res.LineID = "upload"
	}
	jsonResp(w, http.StatusOK, ToLineResponse(&store.Entry{Result: res, UpdatedAt: res.Timestamp}))
}

// --- snapshot building ------------------------------------------------------

// BuildSnapshot assembles the full snapshot served by the API and the
// WebSocket stream. al may be nil.
func BuildSnapshot(st *store.Store, al AlertSource) SnapshotResponse {
	return SnapshotResponse{
		Lines:       lineResponses(st),
		Alerts:      alertViews(al),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

func lineResponses(st *store.Store) []LineResponse {
	entries := st.List()
	out := make([]LineResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, ToLineResponse(e))
	}
	return out
}

func alertViews(al AlertSource) []AlertView {
	if al == nil {
		return []AlertView{}
	}
	active := al.Active()
	out := make([]AlertView, 0, len(active))
	for _, a := range active {
		v := AlertView{
			ID:       a.ID,
			RuleName: a.RuleName,
			LineID:   a.LineID,
			Severity: a.Severity,
			Message:  a.Message,
			Value:    a.Value,
			FiredAt:  a.FiredAt.UTC().Format(time.RFC3339),
			State:    a.State,
		}
		if a.ResolvedAt != nil {
			v.ResolvedAt = a.ResolvedAt.UTC().Format(time.RFC3339)
		}
		out = append(out, v)
	}
	return out
}

// toLineResponse maps a store.Entry to its JSON representation.
func ToLineResponse(e *store.Entry) LineResponse {
	res := e.Result
	bounds := res.Bounds
	if bounds == nil {
		bounds = []types.FieldBounds{}
	}
	regions := res.Regions
	if regions == nil {
		regions = []types.AnomalyRegion{}
	}
	return LineResponse{
		LineID:       res.LineID,
		Kind:         res.Kind,
		State:        res.State,
		Bounds:       bounds,
		Regions:      regions,
		Indicators:   res.Indicators,
		YDomain:      res.YDomain,
		ReadingCount: res.ReadingCount,
		UptimePct:    res.UptimePct,
		ErrorMessage: res.ErrorMessage,
		Latest:       res.Latest,
		Diagnostics:  computeDiagnostics(res),
		LastSeen:     e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// stateRank orders analysed states by severity.
func stateRank(state string) int {
	switch state {
	case compute.StateHigh:
		return 2
	case compute.StateMedium:
		return 1
	case compute.StateLow:
		return 0
	default:
		return -1
	}
}

// --- helpers ----------------------------------------------------------------

// jsonResp encodes v before writing the status so an encoding failure
// becomes a 500 instead of an empty success.
func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("api: encode response failed", "err", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"internal error"}` + "\n")) //nolint:errcheck
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(append(data, '\n')) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

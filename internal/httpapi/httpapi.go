// Package httpapi is the thin HTTP adapter onto the kernel's command API
// (spec.md §6): every handler here does request decoding, a single kernel
// call, and response encoding, with no business logic of its own.
package httpapi

import (
	"encoding/json"
	"io/fs"
	"net/http"

	"github.com/filippods/irrigazione5/internal/connectivity"
	"github.com/filippods/irrigazione5/internal/events"
	"github.com/filippods/irrigazione5/internal/kernel"
	"github.com/filippods/irrigazione5/internal/kernelerr"
	"github.com/filippods/irrigazione5/internal/model"
	"github.com/filippods/irrigazione5/pkg/webui"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// Config wires a Handler's collaborators.
type Config struct {
	Kernel       *kernel.Kernel
	Connectivity *connectivity.Supervisor
	Events       *events.Bus
	RestartFunc  func() error // defaults to rebooting the host
	Log          zerolog.Logger
}

// Handler holds the HTTP adapter's dependencies.
type Handler struct {
	kernel       *kernel.Kernel
	connectivity *connectivity.Supervisor
	events       *events.Bus
	restart      func() error
	log          zerolog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(cfg Config) *Handler {
	restart := cfg.RestartFunc
	if restart == nil {
		restart = defaultRestart
	}
	return &Handler{
		kernel:       cfg.Kernel,
		connectivity: cfg.Connectivity,
		events:       cfg.Events,
		restart:      restart,
		log:          cfg.Log.With().Str("component", "httpapi").Logger(),
	}
}

// NewRouter builds the full chi router: CORS, the command/query endpoints of
// spec.md §6, and the live status websocket.
func NewRouter(cfg Config) http.Handler {
	h := NewHandler(cfg)
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
	}))

	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes wires every endpoint onto router, in the teacher's
// RegisterRoutes-on-a-Handler idiom.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/data/user_settings.json", h.handleGetSettings)
	r.Get("/data/program.json", h.handleGetPrograms)
	r.Get("/data/system_log.json", h.handleGetSystemLog)

	r.Post("/save_program", h.handleSaveProgram)
	r.Put("/update_program", h.handleUpdateProgram)
	r.Post("/delete_program", h.handleDeleteProgram)
	r.Post("/start_program", h.handleStartProgram)
	r.Post("/stop_program", h.handleStopProgram)

	r.Post("/start_zone", h.handleStartZone)
	r.Post("/stop_zone", h.handleStopZone)
	r.Get("/get_zones_status", h.handleGetZonesStatus)
	r.Get("/get_program_state", h.handleGetProgramState)

	r.Post("/save_user_settings", h.handleSaveSettings)
	r.Post("/reset_settings", h.handleResetSettings)
	r.Post("/reset_factory_data", h.handleResetFactoryData)
	r.Post("/restart_system", h.handleRestartSystem)

	r.Get("/scan_wifi", h.handleScanWifi)
	r.Post("/connect_wifi", h.handleConnectWifi)
	r.Post("/disconnect_wifi", h.handleDisconnectWifi)
	r.Post("/activate_ap", h.handleActivateAP)
	r.Get("/get_connection_status", h.handleGetConnectionStatus)

	r.Get("/ws/status", h.handleWebsocketStatus)

	static, err := fs.Sub(webui.Dist(), "dist")
	if err != nil {
		h.log.Fatal().Err(err).Msg("embedded control panel assets are missing")
	}
	r.Handle("/*", http.FileServer(http.FS(static)))
}

// --- response helpers -------------------------------------------------

// okResponse is the `{success: bool, ...}` shape commanded by spec.md §7 for
// every command endpoint.
type okResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

type errResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, okResponse{Success: true, Data: data})
}

// writeErr maps a kernelerr.Kind onto spec.md §7's status codes: validation
// and busy are both caller mistakes (400), not-found is 404, everything
// else (io, hardware, internal) is a 500.
func writeErr(w http.ResponseWriter, log zerolog.Logger, err error) {
	status := http.StatusInternalServerError
	switch kernelerr.KindOf(err) {
	case kernelerr.Validation, kernelerr.Busy:
		status = http.StatusBadRequest
	case kernelerr.NotFound:
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("internal error handling request")
	}
	writeJSON(w, status, errResponse{Success: false, Error: err.Error()})
}

func decodeBody(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return kernelerr.Wrap(kernelerr.Validation, "invalid request body", err)
	}
	return nil
}

// --- programs -----------------------------------------------------------

func (h *Handler) handleGetPrograms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.kernel.ListPrograms())
}

func (h *Handler) handleSaveProgram(w http.ResponseWriter, r *http.Request) {
	var p model.Program
	if err := decodeBody(r, &p); err != nil {
		writeErr(w, h.log, err)
		return
	}
	id, err := h.kernel.SaveProgram(p)
	if err != nil {
		writeErr(w, h.log, err)
		return
	}
	writeOK(w, map[string]string{"id": id})
}

type updateProgramRequest struct {
	ID string `json:"id"`
	model.Program
}

func (h *Handler) handleUpdateProgram(w http.ResponseWriter, r *http.Request) {
	var req updateProgramRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, h.log, err)
		return
	}
	if err := h.kernel.UpdateProgram(req.ID, req.Program); err != nil {
		writeErr(w, h.log, err)
		return
	}
	writeOK(w, nil)
}

type programIDRequest struct {
	ID string `json:"id"`
}

func (h *Handler) handleDeleteProgram(w http.ResponseWriter, r *http.Request) {
	var req programIDRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, h.log, err)
		return
	}
	if err := h.kernel.DeleteProgram(req.ID); err != nil {
		writeErr(w, h.log, err)
		return
	}
	writeOK(w, nil)
}

// handleStartProgram runs the program to completion on its own goroutine:
// spec.md §4.4 says manual activation runs synchronously end-to-end, but an
// HTTP request cannot block for a program's full duration, so the request
// only confirms acceptance and GET /get_program_state reports progress.
func (h *Handler) handleStartProgram(w http.ResponseWriter, r *http.Request) {
	var req programIDRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, h.log, err)
		return
	}

	programs := h.kernel.ListPrograms()
	if _, ok := programs[req.ID]; !ok {
		writeErr(w, h.log, kernelerr.New(kernelerr.NotFound, "program not found"))
		return
	}
	if h.kernel.ProgramState().ProgramRunning {
		writeErr(w, h.log, kernelerr.New(kernelerr.Busy, "a program is already running"))
		return
	}

	go func() {
		if err := h.kernel.StartProgram(req.ID); err != nil {
			h.log.Warn().Err(err).Str("program_id", req.ID).Msg("program run ended with an error")
		}
	}()
	writeOK(w, nil)
}

func (h *Handler) handleStopProgram(w http.ResponseWriter, r *http.Request) {
	h.kernel.StopProgram()
	writeOK(w, nil)
}

// --- zones ----------------------------------------------------------------

type startZoneRequest struct {
	ZoneID          int `json:"zone_id"`
	DurationMinutes int `json:"duration_minutes"`
}

func (h *Handler) handleStartZone(w http.ResponseWriter, r *http.Request) {
	var req startZoneRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, h.log, err)
		return
	}
	if err := h.kernel.StartZone(req.ZoneID, req.DurationMinutes); err != nil {
		writeErr(w, h.log, err)
		return
	}
	writeOK(w, nil)
}

type zoneIDRequest struct {
	ZoneID int `json:"zone_id"`
}

func (h *Handler) handleStopZone(w http.ResponseWriter, r *http.Request) {
	var req zoneIDRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, h.log, err)
		return
	}
	if err := h.kernel.StopZone(req.ZoneID); err != nil {
		writeErr(w, h.log, err)
		return
	}
	writeOK(w, nil)
}

func (h *Handler) handleGetZonesStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.kernel.ZonesStatus())
}

func (h *Handler) handleGetProgramState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.kernel.ProgramState())
}

// --- settings ---------------------------------------------------------

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.kernel.GetSettings())
}

func (h *Handler) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var s model.Settings
	if err := decodeBody(r, &s); err != nil {
		writeErr(w, h.log, err)
		return
	}
	if err := h.kernel.SaveSettings(s); err != nil {
		writeErr(w, h.log, err)
		return
	}
	writeOK(w, nil)
}

func (h *Handler) handleResetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.kernel.ResetSettings()
	if err != nil {
		writeErr(w, h.log, err)
		return
	}
	writeOK(w, s)
}

func (h *Handler) handleResetFactoryData(w http.ResponseWriter, r *http.Request) {
	s, err := h.kernel.ResetFactoryData()
	if err != nil {
		writeErr(w, h.log, err)
		return
	}
	writeOK(w, s)
}

func (h *Handler) handleRestartSystem(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]string{"status": "rebooting"})
	go func() {
		if err := h.restart(); err != nil {
			h.log.Error().Err(err).Msg("failed to initiate system restart")
		}
	}()
}

// --- log --------------------------------------------------------------

func (h *Handler) handleGetSystemLog(w http.ResponseWriter, r *http.Request) {
	entries := h.kernel.ListSystemLog()
	writeJSON(w, http.StatusOK, entries)
}

// --- connectivity -------------------------------------------------------

func (h *Handler) handleScanWifi(w http.ResponseWriter, r *http.Request) {
	results, err := h.connectivity.Scan()
	if err != nil {
		writeErr(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) handleConnectWifi(w http.ResponseWriter, r *http.Request) {
	var creds model.WifiCredentials
	if err := decodeBody(r, &creds); err != nil {
		writeErr(w, h.log, err)
		return
	}
	if creds.SSID == "" {
		writeErr(w, h.log, kernelerr.New(kernelerr.Validation, "ssid is required"))
		return
	}

	settings := h.kernel.GetSettings()
	settings.Wifi = creds
	settings.ClientEnabled = true
	if err := h.kernel.SaveSettings(settings); err != nil {
		writeErr(w, h.log, err)
		return
	}
	writeOK(w, nil)
}

func (h *Handler) handleDisconnectWifi(w http.ResponseWriter, r *http.Request) {
	settings := h.kernel.GetSettings()
	settings.ClientEnabled = false
	if err := h.kernel.SaveSettings(settings); err != nil {
		writeErr(w, h.log, err)
		return
	}
	writeOK(w, nil)
}

func (h *Handler) handleActivateAP(w http.ResponseWriter, r *http.Request) {
	if err := h.connectivity.ActivateAP(); err != nil {
		writeErr(w, h.log, err)
		return
	}
	writeOK(w, nil)
}

func (h *Handler) handleGetConnectionStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"mode": string(h.connectivity.Mode())})
}

func defaultRestart() error {
	return runReboot()
}

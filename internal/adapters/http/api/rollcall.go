package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"

	service "github.com/okian/rollcall/internal/app"
	"github.com/okian/rollcall/internal/domain/model"
)

const (
	// HeaderIdempotencyKey makes POST /api/call safe to retry.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderReplayed is set to "true" when the response was replayed.
	HeaderReplayed = "Idempotent-Replayed"

	maxUploadBytes   = 10 << 20
	maxIdempotentKey = 255
)

// RollCallHandler serves the roster, call, history and stats endpoints.
type RollCallHandler struct {
	deps Dependencies
}

// NewRollCallHandler creates a new roll-call handler.
func NewRollCallHandler(deps Dependencies) *RollCallHandler {
	return &RollCallHandler{deps: deps}
}

type importResponse struct {
	Success bool   `json:"success"`
	Count   int    `json:"count,omitempty"`
	Error   string `json:"error,omitempty"`
}

type clearResponse struct {
	Success bool `json:"success"`
}

// HandleStudents handles GET /api/students.
func (h *RollCallHandler) HandleStudents(w http.ResponseWriter, r *http.Request) {
	const op = "api.students"
	if r.Method != http.MethodGet {
		writeRollCallError(w, NewKind(op, ErrMethodNotAllowed))
		return
	}
	students, err := h.deps.Students(r.Context())
	if err != nil {
		writeRollCallError(w, Wrap(op, err))
		return
	}
	if students == nil {
		students = []model.Student{}
	}
	writeJSON(w, http.StatusOK, students)
}

// HandleCall handles POST /api/call. An Idempotency-Key header turns a
// retried request into a replay of the first result.
func (h *RollCallHandler) HandleCall(w http.ResponseWriter, r *http.Request) {
	const op = "api.call"
	if r.Method != http.MethodPost {
		writeRollCallError(w, NewKind(op, ErrMethodNotAllowed))
		return
	}
	key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	if len(key) > maxIdempotentKey {
		writeRollCallError(w, WrapKind(op, ErrBadRequest, errors.New("idempotency key too long")))
		return
	}

	res, replayed, err := h.deps.CallOnce(r.Context(), key)
	if err != nil {
		if errors.Is(err, service.ErrEmptyRoster) {
			writeRollCallError(w, NewKind(op, ErrEmptyRoster))
			return
		}
		writeRollCallError(w, Wrap(op, err))
		return
	}
	if replayed {
		w.Header().Set(HeaderReplayed, "true")
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleHistory handles GET /api/history.
func (h *RollCallHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.history"
	if r.Method != http.MethodGet {
		writeRollCallError(w, NewKind(op, ErrMethodNotAllowed))
		return
	}
	records, err := h.deps.History(r.Context())
	if err != nil {
		writeRollCallError(w, Wrap(op, err))
		return
	}
	if records == nil {
		records = []model.CallRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// HandleStats handles GET /api/stats.
func (h *RollCallHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	const op = "api.stats"
	if r.Method != http.MethodGet {
		writeRollCallError(w, NewKind(op, ErrMethodNotAllowed))
		return
	}
	stats, err := h.deps.Stats(r.Context())
	if err != nil {
		writeRollCallError(w, Wrap(op, err))
		return
	}
	if stats.StudentStats == nil {
		stats.StudentStats = []model.StudentStat{}
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleImport handles POST /api/import with a multipart "file" field.
func (h *RollCallHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	const op = "api.import"
	if r.Method != http.MethodPost {
		writeImportError(w, NewKind(op, ErrMethodNotAllowed))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeImportError(w, WrapKind(op, ErrTooLarge,
				fmt.Errorf("file exceeds the %s upload limit", humanize.IBytes(uint64(tooLarge.Limit)))))
			return
		}
		writeImportError(w, WrapKind(op, ErrBadRequest, errors.New("please choose a file")))
		return
	}
	defer func() { _ = file.Close() }()

	n, err := h.deps.Import(r.Context(), header.Filename, file)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnsupportedFormat),
			errors.Is(err, service.ErrEmptyFile),
			errors.Is(err, service.ErrMissingFilename),
			errors.Is(err, service.ErrMalformedFile):
			writeImportError(w, WrapKind(op, ErrBadRequest, err))
		default:
			writeImportError(w, Wrap(op, err))
		}
		return
	}
	writeJSON(w, http.StatusOK, importResponse{Success: true, Count: n})
}

// HandleClear handles POST /api/clear.
func (h *RollCallHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	const op = "api.clear"
	if r.Method != http.MethodPost {
		writeRollCallError(w, NewKind(op, ErrMethodNotAllowed))
		return
	}
	if err := h.deps.Clear(r.Context()); err != nil {
		writeRollCallError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, clearResponse{Success: true})
}

func writeImportError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), importResponse{Success: false, Error: publicMessage(err)})
}

package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/gorilla/mux"

	"github.com/iota-uz/sar/modules/registry/domain/issue"
	"github.com/iota-uz/sar/modules/registry/domain/level"
	"github.com/iota-uz/sar/modules/registry/domain/table"
	"github.com/iota-uz/sar/modules/registry/services"
	"github.com/iota-uz/sar/pkg/application"
	"github.com/iota-uz/sar/pkg/httpapi"
	"github.com/iota-uz/sar/pkg/middleware"
)

const maxBodyBytes = 1 << 20

type RegistryController struct {
	registry  *services.RegistryService
	apiPrefix string
	maxIssues int
}

type ControllerOption func(*RegistryController)

// WithMaxIssues caps the issues returned by the issues endpoint; 0 means no cap.
func WithMaxIssues(n int) ControllerOption {
	return func(c *RegistryController) { c.maxIssues = n }
}

func NewRegistryController(registry *services.RegistryService, opts ...ControllerOption) application.Controller {
	c := &RegistryController{registry: registry, apiPrefix: "/api/registry"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RegistryController) Key() string {
	return c.apiPrefix
}

func (c *RegistryController) Register(r *mux.Router) {
	api := r.PathPrefix(c.apiPrefix).Subrouter()

	api.HandleFunc("/view", c.GetView).Methods(http.MethodGet)
	api.HandleFunc("/issues", c.GetIssues).Methods(http.MethodGet)
	api.HandleFunc("/schema", c.GetSchema).Methods(http.MethodGet)
	api.HandleFunc("/recompute", c.Recompute).Methods(http.MethodPost)
	api.HandleFunc("/levels/{level}", c.GetLevel).Methods(http.MethodGet)
	api.HandleFunc("/lookups/{level}", c.GetLookups).Methods(http.MethodGet)

	api.HandleFunc("/records", c.CreateRecord).Methods(http.MethodPost)
	api.HandleFunc("/records/{hid}:set-status", c.SetStatus).Methods(http.MethodPost)
	api.HandleFunc("/records/{hid}:add-field", c.AddField).Methods(http.MethodPost)
	api.HandleFunc("/records/{hid}/children", c.GetChildren).Methods(http.MethodGet)
	api.HandleFunc("/records/{hid}/fields", c.UpdateFields).Methods(http.MethodPost)
	api.HandleFunc("/records/{hid}", c.GetRecord).Methods(http.MethodGet)
	api.HandleFunc("/records/{hid}", c.PatchRecord).Methods(http.MethodPatch)
}

type runResponse struct {
	RunID       string        `json:"run_id"`
	GeneratedAt string        `json:"generated_at"`
	Summary     issue.Summary `json:"summary"`
}

type viewResponse struct {
	runResponse
	View table.Table `json:"view"`
}

type issuesResponse struct {
	runResponse
	Issues []issue.Issue `json:"issues"`
}

type writeResponse struct {
	runResponse
	HumanID string `json:"human_id,omitempty"`
}

func newRunResponse(run *services.Run) runResponse {
	return runResponse{
		RunID:       run.ID.String(),
		GeneratedAt: run.GeneratedAt.Format("2006-01-02T15:04:05Z07:00"),
		Summary:     run.Summary,
	}
}

func (c *RegistryController) GetView(w http.ResponseWriter, r *http.Request) {
	run, err := c.registry.Current(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewResponse{runResponse: newRunResponse(run), View: run.View})
}

func (c *RegistryController) GetIssues(w http.ResponseWriter, r *http.Request) {
	run, err := c.registry.Current(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	q := r.URL.Query()
	lvl := level.Level(level.Canon(q.Get("level")))
	sev := strings.ToLower(strings.TrimSpace(q.Get("severity")))
	if sev != "" {
		switch issue.Severity(sev) {
		case issue.SeverityError, issue.SeverityWarning, issue.SeverityInfo:
		default:
			writeAPIError(w, r, http.StatusBadRequest, "REGISTRY_INVALID_QUERY", fmt.Sprintf("invalid severity=%q (expected error|warning|info)", sev))
			return
		}
	}
	issues := issue.Filter(run.Issues, func(iss issue.Issue) bool {
		if lvl != "" && iss.Level != lvl {
			return false
		}
		return sev == "" || string(iss.Severity) == sev
	})
	issue.Sort(issues)
	resp := issuesResponse{runResponse: newRunResponse(run)}
	resp.Summary = issue.Summarize(issues)
	resp.Issues, resp.Summary.Truncated = issue.Truncate(issues, c.maxIssues)
	writeJSON(w, http.StatusOK, resp)
}

func (c *RegistryController) GetSchema(w http.ResponseWriter, r *http.Request) {
	schema, err := c.registry.SchemaMap(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	hash, err := services.SchemaHash(schema)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schema": schema, "schema_hash": hash})
}

func (c *RegistryController) Recompute(w http.ResponseWriter, r *http.Request) {
	c.registry.Invalidate()
	run, err := c.registry.Compute(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRunResponse(run))
}

func (c *RegistryController) GetLevel(w http.ResponseWriter, r *http.Request) {
	t, err := c.registry.Level(r.Context(), levelParam(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (c *RegistryController) GetLookups(w http.ResponseWriter, r *http.Request) {
	opts, err := c.registry.LookupOptions(r.Context(), levelParam(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

func (c *RegistryController) GetRecord(w http.ResponseWriter, r *http.Request) {
	view, err := c.registry.Record(r.Context(), mux.Vars(r)["hid"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (c *RegistryController) GetChildren(w http.ResponseWriter, r *http.Request) {
	children, err := c.registry.Children(r.Context(), mux.Vars(r)["hid"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, children)
}

func (c *RegistryController) UpdateFields(w http.ResponseWriter, r *http.Request) {
	var fields map[string]string
	if err := decodeJSON(w, r, &fields); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "REGISTRY_INVALID_BODY", err.Error())
		return
	}
	run, err := c.registry.UpdateFields(r.Context(), mux.Vars(r)["hid"], fields)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, writeResponse{runResponse: newRunResponse(run)})
}

// PatchRecord applies an RFC 6902 patch to the record and writes the fields it changed.
func (c *RegistryController) PatchRecord(w http.ResponseWriter, r *http.Request) {
	hid := mux.Vars(r)["hid"]
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "REGISTRY_INVALID_BODY", err.Error())
		return
	}
	patch, err := jsonpatch.DecodePatch(body)
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "REGISTRY_INVALID_PATCH", err.Error())
		return
	}
	view, err := c.registry.Record(r.Context(), hid)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	fields, err := patchedFields(view.Record, patch)
	if err != nil {
		writeAPIError(w, r, http.StatusUnprocessableEntity, "REGISTRY_INVALID_PATCH", err.Error())
		return
	}
	if len(fields) == 0 {
		writeJSON(w, http.StatusOK, writeResponse{HumanID: view.HumanID})
		return
	}
	run, err := c.registry.UpdateFields(r.Context(), hid, fields)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, writeResponse{runResponse: newRunResponse(run), HumanID: view.HumanID})
}

// patchedFields returns the fields whose value differs after applying patch.
// Removed fields are cleared.
func patchedFields(rec table.Record, patch jsonpatch.Patch) (map[string]string, error) {
	doc, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	out, err := patch.Apply(doc)
	if err != nil {
		return nil, err
	}
	var patched map[string]any
	if err := json.Unmarshal(out, &patched); err != nil {
		return nil, errors.New("patched record must stay a JSON object")
	}
	fields := make(map[string]string)
	for k, v := range patched {
		s := ""
		if v != nil {
			s = fmt.Sprint(v)
		}
		if old, ok := rec[k]; !ok || old != s {
			fields[k] = s
		}
	}
	for k, old := range rec {
		if _, ok := patched[k]; !ok && old != "" {
			fields[k] = ""
		}
	}
	return fields, nil
}

type createRecordRequest struct {
	Level  string            `json:"level"`
	Fields map[string]string `json:"fields"`
}

func (c *RegistryController) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var req createRecordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "REGISTRY_INVALID_BODY", err.Error())
		return
	}
	hid, run, err := c.registry.CreateRecord(r.Context(), level.Level(level.Canon(req.Level)), req.Fields)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, writeResponse{runResponse: newRunResponse(run), HumanID: hid})
}

type setStatusRequest struct {
	Status string `json:"status"`
}

func (c *RegistryController) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "REGISTRY_INVALID_BODY", err.Error())
		return
	}
	run, err := c.registry.SetStatus(r.Context(), mux.Vars(r)["hid"], req.Status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, writeResponse{runResponse: newRunResponse(run)})
}

type addFieldRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (c *RegistryController) AddField(w http.ResponseWriter, r *http.Request) {
	var req addFieldRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "REGISTRY_INVALID_BODY", err.Error())
		return
	}
	run, err := c.registry.AddField(r.Context(), mux.Vars(r)["hid"], req.Field, req.Value)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, writeResponse{runResponse: newRunResponse(run)})
}

func levelParam(r *http.Request) level.Level {
	return level.Level(level.Canon(mux.Vars(r)["level"]))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	defer func() { _ = r.Body.Close() }()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *services.ServiceError
	if errors.As(err, &svcErr) {
		writeAPIError(w, r, svcErr.Status, svcErr.Code, svcErr.Message)
		return
	}
	middleware.Logger(r.Context()).WithError(err).Error("registry request failed")
	writeAPIError(w, r, http.StatusInternalServerError, "REGISTRY_INTERNAL", err.Error())
}

func writeAPIError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	e := httpapi.NewError(status, code, message)
	if status == http.StatusNotFound {
		e = e.With("path", r.URL.Path)
	}
	_ = httpapi.WriteError(w, e)
}

func writeJSON[T any](w http.ResponseWriter, status int, payload T) {
	if err := httpapi.WriteJSON(w, status, payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

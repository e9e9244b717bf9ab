// Package inspect serves a read-only JSON view of the data types registered
// by discovery.
package inspect

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gopcua/opcua/ua"
	"go.uber.org/zap"

	"github.com/conduit-lang/uadiscover/internal/discovery"
	"github.com/conduit-lang/uadiscover/internal/factory"
)

// Registry is the view of a discovery manager the handler needs
type Registry interface {
	Namespaces() []uint16
	NamespaceURI(ns uint16) string
	Factory(ns uint16) (*factory.DataTypeFactory, error)
}

// NamespaceSummary is one entry of GET /namespaces
type NamespaceSummary struct {
	Index        uint16 `json:"index"`
	URI          string `json:"uri,omitempty"`
	Structures   int    `json:"structures"`
	Enumerations int    `json:"enumerations"`
}

// TypeSummary is one entry of GET /namespaces/{ns}/types
type TypeSummary struct {
	Name           string                `json:"name"`
	Category       factory.FieldCategory `json:"category"`
	DataTypeNodeID string                `json:"dataTypeNodeId,omitempty"`
}

// TypeDetail is the body of GET /namespaces/{ns}/types/{name}
type TypeDetail struct {
	TypeSummary
	Structure   *factory.StructuredTypeSchema `json:"structure,omitempty"`
	Enumeration *factory.EnumerationSchema    `json:"enumeration,omitempty"`
	Encodings   map[string]string             `json:"encodings,omitempty"`
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Option configures a Handler
type Option func(*Handler)

// WithLogger sets the request logger
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithReport makes the report of the discovery run available at GET /report
func WithReport(rep *discovery.Report) Option {
	return func(h *Handler) { h.report = rep }
}

// Handler routes the inspection endpoints
type Handler struct {
	mux    chi.Router
	reg    Registry
	report *discovery.Report
	logger *zap.Logger
}

// New builds the handler for reg
func New(reg Registry, opts ...Option) *Handler {
	h := &Handler{reg: reg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(requestLogger(h.logger))
	r.Use(recoverer(h.logger))

	r.Get("/namespaces", h.listNamespaces)
	r.Route("/namespaces/{ns}/types", func(r chi.Router) {
		r.Get("/", h.listTypes)
		r.Get("/{name}", h.getType)
	})
	r.Get("/report", h.getReport)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		renderError(w, http.StatusNotFound, fmt.Errorf("no route for %s", r.URL.Path))
	})
	h.mux = r
	return h
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) listNamespaces(w http.ResponseWriter, _ *http.Request) {
	out := make([]NamespaceSummary, 0)
	for _, ns := range h.reg.Namespaces() {
		f, err := h.reg.Factory(ns)
		if err != nil {
			continue
		}
		out = append(out, NamespaceSummary{
			Index:        ns,
			URI:          h.reg.NamespaceURI(ns),
			Structures:   len(f.StructuredTypes()),
			Enumerations: len(f.Enumerations()),
		})
	}
	renderJSON(w, http.StatusOK, out)
}

func (h *Handler) listTypes(w http.ResponseWriter, r *http.Request) {
	f, ok := h.factory(w, r)
	if !ok {
		return
	}
	out := make([]TypeSummary, 0, f.Count())
	for _, s := range f.StructuredTypes() {
		out = append(out, summarize(s, s.DataTypeNodeID))
	}
	for _, e := range f.Enumerations() {
		out = append(out, summarize(e, e.DataTypeNodeID))
	}
	renderJSON(w, http.StatusOK, out)
}

func (h *Handler) getType(w http.ResponseWriter, r *http.Request) {
	f, ok := h.factory(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")

	for _, s := range f.StructuredTypes() {
		if s.Name != name {
			continue
		}
		detail := TypeDetail{TypeSummary: summarize(s, s.DataTypeNodeID), Structure: s}
		detail.Encodings = encodings(s)
		renderJSON(w, http.StatusOK, detail)
		return
	}
	for _, e := range f.Enumerations() {
		if e.Name == name {
			renderJSON(w, http.StatusOK, TypeDetail{TypeSummary: summarize(e, e.DataTypeNodeID), Enumeration: e})
			return
		}
	}
	renderError(w, http.StatusNotFound, fmt.Errorf("type %s: %w", name, factory.ErrTypeNotFound))
}

func (h *Handler) getReport(w http.ResponseWriter, _ *http.Request) {
	if h.report == nil {
		renderError(w, http.StatusNotFound, errors.New("no discovery report available"))
		return
	}
	renderJSON(w, http.StatusOK, h.report)
}

// factory resolves the {ns} parameter, writing the error response itself
// when it cannot
func (h *Handler) factory(w http.ResponseWriter, r *http.Request) (*factory.DataTypeFactory, bool) {
	raw := chi.URLParam(r, "ns")
	ns, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		renderError(w, http.StatusBadRequest, fmt.Errorf("invalid namespace index %q", raw))
		return nil, false
	}
	f, err := h.reg.Factory(uint16(ns))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, discovery.ErrNoFactory) {
			status = http.StatusNotFound
		}
		renderError(w, status, err)
		return nil, false
	}
	return f, true
}

func summarize(def factory.TypeDefinition, typeID *ua.NodeID) TypeSummary {
	s := TypeSummary{Name: def.TypeName(), Category: def.Category()}
	if typeID != nil {
		s.DataTypeNodeID = typeID.String()
	}
	return s
}

func encodings(s *factory.StructuredTypeSchema) map[string]string {
	out := make(map[string]string)
	if s.EncodingDefaultBinary != nil {
		out[discovery.DefaultBinary] = s.EncodingDefaultBinary.String()
	}
	if s.EncodingDefaultXML != nil {
		out[discovery.DefaultXML] = s.EncodingDefaultXML.String()
	}
	if s.EncodingDefaultJSON != nil {
		out[discovery.DefaultJSON] = s.EncodingDefaultJSON.String()
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func renderJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func renderError(w http.ResponseWriter, status int, err error) {
	renderJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: err.Error(),
	})
}

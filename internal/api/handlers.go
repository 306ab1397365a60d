package api

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/stentech/gerberstack/pkg/aggregate"
	"github.com/stentech/gerberstack/pkg/buildinfo"
	"github.com/stentech/gerberstack/pkg/errors"
	"github.com/stentech/gerberstack/pkg/history"
	"github.com/stentech/gerberstack/pkg/layer"
	"github.com/stentech/gerberstack/pkg/pipeline"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// renderResponse is the success payload of /api/render.
type renderResponse struct {
	TopSVG     string              `json:"topSvg"`
	BottomSVG  string              `json:"bottomSvg"`
	LayersInfo layer.Manifest      `json:"layersInfo"`
	Warnings   []aggregate.Warning `json:"warnings,omitempty"`
}

// layersResponse is the success payload of /api/layers.
type layersResponse struct {
	LayersInfo layer.Manifest      `json:"layersInfo"`
	Warnings   []aggregate.Warning `json:"warnings,omitempty"`
}

// errorResponse is the payload of every failed request.
type errorResponse struct {
	Error      string         `json:"error"`
	Code       errors.Code    `json:"code"`
	Details    string         `json:"details,omitempty"`
	LayersInfo layer.Manifest `json:"layersInfo"`
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	form, err := s.parseUpload(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer s.removeForm(form)

	opts := s.opts
	opts.Source = "api"
	opts.Config = s.clientConfig(form)
	opts.Logger = s.logger.With("request_id", requestID(r))

	res, err := s.runner.Execute(r.Context(), uploadItems(form), opts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderResponse{
		TopSVG:     res.TopSVG,
		BottomSVG:  res.BottomSVG,
		LayersInfo: nonNil(res.Manifest),
		Warnings:   res.Warnings,
	})
}

func (s *Server) handleLayers(w http.ResponseWriter, r *http.Request) {
	form, err := s.parseUpload(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer s.removeForm(form)

	items := uploadItems(form)
	if len(items) == 0 {
		s.writeError(w, errors.New(errors.ErrCodeNoInputFiles, "no files uploaded"))
		return
	}
	set, err := s.runner.Aggregator.Discover(r.Context(), items)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, layersResponse{
		LayersInfo: nonNil(set.Manifest),
		Warnings:   set.Warnings,
	})
}

func (s *Server) handleExtensions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.runner.Aggregator.Policy())
}

func (s *Server) handleRenders(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, errors.New(errors.ErrCodeInvalidInput, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	recs, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, errors.Wrap(errors.ErrCodeInternal, err, "read render history"))
		return
	}
	if recs == nil {
		recs = []*history.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"backend": history.Name(s.history),
		"renders": recs,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildinfo.Version,
	})
}

// =============================================================================
// Upload handling
// =============================================================================

// parseUpload reads the multipart body within the configured size limit.
func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request) (*multipart.Form, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes())
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if r.MultipartForm != nil {
			s.removeForm(r.MultipartForm)
		}
		var tooBig *http.MaxBytesError
		if stderrors.As(err, &tooBig) {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "upload exceeds %d MB", s.cfg.MaxUploadMB)
		}
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "expected a multipart/form-data upload")
	}
	return r.MultipartForm, nil
}

func (s *Server) removeForm(form *multipart.Form) {
	if err := form.RemoveAll(); err != nil {
		s.logger.Warn("failed to remove upload temp files", "err", err)
	}
}

// clientConfig decodes the optional "config" field. A malformed value is
// logged and treated as an empty configuration.
func (s *Server) clientConfig(form *multipart.Form) layer.ClientConfig {
	raw := form.Value["config"]
	if len(raw) == 0 {
		return layer.ClientConfig{}
	}
	cfg, err := layer.ParseClientConfig([]byte(raw[0]))
	if err != nil {
		s.logger.Warn("failed to parse config JSON, using defaults", "err", err)
	}
	return cfg
}

func uploadItems(form *multipart.Form) []aggregate.Item {
	files := form.File["files"]
	items := make([]aggregate.Item, 0, len(files))
	for _, fh := range files {
		items = append(items, aggregate.Item{
			Name: fh.Filename,
			Open: func() (io.ReadCloser, error) { return fh.Open() },
		})
	}
	return items
}

// =============================================================================
// Responses
// =============================================================================

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	resp := errorResponse{
		Error:      errors.UserMessage(err),
		Code:       errors.GetCode(err),
		LayersInfo: nonNil(pipeline.ManifestOf(err)),
	}
	var failed *pipeline.RenderFailedError
	if stderrors.As(err, &failed) {
		resp.Error = "Render failed"
		resp.Details = failed.Cause.Error()
	}
	if resp.Code == "" {
		resp.Code = errors.ErrCodeInternal
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "code", resp.Code, "err", err)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func nonNil(m layer.Manifest) layer.Manifest {
	if m == nil {
		return layer.Manifest{}
	}
	return m
}

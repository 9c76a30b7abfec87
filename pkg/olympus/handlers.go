package olympus

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/minos-eval/minos/pkg/domain"
	"github.com/minos-eval/minos/pkg/evaluator"
	"github.com/minos-eval/minos/pkg/ingest"
)

// EvaluateRequest is the body of POST /evaluate. Baselines fixes the column order; when
// empty every baseline name found in the observations is used.
type EvaluateRequest struct {
	Dataset      string                   `json:"dataset,omitempty"`
	Observations []domain.Observation     `json:"observations"`
	Baselines    []string                 `json:"baselines,omitempty"`
	Importance   []domain.ImportanceEntry `json:"importance,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	opts, err := optionsFromQuery(s.manager.Engine.Options(), r.URL.Query())
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}

	var req EvaluateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %v: %w", err, ErrBadRequest))
		return
	}

	ds, err := ingest.ObservationsToDataset(req.Observations, req.Baselines)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	ds.Importance = req.Importance
	s.run(w, r, *ds, "api", req.Dataset, opts)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	opts, err := optionsFromQuery(s.manager.Engine.Options(), r.URL.Query())
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid multipart form: %v: %w", err, ErrBadRequest))
		return
	}
	defer r.MultipartForm.RemoveAll()

	var in ingest.Inputs
	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()
	for _, field := range []struct {
		name     string
		required bool
		dst      *io.Reader
	}{
		{"predictions", true, &in.Predictions},
		{"baselines", false, &in.Baselines},
		{"features", false, &in.Features},
	} {
		f, err := formFile(r, field.name)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err)
			return
		}
		if f == nil {
			if field.required {
				writeError(w, r, http.StatusBadRequest, fmt.Errorf("missing %q file: %w", field.name, ErrBadRequest))
				return
			}
			continue
		}
		closers = append(closers, f)
		*field.dst = f
	}

	ds, err := s.loader.Read(r.Context(), in)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	s.run(w, r, *ds, "upload", r.FormValue("dataset"), opts)
}

func (s *Server) handleDatasetReport(w http.ResponseWriter, r *http.Request) {
	opts, err := optionsFromQuery(s.manager.Engine.Options(), r.URL.Query())
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}

	prefix := strings.Trim(mux.Vars(r)["prefix"], "/")
	ds, keys, err := s.loader.LoadPrefix(r.Context(), prefix+"/")
	if err != nil {
		if keys.Predictions == "" && errors.Is(err, domain.ErrEmptyInput) {
			err = fmt.Errorf("%q has no predictions file: %w", prefix, ErrDatasetNotFound)
		}
		writeError(w, r, statusFor(err), err)
		return
	}
	s.run(w, r, *ds, "store", prefix, opts)
}

func (s *Server) run(w http.ResponseWriter, r *http.Request, ds ingest.Dataset, source, dataset string, opts *evaluator.Options) {
	out, err := s.manager.Run(r.Context(), RunRequest{
		Data:    &ds,
		Source:  source,
		Dataset: dataset,
		Options: opts,
	})
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// formFile returns the named part, or nil when the form has no such file.
func formFile(r *http.Request, name string) (multipart.File, error) {
	f, _, err := r.FormFile(name)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %v: %w", name, err, ErrBadRequest)
	}
	return f, nil
}

// optionsFromQuery applies window, error_window, top_k, target_coverage and reference
// overrides. It returns nil when the query sets none of them.
func optionsFromQuery(base evaluator.Options, q url.Values) (*evaluator.Options, error) {
	opts := base
	changed := false

	ints := []struct {
		key string
		dst *int
		min int
	}{
		{"window", &opts.RollingWindow, 1},
		{"error_window", &opts.ErrorWindow, 1},
		{"top_k", &opts.TopK, 0},
	}
	for _, p := range ints {
		v := q.Get(p.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < p.min {
			return nil, fmt.Errorf("%s must be an integer >= %d: %w", p.key, p.min, domain.ErrInvalidParameter)
		}
		*p.dst = n
		changed = true
	}

	if v := q.Get("target_coverage"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			return nil, fmt.Errorf("target_coverage must be in [0, 1]: %w", domain.ErrInvalidParameter)
		}
		opts.TargetCoverage = f
		changed = true
	}
	if v := q.Get("reference"); v != "" {
		opts.Reference = domain.ColumnID(v)
		changed = true
	}

	if !changed {
		return nil, nil
	}
	return &opts, nil
}

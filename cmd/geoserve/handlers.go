package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/carbocation/exprnorm/compileinfo"
	"github.com/carbocation/exprnorm/geo"
	"github.com/carbocation/exprnorm/table"
	"github.com/gorilla/mux"
)

type handler struct {
	*Global
	router *mux.Router
}

func (h *handler) Index(w http.ResponseWriter, r *http.Request) {
	datasets, err := h.router.Get("datasets").URL()
	if err != nil {
		HTTPError(h, w, r, err)
		return
	}

	writeJSON(h, w, r, struct {
		Site     string `json:"site"`
		Info     string `json:"info"`
		Datasets string `json:"datasets"`
	}{h.Site, h.browser.Info(), datasets.String()})
}

func (h *handler) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(h, w, r, compileinfo.Get())
}

// Datasets lists the datasets that match the filter query parameter. The
// filter only applies to this request.
func (h *handler) Datasets(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("filter")

	writeJSON(h, w, r, struct {
		Filter string    `json:"filter"`
		Total  int       `json:"total"`
		Rows   []geo.Row `json:"rows"`
	}{filter, len(h.browser.Rows()), h.browser.Match(filter)})
}

func (h *handler) Complete(w http.ResponseWriter, r *http.Request) {
	out := append([]string{}, geo.Complete(h.browser.Vocabulary(), r.URL.Query().Get("q"))...)

	writeJSON(h, w, r, out)
}

func (h *handler) Dataset(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	h.tableMu.Lock()
	defer h.tableMu.Unlock()

	if err := h.browser.Select(id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	d, _ := h.browser.Selected()

	writeJSON(h, w, r, struct {
		geo.DatasetInfo
		Link        string           `json:"link"`
		PubMedLink  string           `json:"pubmed_link,omitempty"`
		Annotations []geo.Annotation `json:"annotations"`
	}{d, d.Link(), d.PubMedLink(), h.browser.Annotations()})
}

// Table streams the expression table of a dataset as tab-delimited text.
// Query parameters: transpose, spots and sample_type select the layout;
// each uncheck=type or uncheck=type:description leaves samples out.
func (h *handler) Table(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	q := r.URL.Query()

	transpose, err := boolParam(q.Get("transpose"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	spots, err := boolParam(q.Get("spots"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.tableMu.Lock()
	t, err := h.commit(r, id, q["uncheck"], geo.FetchOptions{
		ReportGenes: !spots,
		Transpose:   transpose,
		SampleType:  q.Get("sample_type"),
	})
	h.tableMu.Unlock()
	var rerr *requestError
	if errors.As(err, &rerr) {
		http.Error(w, rerr.Error(), rerr.status)
		return
	} else if err != nil {
		HTTPError(h, w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/tab-separated-values; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".tsv"))
	if err := table.Write(w, t); err != nil {
		h.log.Println(err)
	}
}

// commit applies the request's check states on top of a fully checked
// dataset, commits it, then restores the previous states.
func (h *handler) commit(r *http.Request, id string, uncheck []string, opts geo.FetchOptions) (*table.Table, error) {
	if err := h.browser.Select(id); err != nil {
		return nil, &requestError{status: http.StatusNotFound, err: err}
	}

	previous := h.browser.Annotations()
	defer func() {
		for _, a := range previous {
			for _, s := range a.Subsets {
				h.browser.SetChecked(a.Type, s.Description, s.Checked)
			}
		}
	}()

	for _, a := range previous {
		h.browser.SetChecked(a.Type, "", true)
	}
	for _, item := range uncheck {
		typ, subset, _ := strings.Cut(item, ":")
		if err := h.browser.SetChecked(typ, subset, false); err != nil {
			return nil, &requestError{status: http.StatusBadRequest, err: err}
		}
	}

	previousOpts := h.browser.Options()
	defer h.browser.SetOptions(previousOpts)
	h.browser.SetOptions(opts)

	return h.browser.Commit(r.Context())
}

// requestError is a failure caused by the request itself rather than the
// server.
type requestError struct {
	status int
	err    error
}

func (e *requestError) Error() string {
	return e.err.Error()
}

func (e *requestError) Unwrap() error {
	return e.err
}

func boolParam(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

func writeJSON(h *handler, w http.ResponseWriter, r *http.Request, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		h.log.Println(err)
	}
}

func HTTPError(h *handler, w http.ResponseWriter, r *http.Request, err error) {
	h.log.Println(r.URL.Path, err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

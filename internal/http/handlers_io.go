package http

import (
	"bytes"
	"net/http"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/csvio"
	"fintrack/internal/services"
)

const maxImportBody = 10 << 20

type importBody struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// handleImport takes the raw statement as the request body.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in := services.ImportInput{
		Source: core.ImportSource(strings.ToLower(strings.TrimSpace(q.Get("source")))),
		Note:   q.Get("note"),
	}
	res, err := s.ledger.ImportCSV(r.Context(), http.MaxBytesReader(w, r.Body, maxImportBody), in)
	writeResult(w, r, http.StatusOK, importBody{Imported: len(res.Transactions), Skipped: res.Skipped}, err)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	period := s.withDefaultPeriod(r.URL.Query()).Get("period")

	var buf bytes.Buffer
	if err := s.ledger.ExportCSV(&buf, period); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", csvio.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+csvio.ExportFilename(core.ParsePeriod(period))+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

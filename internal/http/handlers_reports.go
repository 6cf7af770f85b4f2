package http

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"fintrack/internal/core"
)

var errSessionChanged = errors.New("active user changed during the request")

// serveQuery answers a read through the query cache. query must carry the
// resolved parameters, defaults included, since it forms the cache key.
func (s *Server) serveQuery(w http.ResponseWriter, r *http.Request, query url.Values, load func() (any, error)) {
	user := s.ledger.ActiveUser()
	if user == "" {
		writeError(w, r, core.ErrNoActiveUser)
		return
	}

	body, err := s.queries.Do(r.Context(), user, canonicalQuery(r.URL.Path, query), func() ([]byte, error) {
		data, err := load()
		if err != nil {
			return nil, err
		}
		// The ledger answers for whoever is logged in now.
		if s.ledger.ActiveUser() != user {
			return nil, errSessionChanged
		}
		return encodeEnvelope(data)
	})
	if errors.Is(err, errSessionChanged) {
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeBody(w, http.StatusOK, body)
}

// withDefaultPeriod fills in the current period when the query has none.
func (s *Server) withDefaultPeriod(q url.Values) url.Values {
	if strings.TrimSpace(q.Get("period")) == "" {
		q.Set("period", string(s.ledger.CurrentPeriod()))
	}
	return q
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	q := s.withDefaultPeriod(r.URL.Query())
	s.serveQuery(w, r, q, func() (any, error) {
		return s.ledger.Summary(q.Get("period"))
	})
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	q := s.withDefaultPeriod(r.URL.Query())
	months := 0
	if v := strings.TrimSpace(q.Get("months")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 120 {
			writeError(w, r, core.NewValidationError("months", errors.New("must be a number between 1 and 120")))
			return
		}
		months = n
	}
	s.serveQuery(w, r, q, func() (any, error) {
		return s.ledger.Series(q.Get("period"), months)
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.serveQuery(w, r, q, func() (any, error) {
		return s.ledger.Report(q.Get("from"), q.Get("to"))
	})
}

func (s *Server) handleYear(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year := s.ledger.CurrentPeriod().Year()
	if v := strings.TrimSpace(q.Get("year")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, r, core.NewValidationError("year", core.ErrInvalidPeriod))
			return
		}
		year = n
	}
	q.Set("year", strconv.Itoa(year))
	s.serveQuery(w, r, q, func() (any, error) {
		return s.ledger.Year(year)
	})
}

// handleCategories accepts repeated period parameters.
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	q := s.withDefaultPeriod(r.URL.Query())
	periods := q["period"]
	s.serveQuery(w, r, q, func() (any, error) {
		return s.ledger.Categories(periods...)
	})
}

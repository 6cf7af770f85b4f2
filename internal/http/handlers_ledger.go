package http

import (
	"net/http"

	"fintrack/internal/services"
)

func (s *Server) handleSetSalary(w http.ResponseWriter, r *http.Request) {
	var in services.SalaryInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	err := s.ledger.SetSalary(r.Context(), in)
	writeResult(w, r, http.StatusOK, in, err)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	s.serveQuery(w, r, r.URL.Query(), func() (any, error) {
		return s.ledger.Transactions(period)
	})
}

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	var in services.TransactionInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	tx, err := s.ledger.AddTransaction(r.Context(), in)
	writeResult(w, r, http.StatusCreated, tx, err)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	err := s.ledger.DeleteTransaction(r.Context(), r.PathValue("id"))
	writeResult(w, r, http.StatusOK, nil, err)
}

func (s *Server) handleListEMIs(w http.ResponseWriter, r *http.Request) {
	s.serveQuery(w, r, nil, func() (any, error) {
		return s.ledger.EMIs()
	})
}

func (s *Server) handleAddEMI(w http.ResponseWriter, r *http.Request) {
	var in services.EMIInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.ledger.AddEMI(r.Context(), in)
	writeResult(w, r, http.StatusCreated, e, err)
}

func (s *Server) handleCloseEMI(w http.ResponseWriter, r *http.Request) {
	e, err := s.ledger.CloseEMI(r.Context(), r.PathValue("id"))
	writeResult(w, r, http.StatusOK, e, err)
}

// Upcoming dues depend on today's date, so they bypass the query cache.
func (s *Server) handleUpcomingDues(w http.ResponseWriter, r *http.Request) {
	dues, err := s.ledger.UpcomingDues()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: dues})
}

package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"shift_report/internal/catalog"
	"shift_report/internal/draft"
	"shift_report/internal/report"
	"shift_report/internal/session"
)

// Authentication handlers

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var credentials struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	user, hash, err := s.store.UserByUsername(r.Context(), strings.TrimSpace(credentials.Username))
	if err != nil {
		s.metrics.loginFailures.Inc()
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(credentials.Password)); err != nil {
		s.metrics.loginFailures.Inc()
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := s.issueToken(principal{UserID: user.ID, Username: user.Username, Role: user.Role})
	if err != nil {
		s.logger.Error("issue token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	s.startSession(w, r, user)

	writeJSON(w, http.StatusOK, loginResponse{Token: token, Role: user.Role, Username: user.Username})
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	s.endSession(w, r)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) checkAuthHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	user, err := s.store.UserByID(r.Context(), p.UserID)
	if err != nil {
		s.storeError(w, "user", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || strings.TrimSpace(req.Password) == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	role, err := session.ParseRole(req.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "error hashing password")
		return
	}

	id, err := s.store.CreateUser(r.Context(), req.Username, string(hashedPassword), string(role))
	if err != nil {
		s.storeError(w, "register user", err)
		return
	}

	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

// User handlers

func (s *Server) getUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		s.storeError(w, "list users", err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) updateUserHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req struct {
		Username string `json:"username"`
		Role     string `json:"role"`
		Password string `json:"password,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}
	role, err := session.ParseRole(req.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var hash string
	if req.Password != "" {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "error hashing password")
			return
		}
		hash = string(hashedPassword)
	}

	if err := s.store.UpdateUser(r.Context(), User{ID: id, Username: req.Username, Role: string(role)}, hash); err != nil {
		s.storeError(w, "update user", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) deleteUserHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	p, _ := principalFrom(r.Context())
	if id == p.UserID {
		writeError(w, http.StatusBadRequest, "cannot delete the logged in user")
		return
	}

	if err := s.store.DeleteUser(r.Context(), id); err != nil {
		s.storeError(w, "delete user", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Report handlers

func (s *Server) createReportHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())

	var sub report.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON in report: "+err.Error())
		return
	}

	if res := draft.ValidateSubmission(sub); !res.OK {
		writeError(w, http.StatusBadRequest, res.Reason)
		return
	}

	// Drop rows with no values, the same as the form does.
	team := sub.Team[:0:0]
	for _, m := range sub.Team {
		if m != (report.Member{}) {
			team = append(team, m)
		}
	}
	sub.Team = team

	id, err := s.store.CreateReport(r.Context(), p.UserID, sub, s.now())
	if err != nil {
		s.storeError(w, "create report", err)
		return
	}
	s.metrics.reportsCreated.Inc()
	s.logger.Info("report created", zap.Int64("id", id), zap.String("username", p.Username))

	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (s *Server) getMyReportsHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	reports, err := s.store.ListReports(r.Context(), &p.UserID)
	if err != nil {
		s.storeError(w, "list reports", err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) getAllReportsHandler(w http.ResponseWriter, r *http.Request) {
	reports, err := s.store.ListReports(r.Context(), nil)
	if err != nil {
		s.storeError(w, "list reports", err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) getReportHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	rep, err := s.store.GetReport(r.Context(), id)
	if err != nil {
		s.storeError(w, "report", err)
		return
	}

	p, _ := principalFrom(r.Context())
	if rep.UserID != p.UserID && !p.isAdmin() {
		writeError(w, http.StatusForbidden, "permission denied")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) deleteReportHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	owner, err := s.store.ReportOwner(r.Context(), id)
	if err != nil {
		s.storeError(w, "report", err)
		return
	}

	// Check if user can delete this report (owner or admin)
	p, _ := principalFrom(r.Context())
	if owner != p.UserID && !p.isAdmin() {
		s.logger.Warn("permission denied",
			zap.Int64("user_id", p.UserID), zap.Int64("report_id", id), zap.Int64("owner_id", owner))
		writeError(w, http.StatusForbidden, "permission denied")
		return
	}

	if err := s.store.DeleteReport(r.Context(), id); err != nil {
		s.storeError(w, "delete report", err)
		return
	}
	s.metrics.reportsDeleted.Inc()

	w.WriteHeader(http.StatusOK)
}

// Catalog handlers

func (s *Server) listCatalogHandler(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(w, r)
	if !ok {
		return
	}

	var (
		out any
		err error
	)
	if kind == catalog.KindWorkers {
		out, err = s.store.ListWorkers(r.Context())
	} else {
		out, err = s.store.ListNamed(r.Context(), kind)
	}
	if err != nil {
		s.storeError(w, "list "+string(kind), err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createCatalogHandler(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(w, r)
	if !ok {
		return
	}

	var (
		id  int64
		err error
	)
	if kind == catalog.KindWorkers {
		var worker catalog.Worker
		if !decodeNamed(w, r, &worker, &worker.Nombre) {
			return
		}
		id, err = s.store.CreateWorker(r.Context(), worker)
	} else {
		var entry namedEntry
		if !decodeNamed(w, r, &entry, &entry.Nombre) {
			return
		}
		id, err = s.store.CreateNamed(r.Context(), kind, entry.Nombre)
	}
	if err != nil {
		s.storeError(w, "create "+string(kind), err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (s *Server) updateCatalogHandler(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var err error
	if kind == catalog.KindWorkers {
		var worker catalog.Worker
		if !decodeNamed(w, r, &worker, &worker.Nombre) {
			return
		}
		err = s.store.UpdateWorker(r.Context(), id, worker)
	} else {
		var entry namedEntry
		if !decodeNamed(w, r, &entry, &entry.Nombre) {
			return
		}
		err = s.store.UpdateNamed(r.Context(), kind, id, entry.Nombre)
	}
	if err != nil {
		s.storeError(w, "update "+string(kind), err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) deleteCatalogHandler(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := s.store.DeleteCatalogEntry(r.Context(), kind, id); err != nil {
		s.storeError(w, "delete "+string(kind), err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func pathKind(w http.ResponseWriter, r *http.Request) (catalog.Kind, bool) {
	kind, err := catalog.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return "", false
	}
	return kind, true
}

// decodeNamed reads a catalog entry and requires a non-blank nombre.
func decodeNamed(w http.ResponseWriter, r *http.Request, dst any, nombre *string) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	*nombre = strings.TrimSpace(*nombre)
	if *nombre == "" {
		writeError(w, http.StatusBadRequest, "nombre is required")
		return false
	}
	return true
}

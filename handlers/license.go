package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"robotcfe.app/cloud/internal/logger"
	"robotcfe.app/cloud/models"
)

func (s *Server) CheckSubscription(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "email")
	emailAddr, err := url.PathUnescape(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid email")
		return
	}

	emailAddr = strings.TrimSpace(emailAddr)
	if emailAddr == "" || !strings.Contains(emailAddr, "@") {
		writeError(w, http.StatusBadRequest, "Invalid email")
		return
	}

	license, err := s.Store.GetLicense(r.Context(), emailAddr)
	if err != nil {
		logger.Error("Failed to look up license", map[string]interface{}{
			"error": err.Error(),
			"email": emailAddr,
		})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	view := models.NewLicenseView(license, s.Now())

	logger.Debug("Subscription check", map[string]interface{}{
		"email":  emailAddr,
		"status": view.Status,
	})

	writeJSON(w, http.StatusOK, view)
}

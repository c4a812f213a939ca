package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/apex/log"

	"civicfix-api/internal/services"
)

type Handler struct {
	validator *services.ValidationService
	store     *services.IssueStore
	storage   *services.StorageService

	uploadDir   string
	apiHost     string
	apiProtocol string
}

func New(validator *services.ValidationService, store *services.IssueStore, storage *services.StorageService, uploadDir, apiHost, apiProtocol string) *Handler {
	return &Handler{
		validator:   validator,
		store:       store,
		storage:     storage,
		uploadDir:   uploadDir,
		apiHost:     apiHost,
		apiProtocol: apiProtocol,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("failed to encode response: %v", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

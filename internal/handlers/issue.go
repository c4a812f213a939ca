package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"

	apperrors "civicfix-api/internal/errors"
	"civicfix-api/internal/models"
	"civicfix-api/internal/utils"
)

const maxUploadBytes = 32 << 20

// HandleCreateIssue accepts a citizen submission: multipart form with title,
// description, device coordinates, and either an uploaded photo or a remote
// photo URL. The validation pipeline decides acceptance; only accepted
// submissions are persisted.
func (h *Handler) HandleCreateIssue(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeMessage(w, http.StatusBadRequest, "Could not parse form input.")
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	description := strings.TrimSpace(r.FormValue("description"))
	if title == "" || description == "" {
		writeMessage(w, http.StatusBadRequest, "Title and description are required.")
		return
	}

	lat, latErr := strconv.ParseFloat(r.FormValue("latitude"), 64)
	lon, lonErr := strconv.ParseFloat(r.FormValue("longitude"), 64)
	if latErr != nil || lonErr != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		writeMessage(w, http.StatusBadRequest,
			"Invalid location coordinates. Latitude: "+r.FormValue("latitude")+", Longitude: "+r.FormValue("longitude"))
		return
	}

	sub := models.Submission{
		Title:          title,
		Description:    description,
		Device:         models.Coordinates{Lat: lat, Lon: lon},
		RemotePhotoURL: strings.TrimSpace(r.FormValue("photo_url")),
		SubmittedAt:    start,
	}

	// Stage the upload on local disk so the metadata extractor gets a real
	// file path. The staged copy is removed once the decision is made.
	var photoData []byte
	file, header, err := r.FormFile("photo")
	if err == nil {
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "Could not read uploaded photo.")
			return
		}

		name, contentType, converted := utils.ConvertIfHeic(
			header.Filename, header.Header.Get("Content-Type"), data)
		photoData = converted

		stagedName := uuid.New().String() + filepath.Ext(name)
		stagedPath := filepath.Join(h.uploadDir, stagedName)
		if err := os.WriteFile(stagedPath, photoData, 0o600); err != nil {
			log.Errorf("failed to stage upload: %v", err)
			writeMessage(w, http.StatusInternalServerError, "Failed to process uploaded photo.")
			return
		}
		defer os.Remove(stagedPath)

		sub.PhotoPath = stagedPath
		sub.PhotoName = stagedName
		sub.ContentType = contentType
	}

	decision, err := h.validator.Validate(r.Context(), sub)
	if err != nil {
		if apperrors.IsRejection(err) {
			writeMessage(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Errorf("validation failed: %v", err)
		writeMessage(w, http.StatusInternalServerError, "Failed to validate submission.")
		return
	}

	issue := &models.Issue{
		Title:       sub.Title,
		Description: sub.Description,
		Latitude:    sub.Device.Lat,
		Longitude:   sub.Device.Lon,
		Address:     decision.Address,
		Status:      "Reported",
		NeedsReview: decision.NeedsReview,
		PHash:       decision.PHash,
		PhotoURL:    sub.RemotePhotoURL,
		CreatedAt:   start,
		UpdatedAt:   start,
	}

	// Persist the accepted upload and point the issue at its public URL.
	if sub.PhotoPath != "" {
		objectPath := "uploads/" + sub.PhotoName
		if err := h.storage.SaveFile(r.Context(), objectPath, photoData, sub.ContentType); err != nil {
			log.Errorf("failed to store upload: %v", err)
			writeMessage(w, http.StatusInternalServerError, "Failed to store uploaded photo.")
			return
		}
		issue.StoragePath = objectPath
		issue.PhotoURL = h.photoURL(r, sub.PhotoName)
	}

	id, err := h.store.CreateIssue(r.Context(), issue)
	if err != nil {
		log.Errorf("failed to create issue: %v", err)
		writeMessage(w, http.StatusInternalServerError, "Failed to save the issue.")
		return
	}
	issue.ID = id

	log.WithField("id", id).Infof("issue created in %v (needs_review=%t)", time.Since(start), issue.NeedsReview)
	writeJSON(w, http.StatusCreated, issue)
}

// HandleListIssues returns issues newest-first with optional pagination.
func (h *Handler) HandleListIssues(w http.ResponseWriter, r *http.Request) {
	limit := 1000
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			writeMessage(w, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		limit = parsed
	}

	page := 0
	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		parsed, err := strconv.Atoi(pageStr)
		if err != nil || parsed < 0 {
			writeMessage(w, http.StatusBadRequest, "Invalid page parameter")
			return
		}
		page = parsed
	}

	issues, err := h.store.ListIssues(r.Context(), limit, page)
	if err != nil {
		log.Errorf("failed to list issues: %v", err)
		writeMessage(w, http.StatusInternalServerError, "Failed to retrieve issues")
		return
	}

	writeJSON(w, http.StatusOK, issues)
}

// HandleGetIssue returns a single issue by ID.
func (h *Handler) HandleGetIssue(w http.ResponseWriter, r *http.Request) {
	issue, err := h.store.GetIssue(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "Issue not found")
			return
		}
		log.Errorf("failed to get issue: %v", err)
		writeMessage(w, http.StatusInternalServerError, "Failed to retrieve issue")
		return
	}

	writeJSON(w, http.StatusOK, issue)
}

// HandleUpdateStatus moves an issue through its lifecycle.
func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status           string `json:"status"`
		ResolvedPhotoURL string `json:"resolved_photo_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, "Could not read JSON input.")
		return
	}
	if !models.ValidStatus(body.Status) {
		writeMessage(w, http.StatusBadRequest, "Invalid status provided")
		return
	}

	resolvedPhotoURL := ""
	if body.Status == "Resolved" {
		resolvedPhotoURL = body.ResolvedPhotoURL
	}

	if err := h.store.UpdateIssueStatus(r.Context(), r.PathValue("id"), body.Status, resolvedPhotoURL); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "Issue not found")
			return
		}
		log.Errorf("failed to update issue: %v", err)
		writeMessage(w, http.StatusInternalServerError, "Failed to update issue")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleDeleteIssue removes an issue.
func (h *Handler) HandleDeleteIssue(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteIssue(r.Context(), r.PathValue("id")); err != nil {
		log.Errorf("failed to delete issue: %v", err)
		writeMessage(w, http.StatusInternalServerError, "Failed to delete issue")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleUploadedPhoto serves a stored photo by its upload name.
func (h *Handler) HandleUploadedPhoto(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	// Security: Prevent path traversal attacks
	if name == "" || strings.Contains(name, "..") || strings.Contains(name, "/") || strings.Contains(name, "\\") {
		writeMessage(w, http.StatusBadRequest, "Invalid photo name")
		return
	}

	data, err := h.storage.FetchFile(r.Context(), "uploads/"+name)
	if err != nil {
		writeMessage(w, http.StatusNotFound, "Photo not found")
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := w.Write(data); err != nil {
		log.Errorf("failed to write photo response: %v", err)
	}
}

// photoURL builds the public URL of a stored upload. API_HOST overrides the
// request host so mobile clients behind a tunnel get a reachable URL.
func (h *Handler) photoURL(r *http.Request, name string) string {
	host := r.Host
	if h.apiHost != "" {
		host = h.apiHost
	}
	protocol := h.apiProtocol
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		protocol = forwarded
	}
	return protocol + "://" + host + "/uploads/" + name
}

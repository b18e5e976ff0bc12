package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"claimsight/internal/core/review"
	"claimsight/internal/integrations/damagedetect"
)

// analyzeRequest ist der Body von POST /review/:claim_id/analyze
type analyzeRequest struct {
	ImageID uint `json:"image_id"`
	Force   bool `json:"force"`
}

// levelRequest ist der Body von POST /review/:claim_id/level
type levelRequest struct {
	Level   int  `json:"level"`
	ImageID uint `json:"image_id"`
}

// boxesRequest ist der Body von POST /review/:claim_id/boxes. Ohne Boxen
// wird eine manuelle Box mit Standardgeometrie angelegt.
type boxesRequest struct {
	ImageID uint                     `json:"image_id"`
	Boxes   []damagedetect.Candidate `json:"boxes"`
	AddBox  bool                     `json:"add_box"`
}

// saveReviewRequest ist der Body von POST /review/:claim_id/save
type saveReviewRequest struct {
	ImageID   uint  `json:"image_id"`
	CreatedBy *uint `json:"created_by"`
}

// reviewError übersetzt Orchestrator-Fehler in das Fehler-Envelope
func reviewError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, review.ErrClaimNotFound):
		fail(c, http.StatusNotFound, "claim_not_found")
	case errors.Is(err, review.ErrImageNotFound):
		fail(c, http.StatusNotFound, "image_not_found")
	default:
		log.Errorf("Review session error: %v", err)
		fail(c, http.StatusInternalServerError, "server_error")
	}
}

// OpenReview öffnet die Begutachtungs-Sitzung eines Schadenfalls
func (h *APIHandler) OpenReview(c *gin.Context) {
	claimID, ok := uintParam(c, "claim_id")
	if !ok {
		fail(c, http.StatusBadRequest, "claim_id_required")
		return
	}

	view, err := h.Reviews.Open(c.Request.Context(), claimID)
	if err != nil {
		reviewError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "data": view})
}

// ReviewState liefert den aktuellen Sitzungszustand, etwa zum Abfragen
// laufender Analysen
func (h *APIHandler) ReviewState(c *gin.Context) {
	claimID, ok := uintParam(c, "claim_id")
	if !ok {
		fail(c, http.StatusBadRequest, "claim_id_required")
		return
	}

	view, err := h.Reviews.View(claimID)
	if err != nil {
		reviewError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "data": view})
}

// AnalyzeReviewImage stößt die Analyse eines Schadenfotos an
func (h *APIHandler) AnalyzeReviewImage(c *gin.Context) {
	claimID, ok := uintParam(c, "claim_id")
	if !ok {
		fail(c, http.StatusBadRequest, "claim_id_required")
		return
	}
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ImageID == 0 {
		fail(c, http.StatusBadRequest, "image_id_required")
		return
	}

	view, err := h.Reviews.Analyze(claimID, req.ImageID, req.Force)
	if err != nil {
		reviewError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "data": view})
}

// SetReviewLevel setzt das Analyse-Level und analysiert das aktive Foto
// mit den neuen Schwellen erneut
func (h *APIHandler) SetReviewLevel(c *gin.Context) {
	claimID, ok := uintParam(c, "claim_id")
	if !ok {
		fail(c, http.StatusBadRequest, "claim_id_required")
		return
	}
	var req levelRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ImageID == 0 {
		fail(c, http.StatusBadRequest, "image_id_required")
		return
	}

	view, err := h.Reviews.SetLevel(claimID, req.Level, req.ImageID)
	if err != nil {
		reviewError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "data": view})
}

// SetReviewBoxes ersetzt die Arbeitsmenge eines Fotos bzw. fügt mit
// add_box eine manuelle Box hinzu
func (h *APIHandler) SetReviewBoxes(c *gin.Context) {
	claimID, ok := uintParam(c, "claim_id")
	if !ok {
		fail(c, http.StatusBadRequest, "claim_id_required")
		return
	}
	var req boxesRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ImageID == 0 {
		fail(c, http.StatusBadRequest, "image_id_required")
		return
	}

	var view *review.SessionView
	var err error
	if req.AddBox {
		view, err = h.Reviews.AddBox(claimID, req.ImageID)
	} else {
		view, err = h.Reviews.SetBoxes(claimID, req.ImageID, req.Boxes)
	}
	if err != nil {
		reviewError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "data": view})
}

// SaveReviewImage persistiert die Arbeitsmenge eines Fotos als neue
// Annotationsmenge
func (h *APIHandler) SaveReviewImage(c *gin.Context) {
	claimID, ok := uintParam(c, "claim_id")
	if !ok {
		fail(c, http.StatusBadRequest, "claim_id_required")
		return
	}
	var req saveReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ImageID == 0 {
		fail(c, http.StatusBadRequest, "image_id_required")
		return
	}

	saved, err := h.Reviews.Save(claimID, req.ImageID, req.CreatedBy)
	if err != nil {
		reviewError(c, err)
		return
	}

	h.Publisher.Publish("annotations.saved", gin.H{
		"claim_id": claimID,
		"image_id": req.ImageID,
		"saved":    saved,
		"time":     time.Now().Format(time.RFC3339),
	})

	c.JSON(http.StatusCreated, gin.H{"ok": true, "saved": saved})
}

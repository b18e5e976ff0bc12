package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"claimsight/internal/core/normalize"
	"claimsight/internal/metrics"
)

// saveAnnotationsRequest ist der Body von POST /image-annotations/save
type saveAnnotationsRequest struct {
	ImageID     uint            `json:"image_id"`
	CreatedBy   *uint           `json:"created_by"`
	Annotations []normalize.Box `json:"annotations"`
}

// GetAnnotationsByImage liefert alle Annotationen eines Schadenfotos
func (h *APIHandler) GetAnnotationsByImage(c *gin.Context) {
	imageID, ok := uintQuery(c, "image_id")
	if !ok {
		fail(c, http.StatusBadRequest, "image_id_required")
		return
	}

	annotations, err := h.Annotations.ListByImage(imageID)
	if err != nil {
		log.Errorf("Failed to list annotations for image %d: %v", imageID, err)
		fail(c, http.StatusInternalServerError, "server_error")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "data": annotations})
}

// GetAnnotationsByClaim liefert alle Annotationen eines Schadenfalls über
// alle Fotos hinweg
func (h *APIHandler) GetAnnotationsByClaim(c *gin.Context) {
	claimID, ok := uintQuery(c, "claim_id")
	if !ok {
		fail(c, http.StatusBadRequest, "claim_id_required")
		return
	}

	annotations, err := h.Annotations.ListByClaim(claimID)
	if err != nil {
		log.Errorf("Failed to list annotations for claim %d: %v", claimID, err)
		fail(c, http.StatusInternalServerError, "server_error")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "data": annotations})
}

// SaveAnnotations ersetzt die komplette Annotationsmenge eines Fotos.
// Eine leere Liste ist gültig und löscht alle Annotationen.
func (h *APIHandler) SaveAnnotations(c *gin.Context) {
	var req saveAnnotationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid_body")
		return
	}
	if req.ImageID == 0 {
		fail(c, http.StatusBadRequest, "image_id_required")
		return
	}

	saved, err := h.Annotations.ReplaceForImage(req.ImageID, req.CreatedBy, req.Annotations)
	if err != nil {
		log.Errorf("Failed to replace annotations for image %d: %v", req.ImageID, err)
		fail(c, http.StatusInternalServerError, "server_error")
		return
	}

	metrics.AnnotationsSaved.Add(float64(saved))
	h.Publisher.Publish("annotations.saved", gin.H{
		"image_id": req.ImageID,
		"saved":    saved,
		"time":     time.Now().Format(time.RFC3339),
	})

	c.JSON(http.StatusCreated, gin.H{"ok": true, "saved": saved})
}

// UpdateAnnotation überschreibt eine einzelne Annotation
func (h *APIHandler) UpdateAnnotation(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		fail(c, http.StatusBadRequest, "id_required")
		return
	}

	var box normalize.Box
	if err := c.ShouldBindJSON(&box); err != nil {
		fail(c, http.StatusBadRequest, "invalid_body")
		return
	}

	affected, err := h.Annotations.UpdateOne(id, box)
	if err != nil {
		log.Errorf("Failed to update annotation %d: %v", id, err)
		fail(c, http.StatusInternalServerError, "server_error")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "affected": affected})
}

// DeleteAnnotation löscht eine einzelne Annotation
func (h *APIHandler) DeleteAnnotation(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		fail(c, http.StatusBadRequest, "id_required")
		return
	}

	affected, err := h.Annotations.DeleteOne(id)
	if err != nil {
		log.Errorf("Failed to delete annotation %d: %v", id, err)
		fail(c, http.StatusInternalServerError, "server_error")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "affected": affected})
}

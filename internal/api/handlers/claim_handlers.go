package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"claimsight/internal/core/models"
	"claimsight/internal/db/repository"
	"claimsight/internal/metrics"
)

// createClaimRequest ist der Body von POST /claim-requests
type createClaimRequest struct {
	UserID        *uint `json:"user_id"`
	SelectedCarID *uint `json:"selected_car_id"`
}

// updateClaimRequest ist der Body von PATCH /claim-requests/:id
type updateClaimRequest struct {
	Status     *string `json:"status"`
	AdminNote  *string `json:"admin_note"`
	ApprovedBy *uint   `json:"approved_by"`
}

// replaceAccidentRequest ist der Body von PUT /claim-requests/:id/accident
type replaceAccidentRequest struct {
	Accident *repository.AccidentDraft `json:"accident"`
	Agreed   bool                      `json:"agreed"`
}

// SubmitClaim reicht einen vollständigen Schadenfall ein: Unfallbeschreibung,
// Fahrzeug und Schadenfotos in einer Transaktion
func (h *APIHandler) SubmitClaim(c *gin.Context) {
	var in repository.SubmitInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, "invalid_body")
		return
	}
	if in.Accident == nil {
		fail(c, http.StatusBadRequest, "accident_required")
		return
	}
	if in.SelectedCarID == 0 {
		fail(c, http.StatusBadRequest, "selected_car_required")
		return
	}

	result, err := h.Claims.Submit(in)
	if err != nil {
		log.Errorf("Failed to submit claim: %v", err)
		fail(c, http.StatusInternalServerError, "server_error")
		return
	}

	metrics.ClaimsSubmitted.Inc()
	h.Publisher.Publish("claim.submitted", gin.H{
		"claim_id": result.ClaimID,
		"images":   result.InsertedImages,
		"time":     time.Now().Format(time.RFC3339),
	})
	log.Infof("Claim %d submitted with %d images", result.ClaimID, result.InsertedImages)

	c.JSON(http.StatusCreated, gin.H{"ok": true, "data": result})
}

// CreateClaim legt einen leeren Schadenfall im Status "pending" an
func (h *APIHandler) CreateClaim(c *gin.Context) {
	var req createClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid_body")
		return
	}

	claim, err := h.Claims.Create(req.UserID, req.SelectedCarID)
	if err != nil {
		log.Errorf("Failed to create claim: %v", err)
		fail(c, http.StatusInternalServerError, "server_error")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"ok": true, "data": claim})
}

// ListClaims liefert die Schadenfälle eines Nutzers, neueste zuerst
func (h *APIHandler) ListClaims(c *gin.Context) {
	userID, ok := uintQuery(c, "user_id")
	if !ok {
		fail(c, http.StatusBadRequest, "user_id_required")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	claims, err := h.Claims.List(&userID, limit)
	if err != nil {
		log.Errorf("Failed to list claims for user %d: %v", userID, err)
		fail(c, http.StatusInternalServerError, "server_error")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "data": claims})
}

// ListAllClaims liefert Schadenfälle aller Nutzer für die Gutachter-Ansicht
func (h *APIHandler) ListAllClaims(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	claims, err := h.Claims.List(nil, limit)
	if err != nil {
		log.Errorf("Failed to list claims: %v", err)
		fail(c, http.StatusInternalServerError, "server_error")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "data": claims})
}

// ClaimDetail liefert einen Schadenfall mit Fahrzeug, Unfallbeschreibung
// und Fotos. Mit user_id wird zusätzlich die Eigentümerschaft geprüft.
func (h *APIHandler) ClaimDetail(c *gin.Context) {
	claimID, ok := uintQuery(c, "claim_id")
	if !ok {
		fail(c, http.StatusBadRequest, "claim_id_required")
		return
	}
	var userID *uint
	if v, ok := uintQuery(c, "user_id"); ok {
		userID = &v
	}

	claim, err := h.Claims.Detail(claimID, userID)
	if err != nil {
		log.Errorf("Failed to load claim %d: %v", claimID, err)
		fail(c, http.StatusInternalServerError, "server_error")
		return
	}
	if claim == nil {
		fail(c, http.StatusNotFound, "claim_not_found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "claim": claim})
}

// UpdateClaimStatus aktualisiert Status und Admin-Felder eines Schadenfalls
func (h *APIHandler) UpdateClaimStatus(c *gin.Context) {
	claimID, ok := uintParam(c, "id")
	if !ok {
		fail(c, http.StatusBadRequest, "id_required")
		return
	}

	var req updateClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid_body")
		return
	}

	upd := repository.StatusUpdate{
		AdminNote:  req.AdminNote,
		ApprovedBy: req.ApprovedBy,
	}
	if req.Status != nil {
		switch *req.Status {
		case models.ClaimStatusPending, models.ClaimStatusApproved, models.ClaimStatusRejected:
		default:
			fail(c, http.StatusBadRequest, "invalid_status")
			return
		}
		upd.Status = req.Status
		if *req.Status != models.ClaimStatusPending {
			now := time.Now()
			upd.ApprovedAt = &now
		}
	}

	affected, err := h.Claims.UpdateStatus(claimID, upd)
	if err != nil {
		log.Errorf("Failed to update claim %d: %v", claimID, err)
		fail(c, http.StatusInternalServerError, "server_error")
		return
	}
	if affected == 0 {
		fail(c, http.StatusNotFound, "claim_not_found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "affected": affected})
}

// ReplaceClaimAccident hängt eine neue Unfallbeschreibung an einen
// bestehenden Schadenfall
func (h *APIHandler) ReplaceClaimAccident(c *gin.Context) {
	claimID, ok := uintParam(c, "id")
	if !ok {
		fail(c, http.StatusBadRequest, "id_required")
		return
	}

	var req replaceAccidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid_body")
		return
	}
	if req.Accident == nil {
		fail(c, http.StatusBadRequest, "accident_required")
		return
	}

	detailID, err := h.Claims.ReplaceAccidentDetail(claimID, *req.Accident, req.Agreed)
	if err != nil {
		log.Errorf("Failed to replace accident detail for claim %d: %v", claimID, err)
		fail(c, http.StatusInternalServerError, "server_error")
		return
	}
	if detailID == 0 {
		fail(c, http.StatusNotFound, "claim_not_found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "accident_detail_id": detailID})
}

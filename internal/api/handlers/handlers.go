// Package handlers enthält die HTTP-Handler der API. Alle Antworten
// verwenden ein einheitliches Envelope: {ok:true, ...} bei Erfolg,
// {ok:false, message} bei Fehlern. Fehlermeldungen sind lokalisierbar und
// enthalten nie rohe Fehlerdetails.
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"claimsight/config"
	"claimsight/internal/api/middleware"
	"claimsight/internal/core/review"
	"claimsight/internal/db/repository"
	"claimsight/internal/integrations/mqtt"
)

// APIHandler bündelt die Abhängigkeiten aller API-Endpunkte
type APIHandler struct {
	Config      *config.Config
	Annotations *repository.AnnotationRepository
	Claims      *repository.ClaimRepository
	Policies    *repository.PolicyRepository
	Runs        *repository.DetectionRunRepository
	Reviews     *review.Manager
	Publisher   *mqtt.Publisher
}

// NewAPIHandler erstellt den API-Handler
func NewAPIHandler(
	cfg *config.Config,
	annotations *repository.AnnotationRepository,
	claims *repository.ClaimRepository,
	policies *repository.PolicyRepository,
	runs *repository.DetectionRunRepository,
	reviews *review.Manager,
	publisher *mqtt.Publisher,
) *APIHandler {
	return &APIHandler{
		Config:      cfg,
		Annotations: annotations,
		Claims:      claims,
		Policies:    policies,
		Runs:        runs,
		Reviews:     reviews,
		Publisher:   publisher,
	}
}

// RegisterRoutes registriert alle API-Routen unterhalb der Gruppe
func (h *APIHandler) RegisterRoutes(api *gin.RouterGroup) {
	annotations := api.Group("/image-annotations")
	{
		annotations.GET("/by-image", h.GetAnnotationsByImage)
		annotations.GET("/by-claim", h.GetAnnotationsByClaim)
		annotations.POST("/save", h.SaveAnnotations)
		annotations.PATCH("/:id", h.UpdateAnnotation)
		annotations.DELETE("/:id", h.DeleteAnnotation)
	}

	claims := api.Group("/claim-requests")
	{
		claims.POST("", h.CreateClaim)
		claims.POST("/submit", h.SubmitClaim)
		claims.GET("/list", h.ListClaims)
		claims.GET("/listall", h.ListAllClaims)
		claims.GET("/detail", h.ClaimDetail)
		claims.PATCH("/:id", h.UpdateClaimStatus)
		claims.PUT("/:id/accident", h.ReplaceClaimAccident)
	}

	api.GET("/policies/:citizen_id", h.GetPoliciesByCitizen)

	reviews := api.Group("/review/:claim_id")
	{
		reviews.POST("/open", h.OpenReview)
		reviews.GET("/state", h.ReviewState)
		reviews.POST("/analyze", h.AnalyzeReviewImage)
		reviews.POST("/level", h.SetReviewLevel)
		reviews.POST("/boxes", h.SetReviewBoxes)
		reviews.POST("/save", h.SaveReviewImage)
	}

	api.GET("/status", h.GetStatus)
}

// fail sendet das Fehler-Envelope mit lokalisierter Meldung
func fail(c *gin.Context, status int, messageID string) {
	c.JSON(status, gin.H{
		"ok":      false,
		"message": middleware.T(c, messageID),
	})
}

// uintParam parst einen Pfadparameter als positive Ganzzahl
func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint(v), true
}

// uintQuery parst einen Query-Parameter als positive Ganzzahl
func uintQuery(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Query(name), 10, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint(v), true
}

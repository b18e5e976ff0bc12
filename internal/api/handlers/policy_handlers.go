package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// GetPoliciesByCitizen liefert alle Kfz-Policen eines Versicherungsnehmers
// für die Fahrzeugauswahl bei der Einreichung
func (h *APIHandler) GetPoliciesByCitizen(c *gin.Context) {
	citizenID := c.Param("citizen_id")
	if citizenID == "" {
		fail(c, http.StatusBadRequest, "citizen_id_required")
		return
	}

	policies, err := h.Policies.ByCitizenID(citizenID)
	if err != nil {
		log.Errorf("Failed to list policies for citizen %s: %v", citizenID, err)
		fail(c, http.StatusInternalServerError, "server_error")
		return
	}
	if len(policies) == 0 {
		fail(c, http.StatusNotFound, "not_found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "data": policies})
}

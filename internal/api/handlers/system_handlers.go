package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"claimsight/internal/util/sysinfo"
)

// GetStatus liefert Systemkennzahlen des laufenden Prozesses
func (h *APIHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":   true,
		"data": sysinfo.Collect(),
	})
}

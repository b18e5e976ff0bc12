package repository

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"claimsight/config"
	"claimsight/internal/core/models"
	"claimsight/internal/db"
)

// setupDB öffnet eine frische SQLite-Datenbank im Temp-Verzeichnis des Tests
func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.Initialize(config.DBConfig{
		File: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	return conn
}

// seedImage hängt ein weiteres Foto an einen bestehenden Schadenfall
func seedImage(t *testing.T, conn *gorm.DB, claimID uint, url, side string) uint {
	t.Helper()
	img := models.EvaluationImage{ClaimID: claimID, OriginalURL: url, Side: side}
	require.NoError(t, conn.Create(&img).Error)
	return img.ID
}

// seedClaimWithImage legt einen Schadenfall mit einem Foto an
func seedClaimWithImage(t *testing.T, conn *gorm.DB, url, side string) (uint, uint) {
	t.Helper()
	claim := models.ClaimRequest{Status: models.ClaimStatusPending}
	require.NoError(t, conn.Create(&claim).Error)
	img := models.EvaluationImage{ClaimID: claim.ID, OriginalURL: url, Side: side}
	require.NoError(t, conn.Create(&img).Error)
	return claim.ID, img.ID
}

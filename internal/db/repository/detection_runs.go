package repository

import (
	"fmt"

	"gorm.io/gorm"

	"claimsight/internal/core/models"
)

// DetectionRunRepository protokolliert Aufrufe des externen
// Erkennungsdienstes für Nachvollziehbarkeit und Fehlersuche
type DetectionRunRepository struct {
	db *gorm.DB
}

func NewDetectionRunRepository(db *gorm.DB) *DetectionRunRepository {
	return &DetectionRunRepository{db: db}
}

// Record speichert einen abgeschlossenen Erkennungslauf
func (r *DetectionRunRepository) Record(run *models.DetectionRun) error {
	if err := r.db.Create(run).Error; err != nil {
		return fmt.Errorf("error recording detection run %s: %w", run.RunID, err)
	}
	return nil
}

// ListByImage liefert die Erkennungsläufe eines Schadenfotos, neueste zuerst
func (r *DetectionRunRepository) ListByImage(imageID uint, limit int) ([]models.DetectionRun, error) {
	if limit <= 0 {
		limit = 20
	}
	runs := make([]models.DetectionRun, 0)
	if err := r.db.Where("evaluation_image_id = ?", imageID).
		Order("created_at DESC").
		Limit(limit).
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("error listing detection runs for image %d: %w", imageID, err)
	}
	return runs, nil
}

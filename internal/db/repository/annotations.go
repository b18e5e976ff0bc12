package repository

import (
	"fmt"

	"gorm.io/gorm"

	"claimsight/internal/core/models"
	"claimsight/internal/core/normalize"
)

// AnnotationRepository bündelt alle Datenbankzugriffe auf Annotationen.
// Schreiboperationen normalisieren ihre Eingaben selbst; Aufrufer müssen
// sich darum nicht kümmern.
type AnnotationRepository struct {
	db *gorm.DB
}

func NewAnnotationRepository(db *gorm.DB) *AnnotationRepository {
	return &AnnotationRepository{db: db}
}

// ListByImage liefert alle Annotationen eines Schadenfotos in stabiler
// Reihenfolge (ID aufsteigend). Ein Bild ohne Annotationen liefert eine
// leere Liste, keinen Fehler.
func (r *AnnotationRepository) ListByImage(imageID uint) ([]models.Annotation, error) {
	annotations := make([]models.Annotation, 0)
	if err := r.db.Where("evaluation_image_id = ?", imageID).
		Order("id ASC").
		Find(&annotations).Error; err != nil {
		return nil, fmt.Errorf("error listing annotations for image %d: %w", imageID, err)
	}
	return annotations, nil
}

// ListByClaim liefert alle Annotationen eines Schadenfalls über alle Fotos
// hinweg, angereichert um Bild-URL und Fahrzeugseite
func (r *AnnotationRepository) ListByClaim(claimID uint) ([]models.ClaimAnnotation, error) {
	rows := make([]models.ClaimAnnotation, 0)
	err := r.db.Table("annotations").
		Select("annotations.*, evaluation_images.original_url, evaluation_images.side").
		Joins("JOIN evaluation_images ON evaluation_images.id = annotations.evaluation_image_id").
		Where("evaluation_images.claim_id = ?", claimID).
		Order("annotations.created_at ASC, annotations.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error listing annotations for claim %d: %w", claimID, err)
	}
	return rows, nil
}

// ReplaceForImage ersetzt die komplette Annotationsmenge eines Fotos in
// einer Transaktion: erst alle bestehenden Zeilen löschen, dann die neue
// Menge einfügen. Scheitert ein Insert (z.B. zwei identische gerundete
// Boxen), wird vollständig zurückgerollt und der alte Stand bleibt erhalten.
// Eine leere Menge ist gültig und löscht alle Annotationen des Fotos.
func (r *AnnotationRepository) ReplaceForImage(imageID uint, createdBy *uint, boxes []normalize.Box) (int, error) {
	normalized := normalize.NormalizeAll(boxes)

	tx := r.db.Begin()
	if tx.Error != nil {
		return 0, fmt.Errorf("error starting transaction: %w", tx.Error)
	}
	defer func() {
		if rec := recover(); rec != nil {
			tx.Rollback()
			panic(rec)
		}
	}()

	if err := tx.Where("evaluation_image_id = ?", imageID).
		Delete(&models.Annotation{}).Error; err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("error deleting annotations for image %d: %w", imageID, err)
	}

	if len(normalized) > 0 {
		rows := make([]models.Annotation, len(normalized))
		for i, b := range normalized {
			rows[i] = toAnnotation(imageID, createdBy, b)
		}
		if err := tx.Create(&rows).Error; err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("error inserting annotations for image %d: %w", imageID, err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return 0, fmt.Errorf("error committing annotations for image %d: %w", imageID, err)
	}
	return len(normalized), nil
}

// UpdateOne überschreibt eine einzelne Annotation mit der normalisierten
// Box und liefert die Anzahl betroffener Zeilen (0 bei unbekannter ID)
func (r *AnnotationRepository) UpdateOne(id uint, box normalize.Box) (int64, error) {
	b := normalize.Normalize(box)
	res := r.db.Model(&models.Annotation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"part_name":    b.PartName,
			"damage_name":  b.DamageName,
			"severity":     b.Severity,
			"area_percent": areaToInt(b.AreaPercent),
			"x":            b.X,
			"y":            b.Y,
			"w":            b.W,
			"h":            b.H,
			"confidence":   b.Confidence,
			"mask_iou":     b.MaskIoU,
			"source":       b.Source,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("error updating annotation %d: %w", id, res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteOne löscht eine einzelne Annotation und liefert die Anzahl
// betroffener Zeilen (0 bei unbekannter ID)
func (r *AnnotationRepository) DeleteOne(id uint) (int64, error) {
	res := r.db.Where("id = ?", id).Delete(&models.Annotation{})
	if res.Error != nil {
		return 0, fmt.Errorf("error deleting annotation %d: %w", id, res.Error)
	}
	return res.RowsAffected, nil
}

// toAnnotation überführt eine normalisierte Box in das Persistenzmodell
func toAnnotation(imageID uint, createdBy *uint, b normalize.Box) models.Annotation {
	return models.Annotation{
		EvaluationImageID: imageID,
		PartName:          b.PartName,
		DamageName:        b.DamageName,
		Severity:          b.Severity,
		AreaPercent:       areaToInt(b.AreaPercent),
		X:                 b.X,
		Y:                 b.Y,
		W:                 b.W,
		H:                 b.H,
		Confidence:        b.Confidence,
		MaskIoU:           b.MaskIoU,
		Source:            b.Source,
		CreatedBy:         createdBy,
	}
}

func areaToInt(v *float64) *int {
	if v == nil {
		return nil
	}
	i := int(*v)
	return &i
}

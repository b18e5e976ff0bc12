package repository

import (
	"fmt"

	"gorm.io/gorm"

	"claimsight/internal/core/models"
)

// PolicyRepository liefert Kfz-Policen für die Fahrzeugauswahl bei der
// Einreichung
type PolicyRepository struct {
	db *gorm.DB
}

func NewPolicyRepository(db *gorm.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// ByCitizenID liefert alle Policen eines Versicherungsnehmers. Ein
// unbekannter Versicherungsnehmer liefert eine leere Liste.
func (r *PolicyRepository) ByCitizenID(citizenID string) ([]models.InsurancePolicy, error) {
	policies := make([]models.InsurancePolicy, 0)
	if err := r.db.Where("citizen_id = ?", citizenID).
		Order("id ASC").
		Find(&policies).Error; err != nil {
		return nil, fmt.Errorf("error listing policies for citizen %s: %w", citizenID, err)
	}
	return policies, nil
}

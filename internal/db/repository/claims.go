package repository

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"gorm.io/gorm"

	"claimsight/internal/core/models"
)

// Begrenzung der Listenabfragen
const (
	defaultClaimListLimit = 100
	maxClaimListLimit     = 200
)

var timePattern = regexp.MustCompile(`^\d{2}:\d{2}(:\d{2})?$`)

// MediaItem ist ein hochgeladenes Beweis-Medium (Foto oder Video)
type MediaItem struct {
	URL      string `json:"url"`
	Type     string `json:"type"`
	PublicID string `json:"public_id"`
}

// DamagePhoto ist ein Schadenfoto mit optionaler Fahrzeugseite
type DamagePhoto struct {
	URL  string `json:"url"`
	Side string `json:"side"`
}

// AccidentDraft ist die Unfallbeschreibung, wie sie das Frontend bei der
// Einreichung liefert
type AccidentDraft struct {
	AccidentType string  `json:"accident_type"`
	Date         string  `json:"date"` // YYYY-MM-DD
	Time         string  `json:"time"` // HH:mm oder HH:mm:ss
	Province     *string `json:"province"`
	District     *string `json:"district"`
	Road         *string `json:"road"`
	AreaType     string  `json:"area_type"`
	Nearby       *string `json:"nearby"`
	Details      *string `json:"details"`
	Location     struct {
		Lat      float64  `json:"lat"`
		Lng      float64  `json:"lng"`
		Accuracy *float64 `json:"accuracy"`
	} `json:"location"`
	EvidenceMedia []MediaItem   `json:"evidence_media"`
	DamagePhotos  []DamagePhoto `json:"damage_photos"`
}

// SubmitInput ist die vollständige Einreichung eines Schadenfalls
type SubmitInput struct {
	UserID        *uint          `json:"user_id"`
	SelectedCarID uint           `json:"selected_car_id"`
	Accident      *AccidentDraft `json:"accident"`
	Agreed        bool           `json:"agreed"`
}

// SubmitResult fasst die in der Einreichungs-Transaktion angelegten
// Datensätze zusammen
type SubmitResult struct {
	AccidentDetailID uint `json:"accident_detail_id"`
	ClaimID          uint `json:"claim_id"`
	InsertedImages   int  `json:"inserted_images"`
}

// StatusUpdate sind die änderbaren Felder eines Schadenfalls; nil-Felder
// bleiben unverändert
type StatusUpdate struct {
	Status     *string
	AdminNote  *string
	ApprovedBy *uint
	ApprovedAt *time.Time
}

// ClaimRepository bündelt alle Datenbankzugriffe auf Schadenfälle
type ClaimRepository struct {
	db *gorm.DB
}

func NewClaimRepository(db *gorm.DB) *ClaimRepository {
	return &ClaimRepository{db: db}
}

// normalizeTime bringt eine Uhrzeit in die Form HH:mm:ss. Unbrauchbare
// Eingaben fallen auf "00:00:00" zurück statt die Einreichung abzulehnen.
func normalizeTime(t string) string {
	if !timePattern.MatchString(t) {
		return "00:00:00"
	}
	if len(t) == 5 {
		return t + ":00"
	}
	return t
}

// Submit legt Unfallbeschreibung, Schadenfall und Schadenfotos in einer
// Transaktion an. Fotos ohne URL werden übersprungen; eine fehlende
// Fahrzeugseite wird als "unspecified" gespeichert.
func (r *ClaimRepository) Submit(in SubmitInput) (*SubmitResult, error) {
	if in.Accident == nil {
		return nil, errors.New("accident details required")
	}
	acc := in.Accident

	var fileURL, mediaType *string
	if len(acc.EvidenceMedia) > 0 && acc.EvidenceMedia[0].URL != "" {
		fileURL = &acc.EvidenceMedia[0].URL
		mediaType = &acc.EvidenceMedia[0].Type
	}

	result := &SubmitResult{}
	err := r.db.Transaction(func(tx *gorm.DB) error {
		detail := models.AccidentDetail{
			AccidentType: acc.AccidentType,
			AccidentDate: acc.Date,
			AccidentTime: normalizeTime(acc.Time),
			Province:     acc.Province,
			District:     acc.District,
			Road:         acc.Road,
			AreaType:     acc.AreaType,
			Nearby:       acc.Nearby,
			Details:      acc.Details,
			Latitude:     acc.Location.Lat,
			Longitude:    acc.Location.Lng,
			Accuracy:     acc.Location.Accuracy,
			FileURL:      fileURL,
			MediaType:    mediaType,
			Agreed:       in.Agreed,
		}
		if err := tx.Create(&detail).Error; err != nil {
			return fmt.Errorf("error creating accident detail: %w", err)
		}

		claim := models.ClaimRequest{
			UserID:           in.UserID,
			Status:           models.ClaimStatusPending,
			SelectedCarID:    &in.SelectedCarID,
			AccidentDetailID: &detail.ID,
		}
		if err := tx.Create(&claim).Error; err != nil {
			return fmt.Errorf("error creating claim request: %w", err)
		}

		inserted := 0
		for _, photo := range acc.DamagePhotos {
			if photo.URL == "" {
				continue
			}
			side := photo.Side
			if side == "" {
				side = models.SideUnspecified
			}
			img := models.EvaluationImage{
				ClaimID:     claim.ID,
				OriginalURL: photo.URL,
				Side:        side,
			}
			if err := tx.Create(&img).Error; err != nil {
				return fmt.Errorf("error creating evaluation image: %w", err)
			}
			inserted++
		}

		result.AccidentDetailID = detail.ID
		result.ClaimID = claim.ID
		result.InsertedImages = inserted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Create legt einen leeren Schadenfall im Status "pending" an, dem später
// Unfallbeschreibung und Fotos zugeordnet werden
func (r *ClaimRepository) Create(userID *uint, selectedCarID *uint) (*models.ClaimRequest, error) {
	claim := models.ClaimRequest{
		UserID:        userID,
		Status:        models.ClaimStatusPending,
		SelectedCarID: selectedCarID,
	}
	if err := r.db.Create(&claim).Error; err != nil {
		return nil, fmt.Errorf("error creating claim request: %w", err)
	}
	return &claim, nil
}

// List liefert Schadenfälle absteigend nach Anlagedatum, optional auf einen
// Nutzer gefiltert. Das Limit ist nach oben begrenzt.
func (r *ClaimRepository) List(userID *uint, limit int) ([]models.ClaimRequest, error) {
	if limit <= 0 {
		limit = defaultClaimListLimit
	}
	if limit > maxClaimListLimit {
		limit = maxClaimListLimit
	}

	query := r.db.Model(&models.ClaimRequest{}).
		Preload("AccidentDetail").
		Preload("SelectedCar").
		Preload("Images").
		Order("created_at DESC").
		Limit(limit)
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}

	claims := make([]models.ClaimRequest, 0)
	if err := query.Find(&claims).Error; err != nil {
		return nil, fmt.Errorf("error listing claim requests: %w", err)
	}
	return claims, nil
}

// Detail liefert einen Schadenfall mit allen Relationen. Ein unbekannter
// Fall liefert (nil, nil), damit der Aufrufer 404 von 500 trennen kann.
// Mit userID wird zusätzlich die Eigentümerschaft geprüft.
func (r *ClaimRepository) Detail(claimID uint, userID *uint) (*models.ClaimRequest, error) {
	query := r.db.Preload("AccidentDetail").
		Preload("SelectedCar").
		Preload("Images").
		Where("id = ?", claimID)
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}

	var claim models.ClaimRequest
	if err := query.First(&claim).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("error loading claim request %d: %w", claimID, err)
	}
	return &claim, nil
}

// UpdateStatus aktualisiert Status, Admin-Notiz und Freigabe-Felder eines
// Schadenfalls; nil-Felder bleiben unverändert (COALESCE-Semantik). Liefert
// die Anzahl betroffener Zeilen.
func (r *ClaimRepository) UpdateStatus(claimID uint, upd StatusUpdate) (int64, error) {
	fields := map[string]interface{}{}
	if upd.Status != nil {
		fields["status"] = *upd.Status
	}
	if upd.AdminNote != nil {
		fields["admin_note"] = *upd.AdminNote
	}
	if upd.ApprovedBy != nil {
		fields["approved_by"] = *upd.ApprovedBy
	}
	if upd.ApprovedAt != nil {
		fields["approved_at"] = *upd.ApprovedAt
	}
	if len(fields) == 0 {
		return 0, errors.New("no fields to update")
	}

	res := r.db.Model(&models.ClaimRequest{}).
		Where("id = ?", claimID).
		Updates(fields)
	if res.Error != nil {
		return 0, fmt.Errorf("error updating claim request %d: %w", claimID, res.Error)
	}
	return res.RowsAffected, nil
}

// ReplaceAccidentDetail legt eine neue Unfallbeschreibung an und hängt sie
// in einer Transaktion an einen bestehenden Schadenfall. Liefert die ID der
// neuen Beschreibung; ein unbekannter Schadenfall liefert (0, nil).
func (r *ClaimRepository) ReplaceAccidentDetail(claimID uint, acc AccidentDraft, agreed bool) (uint, error) {
	var detailID uint
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var claim models.ClaimRequest
		if err := tx.First(&claim, claimID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("error loading claim request %d: %w", claimID, err)
		}

		var fileURL, mediaType *string
		if len(acc.EvidenceMedia) > 0 && acc.EvidenceMedia[0].URL != "" {
			fileURL = &acc.EvidenceMedia[0].URL
			mediaType = &acc.EvidenceMedia[0].Type
		}
		detail := models.AccidentDetail{
			AccidentType: acc.AccidentType,
			AccidentDate: acc.Date,
			AccidentTime: normalizeTime(acc.Time),
			Province:     acc.Province,
			District:     acc.District,
			Road:         acc.Road,
			AreaType:     acc.AreaType,
			Nearby:       acc.Nearby,
			Details:      acc.Details,
			Latitude:     acc.Location.Lat,
			Longitude:    acc.Location.Lng,
			Accuracy:     acc.Location.Accuracy,
			FileURL:      fileURL,
			MediaType:    mediaType,
			Agreed:       agreed,
		}
		if err := tx.Create(&detail).Error; err != nil {
			return fmt.Errorf("error creating accident detail: %w", err)
		}
		if err := tx.Model(&claim).Update("accident_detail_id", detail.ID).Error; err != nil {
			return fmt.Errorf("error attaching accident detail to claim %d: %w", claimID, err)
		}
		detailID = detail.ID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return detailID, nil
}

// AttachAccidentDetail verknüpft eine nachträglich angelegte
// Unfallbeschreibung mit einem bestehenden Schadenfall
func (r *ClaimRepository) AttachAccidentDetail(claimID, detailID uint) (int64, error) {
	res := r.db.Model(&models.ClaimRequest{}).
		Where("id = ?", claimID).
		Update("accident_detail_id", detailID)
	if res.Error != nil {
		return 0, fmt.Errorf("error attaching accident detail to claim %d: %w", claimID, res.Error)
	}
	return res.RowsAffected, nil
}

// ImageByID liefert ein Schadenfoto oder (nil, nil), wenn es nicht existiert
func (r *ClaimRepository) ImageByID(imageID uint) (*models.EvaluationImage, error) {
	var img models.EvaluationImage
	if err := r.db.First(&img, imageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("error loading evaluation image %d: %w", imageID, err)
	}
	return &img, nil
}

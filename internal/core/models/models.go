package models

import (
	"time"

	"gorm.io/datatypes"
)

// Status-Werte eines Schadenfalls; Übergänge erfolgen ausschließlich durch Admins
const (
	ClaimStatusPending  = "pending"
	ClaimStatusApproved = "approved"
	ClaimStatusRejected = "rejected"
)

// Herkunft einer Annotation
const (
	SourceManual = "manual"
	SourceModel  = "model"
	SourceLegacy = "legacy"
)

// Fahrzeugseite eines Schadenfotos
const (
	SideLeft        = "left"
	SideRight       = "right"
	SideFront       = "front"
	SideBack        = "back"
	SideUnspecified = "unspecified"
)

// InsurancePolicy repräsentiert eine Kfz-Police eines Versicherungsnehmers
type InsurancePolicy struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	CitizenID       string     `gorm:"index;not null" json:"citizen_id"`
	CarBrand        string     `json:"car_brand"`
	CarModel        string     `json:"car_model"`
	CarYear         string     `json:"car_year"`
	CarLicensePlate string     `json:"car_license_plate"`
	InsuranceType   string     `json:"insurance_type"`
	PolicyNumber    string     `gorm:"index" json:"policy_number"`
	CoverageEndDate *time.Time `json:"coverage_end_date"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// AccidentDetail repräsentiert die Unfallbeschreibung eines Schadenfalls.
// Wird einmalig bei der Einreichung angelegt und danach nicht mehr verändert.
type AccidentDetail struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	AccidentType string    `gorm:"not null" json:"accident_type"`
	AccidentDate string    `gorm:"not null" json:"accident_date"` // YYYY-MM-DD
	AccidentTime string    `gorm:"not null" json:"accident_time"` // HH:mm:ss
	Province     *string   `json:"province"`
	District     *string   `json:"district"`
	Road         *string   `json:"road"`
	AreaType     string    `json:"area_type"`
	Nearby       *string   `json:"nearby"`
	Details      *string   `json:"details"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Accuracy     *float64  `json:"accuracy"`
	FileURL      *string   `json:"file_url"`   // Beweis-Medium (Foto/Video)
	MediaType    *string   `json:"media_type"` // "image" oder "video"
	Agreed       bool      `json:"agreed"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ClaimRequest repräsentiert einen Schadenfall (eine Unfallmeldung)
type ClaimRequest struct {
	ID               uint              `gorm:"primaryKey" json:"id"`
	UserID           *uint             `gorm:"index" json:"user_id"`
	Status           string            `gorm:"index;default:pending" json:"status"`
	ApprovedBy       *uint             `json:"approved_by"`
	ApprovedAt       *time.Time        `json:"approved_at"`
	AdminNote        *string           `json:"admin_note"`
	SelectedCarID    *uint             `gorm:"index" json:"selected_car_id"`
	AccidentDetailID *uint             `gorm:"index" json:"accident_detail_id"`
	AccidentDetail   *AccidentDetail   `gorm:"foreignKey:AccidentDetailID" json:"accident_detail,omitempty"`
	SelectedCar      *InsurancePolicy  `gorm:"foreignKey:SelectedCarID" json:"car,omitempty"`
	Images           []EvaluationImage `gorm:"foreignKey:ClaimID;constraint:OnDelete:CASCADE;" json:"images"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// EvaluationImage repräsentiert ein Schadenfoto eines Schadenfalls
type EvaluationImage struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	ClaimID      uint         `gorm:"index;not null" json:"claim_id"`
	OriginalURL  string       `gorm:"not null" json:"original_url"`
	EvaluatedURL *string      `json:"evaluated_url"`
	Side         string       `gorm:"default:unspecified" json:"side"`
	Annotations  []Annotation `gorm:"foreignKey:EvaluationImageID;constraint:OnDelete:CASCADE;" json:"-"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Annotation repräsentiert eine Bounding-Box auf einem Schadenfoto.
// Geometrie ist auf [0,1] normalisiert und auf 3 Nachkommastellen gerundet;
// der zusammengesetzte Unique-Index arbeitet auf den gerundeten Werten.
// Es gibt bewusst kein Soft-Delete: Replace-for-Image löscht hart, damit
// neu eingefügte Boxen nicht mit gelöschten Zeilen im Index kollidieren.
type Annotation struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	EvaluationImageID uint      `gorm:"index;not null;uniqueIndex:idx_image_box_rounded" json:"evaluation_image_id"`
	PartName          string    `json:"part_name"`
	DamageName        string    `json:"damage_name"`
	Severity          string    `gorm:"size:1;default:A" json:"severity"` // A, B oder C
	AreaPercent       *int      `json:"area_percent"`
	X                 float64   `gorm:"uniqueIndex:idx_image_box_rounded" json:"x"`
	Y                 float64   `gorm:"uniqueIndex:idx_image_box_rounded" json:"y"`
	W                 float64   `gorm:"uniqueIndex:idx_image_box_rounded" json:"w"`
	H                 float64   `gorm:"uniqueIndex:idx_image_box_rounded" json:"h"`
	Confidence        *float64  `json:"confidence"` // nil bei manuell gezeichneten Boxen
	MaskIoU           *float64  `gorm:"column:mask_iou" json:"mask_iou"`
	Source            string    `gorm:"default:manual" json:"source"`
	CreatedBy         *uint     `json:"created_by"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ClaimAnnotation ist das Lesemodell für die Auswertung pro Schadenfall:
// Annotation verbunden mit den Bild-Metadaten
type ClaimAnnotation struct {
	Annotation
	OriginalURL string `json:"original_url"`
	Side        string `json:"side"`
}

// DetectionRun protokolliert einen Aufruf des externen Erkennungsdienstes
// inklusive der verwendeten Parameter und der Rohantwort
type DetectionRun struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	RunID             string         `gorm:"uniqueIndex" json:"run_id"`
	EvaluationImageID uint           `gorm:"index" json:"evaluation_image_id"`
	Params            datatypes.JSON `gorm:"type:json" json:"params"`
	Response          datatypes.JSON `gorm:"type:json;null" json:"response"`
	DurationMs        int64          `json:"duration_ms"`
	OK                bool           `json:"ok"`
	ErrorMessage      string         `json:"error_message"`
	CreatedAt         time.Time      `json:"created_at"`
}

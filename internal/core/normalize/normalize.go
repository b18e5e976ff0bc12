// Package normalize bringt rohe Annotationen in die kanonische,
// speichersichere Form: Koordinaten geklemmt auf [0,1], Geometrie auf
// 3 Nachkommastellen gerundet (passend zum gerundeten Unique-Index),
// Enums mit Standardwerten belegt. Rein funktional, ohne Seiteneffekte.
package normalize

import "math"

// Gültige Schweregrade und Quellen; ungültige Werte fallen auf den Standard zurück.
var (
	validSeverities = map[string]bool{"A": true, "B": true, "C": true}
	validSources    = map[string]bool{"manual": true, "model": true, "legacy": true}
)

// MinBoxSize ist die Untergrenze für Breite und Höhe einer Box. Eine Box
// darf nie auf exakt 0 degenerieren: sie bliebe sonst unsichtbar und alle
// Null-Boxen eines Bildes würden im Unique-Index kollidieren.
const MinBoxSize = 0.0001

// Box ist eine rohe bzw. normalisierte Annotation, wie sie das Frontend
// liefert und der Store erwartet
type Box struct {
	PartName    string   `json:"part_name"`
	DamageName  string   `json:"damage_name"`
	Severity    string   `json:"severity"`
	AreaPercent *float64 `json:"area_percent"`
	X           float64  `json:"x"`
	Y           float64  `json:"y"`
	W           float64  `json:"w"`
	H           float64  `json:"h"`
	Confidence  *float64 `json:"confidence"`
	MaskIoU     *float64 `json:"mask_iou"`
	Source      string   `json:"source"`
}

// Clamp01 klemmt einen Wert auf das Intervall [0,1]
func Clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Round3 rundet auf 3 Nachkommastellen
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// Normalize liefert die kanonische Form einer Box. Die Funktion ist
// deterministisch und idempotent: Normalize(Normalize(b)) == Normalize(b).
//
// Confidence wird bewusst NICHT geklemmt, nur MaskIoU — das entspricht dem
// bestehenden Persistenzverhalten und muss so bleiben.
func Normalize(b Box) Box {
	out := b

	if !validSeverities[b.Severity] {
		out.Severity = "A"
	}

	if b.AreaPercent != nil {
		v := math.Round(math.Max(0, math.Min(100, *b.AreaPercent)))
		out.AreaPercent = &v
	}

	out.X = Round3(Clamp01(b.X))
	out.Y = Round3(Clamp01(b.Y))
	// Untergrenze erst nach dem Runden anwenden: Round3(0.0001) wäre sonst
	// wieder exakt 0
	out.W = math.Max(MinBoxSize, Round3(math.Min(1, b.W)))
	out.H = math.Max(MinBoxSize, Round3(math.Min(1, b.H)))

	if b.MaskIoU != nil {
		v := Clamp01(*b.MaskIoU)
		out.MaskIoU = &v
	}

	if !validSources[b.Source] {
		out.Source = "manual"
	}

	return out
}

// NormalizeAll normalisiert eine komplette Arbeitsmenge
func NormalizeAll(boxes []Box) []Box {
	out := make([]Box, len(boxes))
	for i, b := range boxes {
		out[i] = Normalize(b)
	}
	return out
}

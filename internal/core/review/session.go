// Package review verwaltet die Begutachtungs-Sitzungen der Gutachter:
// pro Schadenfall eine Arbeitsmenge von Annotationskandidaten je Foto,
// gespeist aus dem Erkennungsdienst oder bereits gespeicherten
// Annotationen, bis der Gutachter sie explizit speichert.
package review

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"claimsight/internal/core/models"
	"claimsight/internal/core/normalize"
	"claimsight/internal/integrations/damagedetect"
	"claimsight/internal/metrics"
)

// Zustände eines Foto-Slots innerhalb einer Sitzung
const (
	StateUnanalyzed = "unanalyzed"
	StateAnalyzing  = "analyzing"
	StateAnalyzed   = "analyzed"
	StateError      = "error"
)

// Standardgeometrie einer manuell angelegten Box
const (
	manualBoxPos  = 0.1
	manualBoxSize = 0.2
	manualBoxArea = 10.0
)

// ErrClaimNotFound wird gemeldet, wenn der Schadenfall nicht existiert
var ErrClaimNotFound = errors.New("claim not found")

// ErrImageNotFound wird gemeldet, wenn das Foto nicht zur Sitzung gehört
var ErrImageNotFound = errors.New("image not found in session")

// Analyzer ruft den externen Erkennungsdienst auf
type Analyzer interface {
	Analyze(ctx context.Context, imageURL string, params damagedetect.Params) (*damagedetect.AnalyzeResponse, error)
}

// AnnotationStore liest und ersetzt gespeicherte Annotationen
type AnnotationStore interface {
	ListByImage(imageID uint) ([]models.Annotation, error)
	ReplaceForImage(imageID uint, createdBy *uint, boxes []normalize.Box) (int, error)
}

// ClaimSource liefert Schadenfälle samt Fotos
type ClaimSource interface {
	Detail(claimID uint, userID *uint) (*models.ClaimRequest, error)
}

// RunRecorder protokolliert Erkennungsläufe; darf nil sein
type RunRecorder interface {
	Record(run *models.DetectionRun) error
}

// slot ist die Arbeitsmenge eines einzelnen Fotos
type slot struct {
	imageURL string
	side     string
	state    string
	boxes    []damagedetect.Candidate
	errMsg   string
	rerun    bool // erneute Analyse nach Abschluss des laufenden Laufs
}

// Session ist die Begutachtungs-Sitzung eines Schadenfalls. Jeder Slot
// wird unabhängig analysiert; ein fehlgeschlagener Lauf verändert nur den
// eigenen Slot.
type Session struct {
	mu      sync.Mutex
	claimID uint
	level   int
	params  damagedetect.Params
	order   []uint
	slots   map[uint]*slot
	nextID  int
}

// SlotView ist der nach außen sichtbare Zustand eines Foto-Slots
type SlotView struct {
	ImageID     uint                     `json:"image_id"`
	OriginalURL string                   `json:"original_url"`
	Side        string                   `json:"side"`
	State       string                   `json:"state"`
	Boxes       []damagedetect.Candidate `json:"boxes"`
	Error       string                   `json:"error,omitempty"`
}

// SessionView ist der nach außen sichtbare Zustand einer Sitzung
type SessionView struct {
	ClaimID uint                `json:"claim_id"`
	Level   int                 `json:"level"`
	Params  damagedetect.Params `json:"params"`
	Images  []SlotView          `json:"images"`
}

// Manager hält die offenen Sitzungen aller Gutachter im Speicher
type Manager struct {
	mu       sync.Mutex
	sessions map[uint]*Session

	analyzer Analyzer
	store    AnnotationStore
	claims   ClaimSource
	runs     RunRecorder
	base     damagedetect.Params
}

// NewManager erstellt einen Sitzungs-Manager
func NewManager(analyzer Analyzer, store AnnotationStore, claims ClaimSource, runs RunRecorder, base damagedetect.Params) *Manager {
	return &Manager{
		sessions: make(map[uint]*Session),
		analyzer: analyzer,
		store:    store,
		claims:   claims,
		runs:     runs,
		base:     base,
	}
}

// Open öffnet (oder reaktiviert) die Sitzung eines Schadenfalls. Fotos mit
// bereits gespeicherten Annotationen starten mit diesen als Arbeitsmenge;
// das erste noch unanalysierte Foto ohne gespeicherten Stand wird sofort
// im Hintergrund analysiert.
func (m *Manager) Open(ctx context.Context, claimID uint) (*SessionView, error) {
	s, err := m.session(claimID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	var analyzeID uint
	for _, imageID := range s.order {
		sl := s.slots[imageID]
		if sl.state != StateUnanalyzed {
			continue
		}
		saved, err := m.store.ListByImage(imageID)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		if len(saved) > 0 {
			sl.boxes = s.candidatesFromSaved(saved)
			sl.state = StateAnalyzed
		} else if analyzeID == 0 {
			analyzeID = imageID
		}
	}
	params := s.params
	s.mu.Unlock()

	if analyzeID != 0 {
		m.startAnalysis(s, analyzeID, params)
	}
	return m.View(claimID)
}

// View liefert den aktuellen Sitzungszustand
func (m *Manager) View(claimID uint) (*SessionView, error) {
	s, err := m.session(claimID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked(), nil
}

// Analyze stößt die Analyse eines Fotos an. Ohne force wird ein bereits
// analysierter oder gerade laufender Slot nicht erneut angefasst; mit force
// wird immer neu analysiert, bei laufender Analyse nach deren Abschluss.
func (m *Manager) Analyze(claimID, imageID uint, force bool) (*SessionView, error) {
	s, err := m.session(claimID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	sl, ok := s.slots[imageID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrImageNotFound
	}
	start := sl.state == StateUnanalyzed || sl.state == StateError || force
	params := s.params
	s.mu.Unlock()

	if start {
		m.startAnalysis(s, imageID, params)
	}
	return m.View(claimID)
}

// SetLevel setzt das Analyse-Level der Sitzung und analysiert das aktive
// Foto mit den neuen Schwellen erneut. Die übrigen Slots behalten ihren
// Stand, bis sie selbst erneut analysiert werden.
func (m *Manager) SetLevel(claimID uint, level int, activeImageID uint) (*SessionView, error) {
	s, err := m.session(claimID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if _, ok := s.slots[activeImageID]; !ok {
		s.mu.Unlock()
		return nil, ErrImageNotFound
	}
	s.level = level
	s.params = damagedetect.ParamsFromLevel(level, m.base)
	params := s.params
	s.mu.Unlock()

	m.startAnalysis(s, activeImageID, params)
	return m.View(claimID)
}

// AddBox fügt der Arbeitsmenge eines Fotos eine manuell gezeichnete Box
// mit Standardgeometrie hinzu
func (m *Manager) AddBox(claimID, imageID uint) (*SessionView, error) {
	s, err := m.session(claimID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	sl, ok := s.slots[imageID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrImageNotFound
	}
	area := manualBoxArea
	s.nextID++
	sl.boxes = append(sl.boxes, damagedetect.Candidate{
		Box: normalize.Normalize(normalize.Box{
			PartName:    "",
			DamageName:  "-",
			Severity:    "A",
			AreaPercent: &area,
			X:           manualBoxPos,
			Y:           manualBoxPos,
			W:           manualBoxSize,
			H:           manualBoxSize,
			Source:      models.SourceManual,
		}),
		ID:    s.nextID,
		Color: "#F59E0B",
	})
	if sl.state == StateUnanalyzed {
		sl.state = StateAnalyzed
	}
	s.mu.Unlock()

	return m.View(claimID)
}

// SetBoxes ersetzt die Arbeitsmenge eines Fotos durch die vom Gutachter
// bearbeiteten Boxen, ohne sie zu speichern
func (m *Manager) SetBoxes(claimID, imageID uint, boxes []damagedetect.Candidate) (*SessionView, error) {
	s, err := m.session(claimID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	sl, ok := s.slots[imageID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrImageNotFound
	}
	for i := range boxes {
		boxes[i].Box = normalize.Normalize(boxes[i].Box)
	}
	sl.boxes = boxes
	if sl.state == StateUnanalyzed {
		sl.state = StateAnalyzed
	}
	s.mu.Unlock()

	return m.View(claimID)
}

// Save persistiert die Arbeitsmenge eines Fotos als neue Annotationsmenge
// und liefert die Anzahl gespeicherter Zeilen
func (m *Manager) Save(claimID, imageID uint, createdBy *uint) (int, error) {
	s, err := m.session(claimID)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	sl, ok := s.slots[imageID]
	if !ok {
		s.mu.Unlock()
		return 0, ErrImageNotFound
	}
	boxes := make([]normalize.Box, len(sl.boxes))
	for i, c := range sl.boxes {
		boxes[i] = c.Box
	}
	s.mu.Unlock()

	saved, err := m.store.ReplaceForImage(imageID, createdBy, boxes)
	if err != nil {
		return 0, err
	}
	metrics.AnnotationsSaved.Add(float64(saved))
	return saved, nil
}

// Close verwirft die Sitzung eines Schadenfalls
func (m *Manager) Close(claimID uint) {
	m.mu.Lock()
	delete(m.sessions, claimID)
	m.mu.Unlock()
}

// session liefert die bestehende Sitzung oder baut sie aus dem
// Datenbankstand des Schadenfalls auf
func (m *Manager) session(claimID uint) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[claimID]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	claim, err := m.claims.Detail(claimID, nil)
	if err != nil {
		return nil, err
	}
	if claim == nil {
		return nil, ErrClaimNotFound
	}

	s := &Session{
		claimID: claimID,
		level:   50,
		params:  m.base,
		slots:   make(map[uint]*slot),
	}
	for _, img := range claim.Images {
		s.order = append(s.order, img.ID)
		s.slots[img.ID] = &slot{
			imageURL: img.OriginalURL,
			side:     img.Side,
			state:    StateUnanalyzed,
			boxes:    make([]damagedetect.Candidate, 0),
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[claimID]; ok {
		return existing, nil
	}
	m.sessions[claimID] = s
	return s, nil
}

// startAnalysis startet den Erkennungslauf eines Slots im Hintergrund.
// Das Ergebnis wird ausschließlich in diesen Slot geschrieben. Läuft für
// den Slot bereits eine Analyse, wird nach deren Abschluss mit den dann
// aktuellen Parametern erneut analysiert.
func (m *Manager) startAnalysis(s *Session, imageID uint, params damagedetect.Params) {
	s.mu.Lock()
	sl, ok := s.slots[imageID]
	if !ok {
		s.mu.Unlock()
		return
	}
	if sl.state == StateAnalyzing {
		sl.rerun = true
		s.mu.Unlock()
		return
	}
	sl.state = StateAnalyzing
	sl.errMsg = ""
	imageURL := sl.imageURL
	s.mu.Unlock()

	go func() {
		start := time.Now()
		resp, err := m.analyzer.Analyze(context.Background(), imageURL, params)
		duration := time.Since(start)
		metrics.AnalysisDuration.Observe(duration.Seconds())

		var rerun bool
		var rerunParams damagedetect.Params
		s.mu.Lock()
		sl, still := s.slots[imageID]
		if still {
			if err != nil {
				sl.state = StateError
				sl.errMsg = err.Error()
			} else {
				candidates := damagedetect.CandidatesFrom(resp)
				for i := range candidates {
					s.nextID++
					candidates[i].ID = s.nextID
				}
				sl.boxes = candidates
				sl.state = StateAnalyzed
			}
			if sl.rerun {
				sl.rerun = false
				rerun = true
				rerunParams = s.params
			}
		}
		s.mu.Unlock()

		if err != nil {
			metrics.AnalysisRuns.WithLabelValues("error").Inc()
			log.Warnf("Analysis failed for image %d: %v", imageID, err)
		} else {
			metrics.AnalysisRuns.WithLabelValues("ok").Inc()
			log.Debugf("Analysis finished for image %d in %s", imageID, duration)
		}

		m.recordRun(imageID, params, resp, duration, err)

		if rerun {
			m.startAnalysis(s, imageID, rerunParams)
		}
	}()
}

// recordRun protokolliert den Erkennungslauf in der Datenbank
func (m *Manager) recordRun(imageID uint, params damagedetect.Params, resp *damagedetect.AnalyzeResponse, duration time.Duration, runErr error) {
	if m.runs == nil {
		return
	}

	paramsJSON, _ := json.Marshal(params)
	run := &models.DetectionRun{
		RunID:             uuid.New().String(),
		EvaluationImageID: imageID,
		Params:            paramsJSON,
		DurationMs:        duration.Milliseconds(),
		OK:                runErr == nil,
	}
	if runErr != nil {
		run.ErrorMessage = runErr.Error()
	}
	if resp != nil {
		// Overlay-Daten nicht mitschreiben, die Rohantwort kann sonst
		// mehrere Megabyte groß werden
		trimmed := *resp
		trimmed.OverlayImageB64 = ""
		if respJSON, err := json.Marshal(trimmed); err == nil {
			run.Response = respJSON
		}
	}

	if err := m.runs.Record(run); err != nil {
		log.Errorf("Failed to record detection run for image %d: %v", imageID, err)
	}
}

// candidatesFromSaved macht gespeicherte Annotationen wieder zur
// Arbeitsmenge eines Slots
func (s *Session) candidatesFromSaved(saved []models.Annotation) []damagedetect.Candidate {
	out := make([]damagedetect.Candidate, 0, len(saved))
	for _, a := range saved {
		var area *float64
		if a.AreaPercent != nil {
			v := float64(*a.AreaPercent)
			area = &v
		}
		s.nextID++
		out = append(out, damagedetect.Candidate{
			Box: normalize.Box{
				PartName:    a.PartName,
				DamageName:  a.DamageName,
				Severity:    a.Severity,
				AreaPercent: area,
				X:           a.X,
				Y:           a.Y,
				W:           a.W,
				H:           a.H,
				Confidence:  a.Confidence,
				MaskIoU:     a.MaskIoU,
				Source:      a.Source,
			},
			ID:    s.nextID,
			Color: "#F59E0B",
		})
	}
	return out
}

// viewLocked erstellt eine Momentaufnahme; der Aufrufer hält s.mu
func (s *Session) viewLocked() *SessionView {
	view := &SessionView{
		ClaimID: s.claimID,
		Level:   s.level,
		Params:  s.params,
		Images:  make([]SlotView, 0, len(s.order)),
	}
	for _, imageID := range s.order {
		sl := s.slots[imageID]
		boxes := make([]damagedetect.Candidate, len(sl.boxes))
		copy(boxes, sl.boxes)
		view.Images = append(view.Images, SlotView{
			ImageID:     imageID,
			OriginalURL: sl.imageURL,
			Side:        sl.side,
			State:       sl.state,
			Boxes:       boxes,
			Error:       sl.errMsg,
		})
	}
	return view
}

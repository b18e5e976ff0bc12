// Package damagedetect kapselt die Anbindung des externen
// Schadenserkennungs-Dienstes: Parameterübergabe, Multipart-Upload des
// Fotos und Umwandlung der Rohantwort in Annotationskandidaten.
package damagedetect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"claimsight/config"
	"claimsight/internal/core/normalize"
)

// Farbpalette für Annotationskandidaten; wird zyklisch vergeben
var palette = []string{"#F59E0B", "#EF4444", "#8B5CF6", "#10B981", "#3B82F6", "#06B6D4", "#84CC16"}

// Params sind die Analyse-Parameter eines Erkennungslaufs
type Params struct {
	ConfParts     float64 `json:"conf_parts"`
	ConfDamage    float64 `json:"conf_damage"`
	ImgSize       int     `json:"imgsz"`
	MaskIoUThresh float64 `json:"mask_iou_thresh"`
	RenderOverlay bool    `json:"render_overlay"`
}

// Damage ist eine erkannte Schadensklasse innerhalb eines Fahrzeugteils
type Damage struct {
	Class      string   `json:"class"`
	Confidence float64  `json:"confidence"`
	MaskIoU    *float64 `json:"mask_iou"`
}

// Part ist ein erkanntes Fahrzeugteil mit Bounding-Box in Pixelkoordinaten
// als Eckpunkte (x1, y1, x2, y2 bezogen auf das Originalbild)
type Part struct {
	Part    string     `json:"part"`
	BBox    [4]float64 `json:"bbox"`
	Damages []Damage   `json:"damages"`
}

// AnalyzeResponse ist die Rohantwort des Erkennungsdienstes
type AnalyzeResponse struct {
	OK              bool   `json:"ok"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	Parts           []Part `json:"parts"`
	OverlayImageB64 string `json:"overlay_image_b64,omitempty"`
	OverlayMime     string `json:"overlay_mime,omitempty"`
	Message         string `json:"message,omitempty"`
}

// Candidate ist ein Annotationskandidat für die Gutachter-Ansicht: eine
// normalisierte Box plus Anzeige-Attribute
type Candidate struct {
	normalize.Box
	ID    int    `json:"id"`
	Color string `json:"color"`
}

// Client ist der HTTP-Client für den Erkennungsdienst
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient erstellt einen Client aus der Konfiguration
func NewClient(cfg config.DetectConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// DefaultParams liefert die konfigurierten Standard-Analyseparameter
func DefaultParams(cfg config.DetectConfig) Params {
	return Params{
		ConfParts:     cfg.ConfParts,
		ConfDamage:    cfg.ConfDamage,
		ImgSize:       cfg.ImgSize,
		MaskIoUThresh: cfg.MaskIoUThresh,
		RenderOverlay: cfg.RenderOverlay,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ParamsFromLevel leitet aus einem Analyse-Level (0..100) die beiden
// Konfidenz-Schwellenwerte ab. Höhere Level bedeuten niedrigere Schwellen
// und damit mehr gefundene Boxen.
func ParamsFromLevel(level int, base Params) Params {
	t := math.Max(0, math.Min(100, float64(level))) / 100
	out := base
	out.ConfParts = round2(0.6 - 0.4*t)
	out.ConfDamage = round2(0.5 - 0.35*t)
	return out
}

// Analyze lädt das Schadenfoto herunter und schickt es per Multipart-Upload
// an den Erkennungsdienst. Jeder Fehler (Download, Transport, Nicht-2xx,
// unbrauchbares JSON, ok=false) wird als Fehler gemeldet, nie als leeres
// Ergebnis.
func (c *Client) Analyze(ctx context.Context, imageURL string, params Params) (*AnalyzeResponse, error) {
	imageData, err := c.fetchImage(ctx, imageURL)
	if err != nil {
		return nil, fmt.Errorf("error fetching image: %w", err)
	}

	endpoint, err := url.JoinPath(c.baseURL, "/detect/analyze")
	if err != nil {
		return nil, fmt.Errorf("error building detection URL: %w", err)
	}
	q := url.Values{}
	q.Set("conf_parts", strconv.FormatFloat(params.ConfParts, 'f', -1, 64))
	q.Set("conf_damage", strconv.FormatFloat(params.ConfDamage, 'f', -1, 64))
	q.Set("imgsz", strconv.Itoa(params.ImgSize))
	q.Set("mask_iou_thresh", strconv.FormatFloat(params.MaskIoUThresh, 'f', -1, 64))
	q.Set("render_overlay", strconv.FormatBool(params.RenderOverlay))
	endpoint += "?" + q.Encode()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "image.jpg")
	if err != nil {
		return nil, fmt.Errorf("error creating form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("error writing image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("error closing multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	log.Debugf("Sending analysis request to %s (conf_parts=%.2f, conf_damage=%.2f)",
		c.baseURL, params.ConfParts, params.ConfDamage)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request to detection service: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("detection service returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result AnalyzeResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("error parsing detection response: %w", err)
	}
	if !result.OK {
		msg := result.Message
		if msg == "" {
			msg = "analysis failed"
		}
		return nil, fmt.Errorf("detection service reported failure: %s", msg)
	}

	return &result, nil
}

// fetchImage lädt die Bilddaten von der (meist externen) Bild-URL
func (c *Client) fetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating image request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error downloading image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("image host returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// CandidatesFrom übersetzt die Rohantwort in normalisierte
// Annotationskandidaten. Pixelkoordinaten werden über die Bildmaße auf
// [0,1] skaliert; die Konfidenz eines Kandidaten ist die höchste Konfidenz
// seiner Schadensklassen (nil, wenn keine erkannt wurden).
func CandidatesFrom(resp *AnalyzeResponse) []Candidate {
	candidates := make([]Candidate, 0, len(resp.Parts))
	if resp.Width <= 0 || resp.Height <= 0 {
		return candidates
	}
	imgW := float64(resp.Width)
	imgH := float64(resp.Height)

	for i, p := range resp.Parts {
		// bbox liefert Eckpunkte, keine Abmessungen
		boxW := p.BBox[2] - p.BBox[0]
		boxH := p.BBox[3] - p.BBox[1]
		x := p.BBox[0] / imgW
		y := p.BBox[1] / imgH
		w := boxW / imgW
		h := boxH / imgH

		damageNames := ""
		var confidence *float64
		var maskIoU *float64
		for _, d := range p.Damages {
			if damageNames != "" {
				damageNames += ", "
			}
			damageNames += d.Class
			if confidence == nil || d.Confidence > *confidence {
				v := d.Confidence
				confidence = &v
			}
			if maskIoU == nil && d.MaskIoU != nil {
				maskIoU = d.MaskIoU
			}
		}
		if damageNames == "" {
			damageNames = "-"
		}

		area := math.Round(100 * (boxW * boxH) / (imgW * imgH))
		area = math.Max(0, math.Min(100, area))

		box := normalize.Normalize(normalize.Box{
			PartName:    p.Part,
			DamageName:  damageNames,
			Severity:    "A",
			AreaPercent: &area,
			X:           x,
			Y:           y,
			W:           w,
			H:           h,
			Confidence:  confidence,
			MaskIoU:     maskIoU,
			Source:      "model",
		})

		candidates = append(candidates, Candidate{
			Box:   box,
			ID:    i + 1,
			Color: palette[i%len(palette)],
		})
	}
	return candidates
}

package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"claimsight/config"
	"claimsight/internal/api/middleware"
	"claimsight/internal/core/models"
	"claimsight/internal/core/review"
	"claimsight/internal/db"
	"claimsight/internal/db/repository"
	"claimsight/internal/integrations/damagedetect"
	"claimsight/internal/integrations/mqtt"
)

func itoa(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}

// setupRouter baut den kompletten API-Stack mit frischer Datenbank auf
func setupRouter(t *testing.T, detectURL string) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.Initialize(config.DBConfig{
		File: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)

	cfg := &config.Config{
		Detect: config.DetectConfig{
			BaseURL:        detectURL,
			TimeoutSeconds: 5,
			ConfParts:      0.5,
			ConfDamage:     0.25,
			ImgSize:        640,
			MaskIoUThresh:  0.1,
		},
		I18n: config.I18nConfig{
			DefaultLanguage: "en",
			LocalesDir:      "../../../web/locales",
		},
	}

	annotations := repository.NewAnnotationRepository(conn)
	claims := repository.NewClaimRepository(conn)
	policies := repository.NewPolicyRepository(conn)
	runs := repository.NewDetectionRunRepository(conn)
	detector := damagedetect.NewClient(cfg.Detect)
	reviews := review.NewManager(detector, annotations, claims, runs, damagedetect.DefaultParams(cfg.Detect))
	publisher, err := mqtt.NewPublisher(config.MQTTConfig{Enabled: false})
	require.NoError(t, err)

	router := gin.New()
	router.Use(middleware.I18n(cfg.I18n))
	NewAPIHandler(cfg, annotations, claims, policies, runs, reviews, publisher).
		RegisterRoutes(router.Group("/api"))
	return router, conn
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var parsed map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed))
	}
	return w, parsed
}

func seedImage(t *testing.T, conn *gorm.DB) (uint, uint) {
	t.Helper()
	claim := models.ClaimRequest{Status: models.ClaimStatusPending}
	require.NoError(t, conn.Create(&claim).Error)
	img := models.EvaluationImage{ClaimID: claim.ID, OriginalURL: "https://cdn.example.com/1.jpg", Side: "front"}
	require.NoError(t, conn.Create(&img).Error)
	return claim.ID, img.ID
}

func submitBody() map[string]interface{} {
	return map[string]interface{}{
		"user_id":         1,
		"selected_car_id": 3,
		"agreed":          true,
		"accident": map[string]interface{}{
			"accident_type": "collision",
			"date":          "2026-08-20",
			"time":          "14:30",
			"area_type":     "highway",
			"location":      map[string]interface{}{"lat": 13.7563, "lng": 100.5018},
			"damage_photos": []map[string]interface{}{
				{"url": "https://cdn.example.com/front.jpg", "side": "front"},
			},
		},
	}
}

func TestSaveAndListAnnotations(t *testing.T) {
	router, conn := setupRouter(t, "")
	claimID, imageID := seedImage(t, conn)

	w, resp := doJSON(t, router, http.MethodPost, "/api/image-annotations/save", map[string]interface{}{
		"image_id": imageID,
		"annotations": []map[string]interface{}{
			{"part_name": "front bumper", "damage_name": "dent", "severity": "B", "x": 0.1, "y": 0.2, "w": 0.3, "h": 0.4},
			{"part_name": "hood", "x": 1.5, "y": -0.2, "w": 0, "h": 0.5},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, true, resp["ok"])
	assert.Equal(t, float64(2), resp["saved"])

	w, resp = doJSON(t, router, http.MethodGet, "/api/image-annotations/by-image?image_id="+itoa(imageID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := resp["data"].([]interface{})
	require.Len(t, data, 2)
	second := data[1].(map[string]interface{})
	assert.Equal(t, 1.0, second["x"])
	assert.Equal(t, 0.0001, second["w"])

	w, resp = doJSON(t, router, http.MethodGet, "/api/image-annotations/by-claim?claim_id="+itoa(claimID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	byClaim := resp["data"].([]interface{})
	require.Len(t, byClaim, 2)
	first := byClaim[0].(map[string]interface{})
	assert.Equal(t, "https://cdn.example.com/1.jpg", first["original_url"])
	assert.Equal(t, "front", first["side"])
}

func TestAnnotationValidationErrors(t *testing.T) {
	router, _ := setupRouter(t, "")

	w, resp := doJSON(t, router, http.MethodGet, "/api/image-annotations/by-image", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, resp["ok"])
	assert.Equal(t, "image_id required", resp["message"])

	w, resp = doJSON(t, router, http.MethodGet, "/api/image-annotations/by-claim", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "claim_id required", resp["message"])

	w, resp = doJSON(t, router, http.MethodPost, "/api/image-annotations/save", map[string]interface{}{
		"annotations": []map[string]interface{}{},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "image_id required", resp["message"])

	w, resp = doJSON(t, router, http.MethodPatch, "/api/image-annotations/abc", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "id required", resp["message"])
}

func TestLocalizedErrorMessage(t *testing.T) {
	router, _ := setupRouter(t, "")

	req := httptest.NewRequest(http.MethodGet, "/api/image-annotations/by-image?lang=th", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ต้องระบุ image_id", resp["message"])
}

func TestUpdateAndDeleteAnnotation(t *testing.T) {
	router, conn := setupRouter(t, "")
	_, imageID := seedImage(t, conn)

	_, resp := doJSON(t, router, http.MethodPost, "/api/image-annotations/save", map[string]interface{}{
		"image_id": imageID,
		"annotations": []map[string]interface{}{
			{"part_name": "door", "x": 0.1, "y": 0.1, "w": 0.2, "h": 0.2},
		},
	})
	require.Equal(t, true, resp["ok"])

	var row models.Annotation
	require.NoError(t, conn.First(&row).Error)

	w, resp := doJSON(t, router, http.MethodPatch, "/api/image-annotations/"+itoa(row.ID), map[string]interface{}{
		"part_name": "rear door", "severity": "C", "x": 0.1, "y": 0.1, "w": 0.2, "h": 0.2,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), resp["affected"])

	w, resp = doJSON(t, router, http.MethodDelete, "/api/image-annotations/99999", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), resp["affected"])
}

func TestSubmitListDetailClaim(t *testing.T) {
	router, _ := setupRouter(t, "")

	w, resp := doJSON(t, router, http.MethodPost, "/api/claim-requests/submit", submitBody())
	require.Equal(t, http.StatusCreated, w.Code)
	data := resp["data"].(map[string]interface{})
	claimID := data["claim_id"].(float64)
	assert.Equal(t, float64(1), data["inserted_images"])

	w, resp = doJSON(t, router, http.MethodPost, "/api/claim-requests/submit", map[string]interface{}{
		"selected_car_id": 3,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "accident details required", resp["message"])

	w, resp = doJSON(t, router, http.MethodGet, "/api/claim-requests/list?user_id=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp["data"].([]interface{}), 1)

	w, resp = doJSON(t, router, http.MethodGet, "/api/claim-requests/listall", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp["data"].([]interface{}), 1)

	w, resp = doJSON(t, router, http.MethodGet, "/api/claim-requests/detail?claim_id="+itoa(uint(claimID)), nil)
	require.Equal(t, http.StatusOK, w.Code)
	claim := resp["claim"].(map[string]interface{})
	assert.Equal(t, "pending", claim["status"])
	assert.Len(t, claim["images"].([]interface{}), 1)

	w, resp = doJSON(t, router, http.MethodGet, "/api/claim-requests/detail?claim_id=999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "claim not found", resp["message"])

	w, resp = doJSON(t, router, http.MethodGet, "/api/claim-requests/detail", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "claim_id required", resp["message"])
}

func TestUpdateClaimStatusEndpoint(t *testing.T) {
	router, _ := setupRouter(t, "")

	_, resp := doJSON(t, router, http.MethodPost, "/api/claim-requests/submit", submitBody())
	claimID := uint(resp["data"].(map[string]interface{})["claim_id"].(float64))

	w, resp := doJSON(t, router, http.MethodPatch, "/api/claim-requests/"+itoa(claimID), map[string]interface{}{
		"status": "archived",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid status", resp["message"])

	w, resp = doJSON(t, router, http.MethodPatch, "/api/claim-requests/"+itoa(claimID), map[string]interface{}{
		"status": "approved", "admin_note": "ok",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), resp["affected"])

	w, resp = doJSON(t, router, http.MethodPatch, "/api/claim-requests/9999", map[string]interface{}{
		"status": "approved",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "claim not found", resp["message"])
}

func TestPoliciesEndpoint(t *testing.T) {
	router, conn := setupRouter(t, "")

	w, resp := doJSON(t, router, http.MethodGet, "/api/policies/0000000000000", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not found", resp["message"])

	require.NoError(t, conn.Create(&models.InsurancePolicy{
		CitizenID: "1103700000001", CarBrand: "Toyota", PolicyNumber: "POL-001",
	}).Error)

	w, resp = doJSON(t, router, http.MethodGet, "/api/policies/1103700000001", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp["data"].([]interface{}), 1)
}

func TestReviewFlow(t *testing.T) {
	imageHost := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake-jpeg-bytes"))
	}))
	defer imageHost.Close()
	detect := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok": true, "width": 1000, "height": 1000,
			"parts": [{"part": "front bumper", "bbox": [100, 100, 200, 200],
			           "damages": [{"class": "dent", "confidence": 0.8}]}]}`))
	}))
	defer detect.Close()

	router, conn := setupRouter(t, detect.URL)

	claim := models.ClaimRequest{Status: models.ClaimStatusPending}
	require.NoError(t, conn.Create(&claim).Error)
	img := models.EvaluationImage{ClaimID: claim.ID, OriginalURL: imageHost.URL + "/car.jpg", Side: "front"}
	require.NoError(t, conn.Create(&img).Error)

	w, resp := doJSON(t, router, http.MethodPost, "/api/review/999/open", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "claim not found", resp["message"])

	w, resp = doJSON(t, router, http.MethodPost, "/api/review/"+itoa(claim.ID)+"/open", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := resp["data"].(map[string]interface{})
	require.Len(t, view["images"].([]interface{}), 1)

	// auf das Ende der Hintergrund-Analyse warten
	require.Eventually(t, func() bool {
		_, resp := doJSON(t, router, http.MethodGet, "/api/review/"+itoa(claim.ID)+"/state", nil)
		images := resp["data"].(map[string]interface{})["images"].([]interface{})
		return images[0].(map[string]interface{})["state"] == "analyzed"
	}, 5*time.Second, 50*time.Millisecond)

	w, resp = doJSON(t, router, http.MethodPost, "/api/review/"+itoa(claim.ID)+"/boxes", map[string]interface{}{
		"image_id": img.ID, "add_box": true,
	})
	require.Equal(t, http.StatusOK, w.Code)
	images := resp["data"].(map[string]interface{})["images"].([]interface{})
	boxes := images[0].(map[string]interface{})["boxes"].([]interface{})
	require.Len(t, boxes, 2)

	w, resp = doJSON(t, router, http.MethodPost, "/api/review/"+itoa(claim.ID)+"/save", map[string]interface{}{
		"image_id": img.ID,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, float64(2), resp["saved"])

	// der gespeicherte Stand ist über die Annotations-API sichtbar
	w, resp = doJSON(t, router, http.MethodGet, "/api/image-annotations/by-image?image_id="+itoa(img.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp["data"].([]interface{}), 2)

	// Erkennungsläufe wurden protokolliert
	var runCount int64
	require.NoError(t, conn.Model(&models.DetectionRun{}).Count(&runCount).Error)
	assert.GreaterOrEqual(t, runCount, int64(1))
}

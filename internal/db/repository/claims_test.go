package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claimsight/internal/core/models"
)

func strPtr(s string) *string { return &s }
func uintPtr(v uint) *uint    { return &v }

func submitInput(userID uint) SubmitInput {
	acc := &AccidentDraft{
		AccidentType: "collision",
		Date:         "2026-08-20",
		Time:         "14:30",
		Province:     strPtr("Bangkok"),
		AreaType:     "highway",
		DamagePhotos: []DamagePhoto{
			{URL: "https://cdn.example.com/front.jpg", Side: "front"},
			{URL: "https://cdn.example.com/left.jpg", Side: "left"},
			{URL: ""}, // wird übersprungen
		},
		EvidenceMedia: []MediaItem{
			{URL: "https://cdn.example.com/dashcam.mp4", Type: "video"},
		},
	}
	acc.Location.Lat = 13.7563
	acc.Location.Lng = 100.5018
	return SubmitInput{
		UserID:        uintPtr(userID),
		SelectedCarID: 1,
		Accident:      acc,
		Agreed:        true,
	}
}

func TestSubmitCreatesClaimWithImages(t *testing.T) {
	conn := setupDB(t)
	repo := NewClaimRepository(conn)

	result, err := repo.Submit(submitInput(7))
	require.NoError(t, err)
	assert.NotZero(t, result.ClaimID)
	assert.NotZero(t, result.AccidentDetailID)
	assert.Equal(t, 2, result.InsertedImages)

	claim, err := repo.Detail(result.ClaimID, nil)
	require.NoError(t, err)
	require.NotNil(t, claim)
	assert.Equal(t, models.ClaimStatusPending, claim.Status)
	require.NotNil(t, claim.AccidentDetail)
	assert.Equal(t, "14:30:00", claim.AccidentDetail.AccidentTime)
	assert.Equal(t, "https://cdn.example.com/dashcam.mp4", *claim.AccidentDetail.FileURL)
	require.Len(t, claim.Images, 2)
	assert.Equal(t, "front", claim.Images[0].Side)
}

func TestSubmitNormalizesBadTime(t *testing.T) {
	conn := setupDB(t)
	repo := NewClaimRepository(conn)

	in := submitInput(7)
	in.Accident.Time = "half past two"
	result, err := repo.Submit(in)
	require.NoError(t, err)

	claim, err := repo.Detail(result.ClaimID, nil)
	require.NoError(t, err)
	assert.Equal(t, "00:00:00", claim.AccidentDetail.AccidentTime)
}

func TestSubmitRequiresAccident(t *testing.T) {
	conn := setupDB(t)
	repo := NewClaimRepository(conn)

	_, err := repo.Submit(SubmitInput{SelectedCarID: 1})
	require.Error(t, err)
}

func TestListFiltersByUserAndCapsLimit(t *testing.T) {
	conn := setupDB(t)
	repo := NewClaimRepository(conn)

	for i := 0; i < 3; i++ {
		_, err := repo.Submit(submitInput(1))
		require.NoError(t, err)
	}
	_, err := repo.Submit(submitInput(2))
	require.NoError(t, err)

	mine, err := repo.List(uintPtr(1), 0)
	require.NoError(t, err)
	assert.Len(t, mine, 3)

	all, err := repo.List(nil, 500)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	capped, err := repo.List(nil, 2)
	require.NoError(t, err)
	assert.Len(t, capped, 2)
}

func TestDetailDistinguishesNotFound(t *testing.T) {
	conn := setupDB(t)
	repo := NewClaimRepository(conn)

	claim, err := repo.Detail(42, nil)
	require.NoError(t, err)
	assert.Nil(t, claim)

	result, err := repo.Submit(submitInput(1))
	require.NoError(t, err)

	// fremder Nutzer sieht den Fall nicht
	claim, err = repo.Detail(result.ClaimID, uintPtr(99))
	require.NoError(t, err)
	assert.Nil(t, claim)
}

func TestUpdateStatus(t *testing.T) {
	conn := setupDB(t)
	repo := NewClaimRepository(conn)

	result, err := repo.Submit(submitInput(1))
	require.NoError(t, err)

	affected, err := repo.UpdateStatus(result.ClaimID, StatusUpdate{
		Status:    strPtr(models.ClaimStatusApproved),
		AdminNote: strPtr("looks fine"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	claim, err := repo.Detail(result.ClaimID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ClaimStatusApproved, claim.Status)
	require.NotNil(t, claim.AdminNote)
	assert.Equal(t, "looks fine", *claim.AdminNote)

	// nil-Felder bleiben unverändert
	affected, err = repo.UpdateStatus(result.ClaimID, StatusUpdate{
		Status: strPtr(models.ClaimStatusRejected),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	claim, _ = repo.Detail(result.ClaimID, nil)
	assert.Equal(t, "looks fine", *claim.AdminNote)

	affected, err = repo.UpdateStatus(9999, StatusUpdate{Status: strPtr(models.ClaimStatusApproved)})
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)

	_, err = repo.UpdateStatus(result.ClaimID, StatusUpdate{})
	require.Error(t, err)
}

func TestReplaceAccidentDetail(t *testing.T) {
	conn := setupDB(t)
	repo := NewClaimRepository(conn)

	claim, err := repo.Create(uintPtr(1), uintPtr(3))
	require.NoError(t, err)
	assert.Nil(t, claim.AccidentDetailID)

	draft := *submitInput(1).Accident
	detailID, err := repo.ReplaceAccidentDetail(claim.ID, draft, true)
	require.NoError(t, err)
	assert.NotZero(t, detailID)

	loaded, err := repo.Detail(claim.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, loaded.AccidentDetail)
	assert.Equal(t, "collision", loaded.AccidentDetail.AccidentType)

	detailID, err = repo.ReplaceAccidentDetail(9999, draft, true)
	require.NoError(t, err)
	assert.Zero(t, detailID)
}

func TestPoliciesByCitizenID(t *testing.T) {
	conn := setupDB(t)
	repo := NewPolicyRepository(conn)

	require.NoError(t, conn.Create(&models.InsurancePolicy{
		CitizenID: "1103700000001", CarBrand: "Toyota", CarModel: "Vios", PolicyNumber: "POL-001",
	}).Error)
	require.NoError(t, conn.Create(&models.InsurancePolicy{
		CitizenID: "1103700000001", CarBrand: "Honda", CarModel: "City", PolicyNumber: "POL-002",
	}).Error)

	policies, err := repo.ByCitizenID("1103700000001")
	require.NoError(t, err)
	assert.Len(t, policies, 2)

	none, err := repo.ByCitizenID("0000000000000")
	require.NoError(t, err)
	assert.Empty(t, none)
}

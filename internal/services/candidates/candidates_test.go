// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package candidates_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"codeberg.org/oliverandrich/ballot-ledger/internal/models"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/candidates"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/credential"
	"codeberg.org/oliverandrich/ballot-ledger/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) *candidates.Service {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	clock := testutil.NewClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	return candidates.NewService(repo, candidates.WithClock(clock.Now))
}

func TestImportDemo(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Import(ctx, candidates.DemoCandidates()))

	approved, err := svc.Approved(ctx)
	require.NoError(t, err)
	require.Len(t, approved, 4)
	assert.Equal(t, "candidate-1", approved[0].ID)
	assert.Equal(t, "Priya Patel", approved[1].Name)

	c, err := svc.Get(ctx, "candidate-2")
	require.NoError(t, err)
	assert.Equal(t, "Unity Student Front", c.Affiliation)

	_, err = svc.Get(ctx, "candidate-9")
	assert.ErrorIs(t, err, candidates.ErrNotFound)
}

func TestImportWithdrawn(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Import(ctx, candidates.DemoCandidates()))

	cs := []models.Candidate{{ID: "candidate-3", Name: "Amit Kumar", Status: models.CandidateWithdrawn}}
	require.NoError(t, svc.Import(ctx, cs))

	_, err := svc.Get(ctx, "candidate-3")
	assert.ErrorIs(t, err, candidates.ErrNotFound)

	approved, err := svc.Approved(ctx)
	require.NoError(t, err)
	assert.Len(t, approved, 3)
}

func TestImportRejectsInvalid(t *testing.T) {
	svc := newService(t)

	err := svc.Import(context.Background(), []models.Candidate{{ID: "x"}})
	require.Error(t, err)

	err = svc.Import(context.Background(), []models.Candidate{{ID: "x", Name: "X", Status: "maybe"}})
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candidates.toml")
	feed := `
[[candidates]]
id = "c-1"
name = "First Person"
affiliation = "Independent"
platform = "Clean water"

[[candidates]]
id = "c-2"
name = "Second Person"
status = "withdrawn"
`
	require.NoError(t, os.WriteFile(path, []byte(feed), 0o600))

	cs, err := candidates.LoadFile(path)
	require.NoError(t, err)
	require.Len(t, cs, 2)
	assert.Equal(t, "First Person", cs[0].Name)
	assert.Equal(t, models.CandidateWithdrawn, cs[1].Status)

	_, err = candidates.LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func validApplication() candidates.ApplicationParams {
	return candidates.ApplicationParams{
		FullName:     "Kiran Desai",
		DateOfBirth:  "1990-02-02",
		Email:        "kiran@example.com",
		Mobile:       "9123456780",
		Constituency: "North Campus",
		VoterID:      "kdz1234567",
		Affiliation:  "Independent",
		Platform:     strings.Repeat("Better libraries and longer opening hours. ", 3),
	}
}

func TestSubmitAndReview(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	app, err := svc.Submit(ctx, validApplication())
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationPending, app.Status)
	assert.Equal(t, "KDZ1234567", app.VoterID)
	assert.Len(t, app.ID, 36)

	_, err = svc.Review(ctx, app.ID, candidates.ActionApprove, "")
	assert.ErrorIs(t, err, candidates.ErrInvalidTransition)

	app, err = svc.Review(ctx, app.ID, candidates.ActionVerify, "")
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationVerified, app.Status)

	app, err = svc.Review(ctx, app.ID, candidates.ActionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationApproved, app.Status)
	require.NotNil(t, app.CandidateID)

	c, err := svc.Get(ctx, *app.CandidateID)
	require.NoError(t, err)
	assert.Equal(t, "Kiran Desai", c.Name)

	_, err = svc.Review(ctx, app.ID, candidates.ActionReject, "too late")
	assert.ErrorIs(t, err, candidates.ErrInvalidTransition)
}

func TestReviewReject(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	app, err := svc.Submit(ctx, validApplication())
	require.NoError(t, err)

	app, err = svc.Review(ctx, app.ID, candidates.ActionReject, "incomplete documents")
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationRejected, app.Status)
	assert.Equal(t, "incomplete documents", app.Reason)

	rejected, err := svc.ListApplications(ctx, models.ApplicationRejected)
	require.NoError(t, err)
	assert.Len(t, rejected, 1)

	pending, err := svc.ListApplications(ctx, models.ApplicationPending)
	require.NoError(t, err)
	assert.Empty(t, pending)

	all, err := svc.ListApplications(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestReviewErrors(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Review(ctx, "00000000-0000-0000-0000-000000000000", candidates.ActionVerify, "")
	assert.ErrorIs(t, err, candidates.ErrNotFound)

	_, err = svc.Review(ctx, "whatever", candidates.Action("promote"), "")
	assert.ErrorIs(t, err, candidates.ErrUnknownAction)
}

func TestSubmitValidation(t *testing.T) {
	svc := newService(t)

	p := validApplication()
	p.DateOfBirth = "2005-01-01"
	p.Platform = "Too short"
	p.VoterID = "123"

	_, err := svc.Submit(context.Background(), p)
	require.ErrorIs(t, err, credential.ErrInvalidFormat)

	var verr *credential.ValidationError
	require.ErrorAs(t, err, &verr)
	codes := make([]string, 0, len(verr.Errors))
	for _, fe := range verr.Errors {
		codes = append(codes, fe.Code)
	}
	assert.ElementsMatch(t, []string{"candidate_underage", "platform_too_short", "invalid_identifier"}, codes)
}

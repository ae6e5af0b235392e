// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package challenge_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"codeberg.org/oliverandrich/ballot-ledger/internal/repository"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/challenge"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/credential"
	"codeberg.org/oliverandrich/ballot-ledger/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const voterID = "ABC1234567"

var testConfig = challenge.Config{
	TTL:            5 * time.Minute,
	ResendCooldown: 60 * time.Second,
	MaxAttempts:    3,
	AttemptWindow:  15 * time.Minute,
	Lockout:        15 * time.Minute,
}

func setup(t *testing.T) (*challenge.Service, *repository.Repository, *testutil.Clock) {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	testutil.NewTestVoter(t, repo, voterID, false)
	clock := testutil.NewClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	svc := challenge.NewService(repo, testutil.Pepper, testConfig, challenge.WithClock(clock.Now))
	return svc, repo, clock
}

// wrongCode returns a six digit code different from code.
func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestIssue(t *testing.T) {
	svc, repo, clock := setup(t)
	ctx := context.Background()

	code, err := svc.Issue(ctx, "abc1234567")
	require.NoError(t, err)
	assert.Len(t, code, challenge.CodeDigits)

	ch, err := repo.GetChallenge(ctx, voterID)
	require.NoError(t, err)
	assert.NotEqual(t, code, ch.CodeHash)
	assert.True(t, ch.ExpiresAt.Equal(clock.Now().Add(5*time.Minute)))
}

func TestIssueErrors(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()

	_, err := svc.Issue(ctx, "XYZ0000000")
	assert.ErrorIs(t, err, challenge.ErrUnknownIdentity)

	_, err = svc.Issue(ctx, "nope")
	assert.ErrorIs(t, err, credential.ErrInvalidFormat)

	testutil.NewTestVoter(t, repo, "DEF7654321", true)
	_, err = svc.Issue(ctx, "DEF7654321")
	assert.ErrorIs(t, err, challenge.ErrAlreadyVerified)
}

func TestIssueReplacesPrevious(t *testing.T) {
	svc, _, clock := setup(t)
	ctx := context.Background()

	first, err := svc.Issue(ctx, voterID)
	require.NoError(t, err)

	_, err = svc.Issue(ctx, voterID)
	assert.ErrorIs(t, err, challenge.ErrResendTooSoon)

	clock.Advance(61 * time.Second)
	second, err := svc.Issue(ctx, voterID)
	require.NoError(t, err)

	if first != second {
		assert.ErrorIs(t, svc.Verify(ctx, voterID, first), challenge.ErrMismatch)
	}
	require.NoError(t, svc.Verify(ctx, voterID, second))
}

func TestVerifySingleUse(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	code, err := svc.Issue(ctx, voterID)
	require.NoError(t, err)

	require.NoError(t, svc.Verify(ctx, voterID, code))
	assert.ErrorIs(t, svc.Verify(ctx, voterID, code), challenge.ErrNoActiveChallenge)
}

func TestVerifyConcurrentSingleUse(t *testing.T) {
	_, repo := testutil.NewFileTestDB(t)
	testutil.NewTestVoter(t, repo, voterID, false)
	svc := challenge.NewService(repo, testutil.Pepper, testConfig)
	ctx := context.Background()

	code, err := svc.Issue(ctx, voterID)
	require.NoError(t, err)

	const n = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := svc.Verify(ctx, voterID, code)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, challenge.ErrNoActiveChallenge) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
}

func TestVerifyConcurrentWrongGuesses(t *testing.T) {
	_, repo := testutil.NewFileTestDB(t)
	testutil.NewTestVoter(t, repo, voterID, false)
	// Two services share one database, like two server processes.
	services := []*challenge.Service{
		challenge.NewService(repo, testutil.Pepper, testConfig),
		challenge.NewService(repo, testutil.Pepper, testConfig),
	}
	ctx := context.Background()

	code, err := services[0].Issue(ctx, voterID)
	require.NoError(t, err)
	bad := wrongCode(code)

	const n = 100
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		mismatched int
		throttled  int
	)
	for i := range n {
		wg.Go(func() {
			err := services[i%2].Verify(ctx, voterID, bad)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, challenge.ErrMismatch):
				mismatched++
			case errors.Is(err, challenge.ErrThrottled):
				throttled++
			default:
				t.Errorf("unexpected result: %v", err)
			}
		})
	}
	wg.Wait()

	assert.Equal(t, testConfig.MaxAttempts-1, mismatched)
	assert.Equal(t, n-testConfig.MaxAttempts+1, throttled)

	l, err := repo.GetLockout(ctx, voterID)
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, testConfig.MaxAttempts, l.FailureCount)

	assert.ErrorIs(t, services[0].Verify(ctx, voterID, code), challenge.ErrThrottled)
}

func TestVerifyExpiry(t *testing.T) {
	svc, repo, clock := setup(t)
	ctx := context.Background()

	code, err := svc.Issue(ctx, voterID)
	require.NoError(t, err)

	clock.Advance(5*time.Minute + time.Second)
	assert.ErrorIs(t, svc.Verify(ctx, voterID, code), challenge.ErrExpired)

	_, err = repo.GetChallenge(ctx, voterID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, svc.Verify(ctx, voterID, code), challenge.ErrNoActiveChallenge)
}

func TestVerifyJustBeforeExpiry(t *testing.T) {
	svc, _, clock := setup(t)
	ctx := context.Background()

	code, err := svc.Issue(ctx, voterID)
	require.NoError(t, err)

	clock.Advance(5*time.Minute - time.Second)
	require.NoError(t, svc.Verify(ctx, voterID, code))
}

func TestVerifyNoChallenge(t *testing.T) {
	svc, _, _ := setup(t)

	assert.ErrorIs(t, svc.Verify(context.Background(), voterID, "123456"), challenge.ErrNoActiveChallenge)
}

func TestVerifyThrottling(t *testing.T) {
	svc, repo, clock := setup(t)
	ctx := context.Background()

	code, err := svc.Issue(ctx, voterID)
	require.NoError(t, err)
	bad := wrongCode(code)

	assert.ErrorIs(t, svc.Verify(ctx, voterID, bad), challenge.ErrMismatch)
	assert.ErrorIs(t, svc.Verify(ctx, voterID, bad), challenge.ErrMismatch)
	assert.ErrorIs(t, svc.Verify(ctx, voterID, bad), challenge.ErrThrottled)

	// The live challenge is destroyed and further attempts are refused.
	_, err = repo.GetChallenge(ctx, voterID)
	require.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, svc.Verify(ctx, voterID, code), challenge.ErrThrottled)
	_, err = svc.Issue(ctx, voterID)
	assert.ErrorIs(t, err, challenge.ErrThrottled)

	clock.Advance(15*time.Minute + time.Second)
	code, err = svc.Issue(ctx, voterID)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Verify(ctx, voterID, wrongCode(code)), challenge.ErrMismatch)
	require.NoError(t, svc.Verify(ctx, voterID, code))

	l, err := repo.GetLockout(ctx, voterID)
	require.NoError(t, err)
	assert.Nil(t, l)
}

func TestVerifyFailureWindowResets(t *testing.T) {
	svc, _, clock := setup(t)
	ctx := context.Background()

	code, err := svc.Issue(ctx, voterID)
	require.NoError(t, err)
	bad := wrongCode(code)

	assert.ErrorIs(t, svc.Verify(ctx, voterID, bad), challenge.ErrMismatch)
	assert.ErrorIs(t, svc.Verify(ctx, voterID, bad), challenge.ErrMismatch)

	clock.Advance(16 * time.Minute)
	code, err = svc.Issue(ctx, voterID)
	require.NoError(t, err)
	bad = wrongCode(code)

	assert.ErrorIs(t, svc.Verify(ctx, voterID, bad), challenge.ErrMismatch)
	assert.ErrorIs(t, svc.Verify(ctx, voterID, bad), challenge.ErrMismatch)
}

func TestPurgeExpired(t *testing.T) {
	svc, repo, clock := setup(t)
	ctx := context.Background()

	_, err := svc.Issue(ctx, voterID)
	require.NoError(t, err)

	challenges, _, err := svc.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, challenges)

	clock.Advance(6 * time.Minute)
	challenges, _, err = svc.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), challenges)

	_, err = repo.GetChallenge(ctx, voterID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

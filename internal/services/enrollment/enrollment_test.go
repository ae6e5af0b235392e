// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package enrollment_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"codeberg.org/oliverandrich/ballot-ledger/internal/repository"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/challenge"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/credential"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/delivery"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/enrollment"
	"codeberg.org/oliverandrich/ballot-ledger/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outbox struct {
	mu    sync.Mutex
	codes map[string]string
	fail  bool
}

func (o *outbox) Deliver(_ context.Context, to delivery.Address, code string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail {
		return errors.New("gateway down")
	}
	if o.codes == nil {
		o.codes = map[string]string{}
	}
	o.codes[to.Email] = code
	return nil
}

func (o *outbox) last(email string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.codes[email]
}

func setup(t *testing.T) (*enrollment.Service, *credential.Service, *repository.Repository, *outbox) {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	h, err := credential.NewHasher(testutil.Pepper, credential.HashParams{Time: 1, Memory: 64, Threads: 1})
	require.NoError(t, err)
	creds := credential.NewService(repo, h)
	challenges := challenge.NewService(repo, testutil.Pepper, challenge.Config{
		TTL:           5 * time.Minute,
		MaxAttempts:   5,
		AttemptWindow: 15 * time.Minute,
		Lockout:       15 * time.Minute,
	})
	box := &outbox{}
	return enrollment.NewService(creds, challenges, box), creds, repo, box
}

func params() credential.RegisterParams {
	return credential.RegisterParams{
		Identifier:  "ABC1234567",
		FullName:    "Asha Rao",
		DateOfBirth: "1995-06-15",
		Mobile:      "9876543210",
		Email:       "asha@example.com",
		Password:    "Secure#Pass1",
	}
}

func TestEnrollAndComplete(t *testing.T) {
	svc, creds, _, box := setup(t)
	ctx := context.Background()

	res, err := svc.Enroll(ctx, params())
	require.NoError(t, err)
	assert.True(t, res.Delivered)
	assert.Equal(t, "a**a@example.com", res.SentTo.Email)
	assert.Equal(t, "******3210", res.SentTo.Mobile)

	code := box.last("asha@example.com")
	require.Len(t, code, 6)

	require.NoError(t, svc.Complete(ctx, "ABC1234567", code))

	voter, err := creds.VerifyCredential(ctx, "ABC1234567", "Secure#Pass1")
	require.NoError(t, err)
	assert.True(t, voter.Verified)

	assert.ErrorIs(t, svc.Complete(ctx, "ABC1234567", code), challenge.ErrNoActiveChallenge)
}

func TestEnrollDeliveryFailureKeepsCode(t *testing.T) {
	svc, _, repo, box := setup(t)
	box.fail = true

	res, err := svc.Enroll(context.Background(), params())
	require.NoError(t, err)
	assert.False(t, res.Delivered)

	_, err = repo.GetChallenge(context.Background(), "ABC1234567")
	require.NoError(t, err)
}

func TestResend(t *testing.T) {
	svc, _, _, box := setup(t)
	ctx := context.Background()

	_, err := svc.Resend(ctx, "ABC1234567")
	assert.ErrorIs(t, err, challenge.ErrUnknownIdentity)

	_, err = svc.Enroll(ctx, params())
	require.NoError(t, err)

	_, err = svc.Resend(ctx, "abc1234567")
	require.NoError(t, err)

	require.NoError(t, svc.Complete(ctx, "ABC1234567", box.last("asha@example.com")))

	_, err = svc.Resend(ctx, "ABC1234567")
	assert.ErrorIs(t, err, challenge.ErrAlreadyVerified)
}

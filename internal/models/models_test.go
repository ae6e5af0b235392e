// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChallengeExpiredAt(t *testing.T) {
	issued := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := &Challenge{IssuedAt: issued, ExpiresAt: issued.Add(5 * time.Minute)}

	assert.False(t, c.ExpiredAt(issued))
	assert.False(t, c.ExpiredAt(c.ExpiresAt.Add(-time.Nanosecond)))
	assert.True(t, c.ExpiredAt(c.ExpiresAt), "a code is dead at its expiry instant")
	assert.True(t, c.ExpiredAt(c.ExpiresAt.Add(time.Second)))
}

func TestChallengeLockoutIsLockedAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	until := now.Add(15 * time.Minute)

	var missing *ChallengeLockout
	assert.False(t, missing.IsLockedAt(now))
	assert.False(t, (&ChallengeLockout{FailureCount: 4}).IsLockedAt(now))

	locked := &ChallengeLockout{FailureCount: 5, LockedUntil: &until}
	assert.True(t, locked.IsLockedAt(now))
	assert.False(t, locked.IsLockedAt(until))
}

func TestPrincipalRoles(t *testing.T) {
	var nobody *Principal
	assert.False(t, nobody.IsVoter())
	assert.False(t, nobody.IsAdmin())

	voter := &Principal{Subject: "ABC1234567", Role: RoleVoter}
	assert.True(t, voter.IsVoter())
	assert.False(t, voter.IsAdmin())

	admin := &Principal{Subject: "admin", Role: RoleAdmin}
	assert.True(t, admin.IsAdmin())
	assert.False(t, admin.IsVoter())
}

// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth provides authentication context helpers.
package auth

import (
	"context"

	"codeberg.org/oliverandrich/ballot-ledger/internal/ctxkeys"
	"codeberg.org/oliverandrich/ballot-ledger/internal/models"
)

// WithPrincipal stores the authenticated principal and its bearer token.
func WithPrincipal(ctx context.Context, p *models.Principal, token string) context.Context {
	ctx = context.WithValue(ctx, ctxkeys.Principal{}, p)
	return context.WithValue(ctx, ctxkeys.BearerToken{}, token)
}

// GetPrincipal returns the authenticated principal, or nil.
func GetPrincipal(ctx context.Context) *models.Principal {
	if p, ok := ctx.Value(ctxkeys.Principal{}).(*models.Principal); ok {
		return p
	}
	return nil
}

// GetToken returns the bearer token the principal was resolved from.
func GetToken(ctx context.Context) string {
	token, _ := ctx.Value(ctxkeys.BearerToken{}).(string)
	return token
}

// IsAuthenticated returns true if the context carries a principal.
func IsAuthenticated(ctx context.Context) bool {
	return GetPrincipal(ctx) != nil
}

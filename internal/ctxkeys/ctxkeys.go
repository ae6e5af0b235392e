// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package ctxkeys defines typed context keys used across packages.
package ctxkeys

// Principal is the context key for the authenticated principal.
type Principal struct{}

// BearerToken is the context key for the raw bearer token of the request.
type BearerToken struct{}

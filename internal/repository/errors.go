// Package repository holds the persistence adapters for accounts, sessions
// and pending 2FA challenges. The sentinels below are the only store errors
// the service layer is expected to inspect; everything else is treated as a
// dependency failure.
package repository

import "errors"

// ErrNotFound is returned when no record matches the lookup.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert or update violates a unique key
// (email, username or session token hash).
var ErrDuplicate = errors.New("duplicate")

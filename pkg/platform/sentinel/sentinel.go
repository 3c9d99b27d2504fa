package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure adapters return
// these (optionally wrapped) so services can translate them into domain errors.
//
//   - ErrNotFound: record does not exist in the store
//   - ErrAlreadyUsed: a unique key (email, login) is already taken
//   - ErrUnavailable: a dependency (resolver, reputation API, cache) cannot answer
//
// For user-correctable problems use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrAlreadyUsed = errors.New("already used")
	ErrUnavailable = errors.New("unavailable")
)

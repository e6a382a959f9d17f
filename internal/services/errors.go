// Package services implements the business operations the HTTP layer calls:
// creating requisitions, reading the warehouse board, and updating workflow
// status. This file centralizes service-level error values so handlers can
// translate them into stable HTTP responses.
package services

import "errors"

var (
	// ErrUnknownStatus is returned when an update names a status outside the
	// workflow's enumerated set.
	ErrUnknownStatus = errors.New("unknown status value")
)

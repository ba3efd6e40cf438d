package usecase

import "errors"

// ErrPersistence indicates an infrastructure/repository failure inside a
// use case.
var ErrPersistence = errors.New("collab use case persistence error")

// ErrForbidden indicates the acting user lacks the role required for the
// operation.
var ErrForbidden = errors.New("collab use case: operation not permitted for role")

// ErrNotParticipant indicates the acting user is not a member of the
// session.
var ErrNotParticipant = errors.New("collab use case: user is not a session participant")

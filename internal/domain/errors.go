package domain

import "errors"

var (
	// ErrNotFound covers missing rows, no tracked partners and no samples yet
	ErrNotFound = errors.New("not found")
	// ErrCodeNotFound means no profile holds the tracking code
	ErrCodeNotFound = errors.New("tracking code not found")
	// ErrSelfTracking rejects a tracker resolving its own code
	ErrSelfTracking = errors.New("self tracking rejected")
	// ErrTargetInactive rejects a target with tracking disabled
	ErrTargetInactive = errors.New("target tracking inactive")
	// ErrRelationshipExists is returned by stores on a duplicate (tracker, tracked) pair
	ErrRelationshipExists = errors.New("relationship already exists")
	// ErrProfileExists is returned by stores when the profile id is already present
	ErrProfileExists = errors.New("profile already exists")
	// ErrTrackingCodeTaken is a unique violation on tracking_code
	ErrTrackingCodeTaken = errors.New("tracking code already in use")
	// ErrCodeGenerationExhausted means every draw collided within the retry budget
	ErrCodeGenerationExhausted = errors.New("tracking code generation exhausted")
	// ErrInvalidCredentials is returned on a failed sign in
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailTaken is returned when signing up with a registered email
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidInput wraps request validation failures
	ErrInvalidInput = errors.New("invalid input")
	// ErrForbidden is returned when the caller may not read a resource
	ErrForbidden = errors.New("forbidden")
)

package errors

import (
	"errors"
	"fmt"
	"time"

	"civicfix-api/internal/models"
)

// RejectionError marks a terminal, user-visible validation failure. The
// pipeline short-circuits on the first rejection and surfaces the message
// verbatim; handlers map rejections to HTTP 400.
type RejectionError interface {
	error
	Rejection()
}

// IsRejection reports whether err (or anything it wraps) is a RejectionError.
func IsRejection(err error) bool {
	var r RejectionError
	return errors.As(err, &r)
}

// NoMetadataError: the photo carries no metadata at all, or none of the
// fields that distinguish a real capture (camera make/model, original
// timestamp, GPS tags). Screenshots and stripped images land here.
type NoMetadataError struct{}

func (e *NoMetadataError) Error() string {
	return "Photo has no camera metadata. Please capture a new photo directly with your " +
		"device camera or select from your device photo which has accurate location information."
}

func (e *NoMetadataError) Rejection() {}

// MissingDateError: neither the original-capture timestamp nor the
// file-modify timestamp yielded a usable date.
type MissingDateError struct{}

func (e *MissingDateError) Error() string {
	return "Photo has no date metadata. Please capture a new photo or select one with date information."
}

func (e *MissingDateError) Rejection() {}

// StaleMediaError: the photo was captured longer ago than the freshness
// window allows.
type StaleMediaError struct {
	Age    time.Duration
	MaxAge time.Duration
}

func (e *StaleMediaError) Error() string {
	return fmt.Sprintf("Photo is older than %d hours. Please capture a fresh photo or select a recent one.",
		int(e.MaxAge.Hours()))
}

func (e *StaleMediaError) Rejection() {}

// InvalidCoordinatesError: one of the four coordinate values involved in the
// proximity check is not a finite number.
type InvalidCoordinatesError struct {
	Photo  models.Coordinates
	Device models.Coordinates
}

func (e *InvalidCoordinatesError) Error() string {
	return "Location coordinates are invalid. Please try again with valid coordinates."
}

func (e *InvalidCoordinatesError) Rejection() {}

// LocationMismatchError: the photo's embedded GPS position is too far from
// the device-reported position. Carries the measured values so tests and
// callers can assert on numbers rather than message text.
type LocationMismatchError struct {
	DistanceMeters float64
	Photo          models.Coordinates
	Device         models.Coordinates
}

func (e *LocationMismatchError) Error() string {
	return fmt.Sprintf("Photo was taken %.0fm away from reported location. "+
		"Photo GPS: (%.6f, %.6f), Reported: (%.6f, %.6f). "+
		"Please use a photo taken at the exact location of the issue.",
		e.DistanceMeters, e.Photo.Lat, e.Photo.Lon, e.Device.Lat, e.Device.Lon)
}

func (e *LocationMismatchError) Rejection() {}

// UnreadableMetadataError: the extraction tool itself failed. Treated as a
// rejection, not a fallback.
type UnreadableMetadataError struct {
	Cause error
}

func (e *UnreadableMetadataError) Error() string {
	return "Unable to read photo metadata. Please capture a new photo with your device camera."
}

func (e *UnreadableMetadataError) Unwrap() error { return e.Cause }

func (e *UnreadableMetadataError) Rejection() {}

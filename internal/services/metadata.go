package services

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/apex/log"

	apperrors "civicfix-api/internal/errors"
	"civicfix-api/internal/models"
	"civicfix-api/internal/utils"
)

// MetadataService extracts photo metadata and applies the submission policy:
// the photo must carry real camera metadata, be fresh, and have been taken
// where the device says the user is standing.
type MetadataService struct {
	extractor   MetadataExtractor
	maxAge      time.Duration
	maxDistance float64 // meters

	now func() time.Time // stubbed in tests
}

func NewMetadataService(extractor MetadataExtractor, maxAge time.Duration, maxDistanceM float64) *MetadataService {
	return &MetadataService{
		extractor:   extractor,
		maxAge:      maxAge,
		maxDistance: maxDistanceM,
		now:         time.Now,
	}
}

// Evaluate runs the ordered policy against the photo at path. A nil return
// means the photo passed every rule; any non-nil return is a RejectionError
// and terminates the pipeline.
func (m *MetadataService) Evaluate(ctx context.Context, path string, device models.Coordinates) error {
	record, err := m.extractor.Extract(ctx, path)
	if err != nil {
		log.WithField("path", path).Warnf("metadata extraction failed: %v", err)
		return &apperrors.UnreadableMetadataError{Cause: err}
	}

	// Rule 1: presence. Screenshots and stripped images carry none of the
	// fields that distinguish a real capture.
	_, hasMake := utils.ToString(record["Make"])
	_, hasModel := utils.ToString(record["Model"])
	_, hasDateTimeOriginal := utils.ToString(record["DateTimeOriginal"])
	hasGPS := hasGPSFields(record)
	if len(record) == 0 || (!hasMake && !hasModel && !hasDateTimeOriginal && !hasGPS) {
		return &apperrors.NoMetadataError{}
	}

	// Rule 2: freshness. Capture timestamp first, file-modify timestamp for
	// gallery photos that lack one.
	captureDate, ok := m.captureDate(record)
	if !ok {
		return &apperrors.MissingDateError{}
	}
	if age := m.now().Sub(captureDate); age > m.maxAge {
		return &apperrors.StaleMediaError{Age: age, MaxAge: m.maxAge}
	}

	// Rule 3: GPS resolution.
	photo := m.resolveGPS(record, device)

	// Rule 4: validity.
	if !isFinite(photo.Lat) || !isFinite(photo.Lon) || !isFinite(device.Lat) || !isFinite(device.Lon) {
		return &apperrors.InvalidCoordinatesError{Photo: photo, Device: device}
	}

	// Rule 5: proximity.
	distance := utils.DistanceMeters(photo, device)
	if distance > m.maxDistance {
		return &apperrors.LocationMismatchError{
			DistanceMeters: distance,
			Photo:          photo,
			Device:         device,
		}
	}

	return nil
}

// captureDate determines when the photo was taken, preferring the original
// capture timestamp over the file-modify timestamp.
func (m *MetadataService) captureDate(record models.ExifRecord) (time.Time, bool) {
	for _, field := range []string{"DateTimeOriginal", "FileModifyDate"} {
		raw, ok := utils.ToString(record[field])
		if !ok {
			continue
		}
		if t, err := utils.ParseExifTimestamp(raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// resolveGPS extracts the photo's position, trying each representation the
// extraction tool may report. When GPS tags exist but none decodes, or no
// GPS tags exist at all, the device position substitutes for the photo's.
func (m *MetadataService) resolveGPS(record models.ExifRecord, device models.Coordinates) models.Coordinates {
	latRef, _ := utils.ToString(record["GPSLatitudeRef"])
	lonRef, _ := utils.ToString(record["GPSLongitudeRef"])

	// Direct latitude/longitude fields, numeric or DMS triples.
	if lat, latOK := coordinateValue(record["GPSLatitude"]); latOK {
		if lon, lonOK := coordinateValue(record["GPSLongitude"]); lonOK {
			if strings.HasPrefix(latRef, "S") {
				lat = -lat
			}
			if strings.HasPrefix(lonRef, "W") {
				lon = -lon
			}
			return models.Coordinates{Lat: lat, Lon: lon}
		}
	}

	// Combined position string: two space-separated numbers.
	if pos, ok := utils.ToString(record["GPSPosition"]); ok {
		fields := strings.Fields(pos)
		if len(fields) >= 2 {
			lat, latOK := utils.ToFloat(fields[0])
			lon, lonOK := utils.ToFloat(fields[1])
			if latOK && lonOK {
				return models.Coordinates{Lat: lat, Lon: lon}
			}
		}
	}

	// GPS tags present but not decodable: trust the device fix.
	if hasGPSFields(record) {
		log.Debug("GPS fields exist but coordinates are unreadable, using device location")
		return device
	}

	// No GPS tags at all (gallery photo): the device fix is all we have.
	return device
}

// coordinateValue decodes a single GPS value, which the tool may report as a
// plain number, a numeric string, or a [degrees, minutes, seconds] triple.
func coordinateValue(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	if dms, ok := utils.ToDMS(v); ok {
		return utils.DMSToDecimal(dms[0], dms[1], dms[2]), true
	}
	return utils.ToFloat(v)
}

func hasGPSFields(record models.ExifRecord) bool {
	for key := range record {
		if strings.HasPrefix(key, "GPS") {
			return true
		}
	}
	return false
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

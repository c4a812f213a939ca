package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"civicfix-api/internal/models"
)

// MetadataExtractor turns an image file into a flat key/value metadata map.
// Narrow on purpose: the concrete extraction technology (external process,
// embedded library) is swappable and mockable.
type MetadataExtractor interface {
	Extract(ctx context.Context, path string) (models.ExifRecord, error)
}

// ExifToolExtractor shells out to the exiftool binary. The -n flag keeps GPS
// values numeric; -json gives us the flat map directly. Every invocation is
// bounded by a timeout so a wedged tool cannot hang the pipeline.
type ExifToolExtractor struct {
	binPath string
	timeout time.Duration
}

func NewExifToolExtractor(binPath string, timeout time.Duration) *ExifToolExtractor {
	return &ExifToolExtractor{binPath: binPath, timeout: timeout}
}

func (e *ExifToolExtractor) Extract(ctx context.Context, path string) (models.ExifRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.binPath, "-json", "-n", path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("exiftool timed out after %v: %w", e.timeout, ctx.Err())
		}
		return nil, fmt.Errorf("exiftool failed: %v: %s", err, stderr.String())
	}

	var records []models.ExifRecord
	if err := json.Unmarshal(stdout.Bytes(), &records); err != nil {
		return nil, fmt.Errorf("failed to parse exiftool output: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("exiftool produced no metadata for %s", path)
	}

	record := records[0]
	delete(record, "SourceFile")
	return record, nil
}

// GoexifExtractor decodes EXIF in-process. Used when no exiftool binary is
// available; it reports the same field names the tool would.
type GoexifExtractor struct{}

func NewGoexifExtractor() *GoexifExtractor {
	return &GoexifExtractor{}
}

func (e *GoexifExtractor) Extract(ctx context.Context, path string) (models.ExifRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	record := models.ExifRecord{}

	// The file-modify timestamp exists even for stripped images; the
	// freshness rule falls back to it for gallery photos.
	if info, err := os.Stat(path); err == nil {
		record["FileModifyDate"] = info.ModTime().Format("2006:01:02 15:04:05-07:00")
	}

	// A missing EXIF block is not a tool failure: the record then carries
	// only file-level fields and the presence rule produces the rejection.
	x, err := exif.Decode(f)
	if err != nil && exif.IsCriticalError(err) {
		return record, nil
	}
	if x == nil {
		return record, nil
	}

	for name, field := range map[string]exif.FieldName{
		"Make":             exif.Make,
		"Model":            exif.Model,
		"DateTimeOriginal": exif.DateTimeOriginal,
		"GPSLatitudeRef":   exif.GPSLatitudeRef,
		"GPSLongitudeRef":  exif.GPSLongitudeRef,
	} {
		tag, err := x.Get(field)
		if err != nil {
			continue
		}
		if s, err := tag.StringVal(); err == nil {
			record[name] = s
		}
	}

	// LatLong already resolves DMS rationals and hemisphere references to
	// signed decimal degrees.
	if lat, lon, err := x.LatLong(); err == nil {
		record["GPSLatitude"] = lat
		record["GPSLongitude"] = lon
		delete(record, "GPSLatitudeRef")
		delete(record, "GPSLongitudeRef")
	}

	return record, nil
}

package services

import (
	"context"

	"github.com/apex/log"

	"civicfix-api/internal/models"
)

// AddressResolver is what the orchestrator needs from geocoding: a
// best-effort string, never an error.
type AddressResolver interface {
	ResolveAddress(ctx context.Context, lat, lon float64) string
}

// HashSource supplies the fingerprints of previously stored issues.
type HashSource interface {
	ListHashRecords(ctx context.Context) ([]models.HashRecord, error)
}

// ValidationService runs the full submission pipeline: metadata policy,
// address resolution, and duplicate detection. It is fail-closed on the
// metadata policy and fail-open everywhere else, and it never persists
// anything itself.
type ValidationService struct {
	metadata  *MetadataService
	geocoder  AddressResolver
	phash     *PHashService
	hashes    HashSource
	threshold float64 // duplicate similarity threshold, percent
}

func NewValidationService(
	metadata *MetadataService,
	geocoder AddressResolver,
	phash *PHashService,
	hashes HashSource,
	threshold float64,
) *ValidationService {
	return &ValidationService{
		metadata:  metadata,
		geocoder:  geocoder,
		phash:     phash,
		hashes:    hashes,
		threshold: threshold,
	}
}

// Validate decides whether a submission is trustworthy evidence. A rejection
// is returned both as the error (a RejectionError) and as a non-accepted
// Decision carrying the reason verbatim. Accepted decisions carry the
// resolved address, the review flag, and the computed fingerprint.
func (v *ValidationService) Validate(ctx context.Context, sub models.Submission) (*models.Decision, error) {
	// Geocoding is independent of the metadata policy, so it runs while the
	// policy is being evaluated. The buffered channel keeps the goroutine
	// from leaking when the policy rejects.
	addressCh := make(chan string, 1)
	go func() {
		addressCh <- v.geocoder.ResolveAddress(ctx, sub.Device.Lat, sub.Device.Lon)
	}()

	// A remote photo URL with no uploaded file means no metadata to verify:
	// accepted, but flagged for manual review.
	needsReview := sub.PhotoPath == "" && sub.RemotePhotoURL != ""

	if sub.PhotoPath != "" {
		if err := v.metadata.Evaluate(ctx, sub.PhotoPath, sub.Device); err != nil {
			log.WithField("title", sub.Title).Infof("submission rejected: %v", err)
			return &models.Decision{Accepted: false, Reason: err.Error()}, err
		}
	}

	var fingerprint string
	var similar []models.SimilarImage
	if sub.PhotoPath != "" {
		fingerprint, similar = v.checkDuplicates(ctx, sub.PhotoPath)
		if len(similar) > 0 {
			log.Warnf("image is similar to %d existing issue(s), flagging for review", len(similar))
			needsReview = true
		}
	}

	return &models.Decision{
		Accepted:    true,
		Address:     <-addressCh,
		NeedsReview: needsReview,
		PHash:       fingerprint,
		Similar:     similar,
	}, nil
}

// checkDuplicates computes the fingerprint and searches stored fingerprints
// for near-duplicates. Both steps degrade to "no similarity data" on
// failure; neither ever blocks a submission.
func (v *ValidationService) checkDuplicates(ctx context.Context, path string) (string, []models.SimilarImage) {
	fingerprint, err := v.phash.ComputeHash(path)
	if err != nil {
		log.Warnf("perceptual hash computation failed: %v", err)
		return "", nil
	}

	records, err := v.hashes.ListHashRecords(ctx)
	if err != nil {
		log.Warnf("could not list stored fingerprints: %v", err)
		return fingerprint, nil
	}

	similar := FindSimilarImages(fingerprint, records, v.threshold)
	for _, match := range similar {
		log.Warnf("issue %s is %.1f%% similar to the uploaded image", match.IssueID, match.Similarity)
	}
	return fingerprint, similar
}

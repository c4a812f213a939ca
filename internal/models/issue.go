package models

import "time"

// Statuses an issue can move through after being reported.
var Statuses = []string{"Reported", "In Progress", "Resolved"}

// Coordinates is a device- or photo-reported WGS84 position in decimal degrees.
type Coordinates struct {
	Lat float64 `firestore:"lat" json:"lat"`
	Lon float64 `firestore:"lon" json:"lon"`
}

// Submission is the per-request input to the validation pipeline. It lives for
// exactly one request and is owned by the orchestrator; nothing retains it.
type Submission struct {
	Title          string
	Description    string
	Device         Coordinates
	PhotoPath      string // local path to the uploaded file, empty if none
	PhotoName      string // original upload filename
	ContentType    string
	RemotePhotoURL string // user-supplied URL, only meaningful when PhotoPath is empty
	SubmittedAt    time.Time
}

// ExifRecord is the flat key/value view over extracted photo metadata, exactly
// as the extraction tool reports it. Constructed once per image and consumed
// immediately by the policy evaluator.
type ExifRecord map[string]any

// CacheEntry is one resolved address in the geocoding cache. An entry is valid
// while now - CreatedAt is below the cache TTL.
type CacheEntry struct {
	Address   string
	CreatedAt time.Time
}

// HashRecord associates a stored issue with its perceptual fingerprint
// (64-bit pHash, 16 hex characters). Immutable once written.
type HashRecord struct {
	IssueID string
	PHash   string
}

// SimilarImage is one duplicate-search match, annotated with its similarity
// percentage (one decimal place).
type SimilarImage struct {
	IssueID    string  `json:"issueId"`
	Similarity float64 `json:"similarity"`
}

// Decision is the single output of the validation pipeline. The caller is
// responsible for persisting accepted submissions; the pipeline never writes.
type Decision struct {
	Accepted    bool
	Reason      string // human-readable rejection reason, empty when accepted
	Address     string // resolved or fallback address, always non-empty
	NeedsReview bool
	PHash       string // empty when no fingerprint could be computed
	Similar     []SimilarImage
}

// Issue is the persisted record of an accepted submission.
type Issue struct {
	ID               string    `firestore:"id,omitempty" json:"id"`
	Title            string    `firestore:"title" json:"title"`
	Description      string    `firestore:"description" json:"description"`
	PhotoURL         string    `firestore:"photoUrl,omitempty" json:"photo_url,omitempty"`
	ResolvedPhotoURL string    `firestore:"resolvedPhotoUrl,omitempty" json:"resolved_photo_url,omitempty"`
	StoragePath      string    `firestore:"storagePath,omitempty" json:"-"`
	Latitude         float64   `firestore:"latitude" json:"latitude"`
	Longitude        float64   `firestore:"longitude" json:"longitude"`
	Address          string    `firestore:"address,omitempty" json:"address,omitempty"`
	Status           string    `firestore:"status" json:"status"`
	NeedsReview      bool      `firestore:"needsReview" json:"needs_review"`
	PHash            string    `firestore:"phash,omitempty" json:"-"`
	CreatedAt        time.Time `firestore:"createdAt" json:"created_at"`
	UpdatedAt        time.Time `firestore:"updatedAt" json:"updated_at"`
}

// ValidStatus reports whether s is one of the allowed issue statuses.
func ValidStatus(s string) bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

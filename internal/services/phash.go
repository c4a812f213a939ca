package services

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"civicfix-api/internal/models"
	"civicfix-api/internal/utils"
)

// maxHashBits is the fingerprint width. Missing or malformed hashes compare
// at this maximum distance.
const maxHashBits = 64

// PHashService computes 64-bit perceptual fingerprints for uploaded images.
// The DCT-based pHash survives recompression and resizing, which is exactly
// what re-submitted photos go through.
type PHashService struct{}

func NewPHashService() *PHashService {
	return &PHashService{}
}

// ComputeHash fingerprints the image at path, returning a 16-character hex
// string. A failure here is a distinct, catchable outcome; callers decide
// whether it blocks anything (the pipeline treats it as advisory).
func (p *PHashService) ComputeHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}

	if ext := strings.ToLower(filepath.Ext(path)); ext == ".heic" || ext == ".heif" {
		converted, err := utils.ConvertHeicToJpeg(data)
		if err != nil {
			return "", err
		}
		data = converted
	}

	return p.ComputeHashBytes(data)
}

// ComputeHashBytes fingerprints raw image data (jpeg, png, gif, or webp).
func (p *PHashService) ComputeHashBytes(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	// Hash upright, uniformly scaled pixels so recompressed or resized
	// variants of the same shot land on the same coefficients.
	img = utils.ApplyOrientation(img, data)
	img = imaging.Resize(img, 256, 256, imaging.Lanczos)

	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return "", fmt.Errorf("failed to compute perceptual hash: %w", err)
	}

	return fmt.Sprintf("%016x", hash.GetHash()), nil
}

// HammingDistance counts differing bits between two hex-encoded hashes.
// A missing hash or a length mismatch is the maximum distance.
func HammingDistance(a, b string) int {
	if a == "" || b == "" || len(a) != len(b) {
		return maxHashBits
	}

	distance := 0
	for i := 0; i < len(a); i++ {
		x, err1 := strconv.ParseUint(string(a[i]), 16, 8)
		y, err2 := strconv.ParseUint(string(b[i]), 16, 8)
		if err1 != nil || err2 != nil {
			return maxHashBits
		}
		distance += nibbleBits[x^y]
	}
	return distance
}

// nibbleBits[n] is the population count of the 4-bit value n.
var nibbleBits = [16]int{0, 1, 1, 2, 1, 2, 2, 3, 1, 2, 2, 3, 2, 3, 3, 4}

// Similarity converts Hamming distance to a percentage, one decimal place.
func Similarity(a, b string) float64 {
	distance := HammingDistance(a, b)
	similarity := (1 - float64(distance)/maxHashBits) * 100
	return math.Round(similarity*10) / 10
}

// FindSimilarImages returns every stored record whose fingerprint is at
// least threshold percent similar to hash, annotated with its score.
// Records without a stored hash are skipped; empty inputs yield an empty
// result, never an error.
func FindSimilarImages(hash string, records []models.HashRecord, threshold float64) []models.SimilarImage {
	if hash == "" || len(records) == 0 {
		return nil
	}

	var similar []models.SimilarImage
	for _, record := range records {
		if record.PHash == "" {
			continue
		}
		if score := Similarity(hash, record.PHash); score >= threshold {
			similar = append(similar, models.SimilarImage{
				IssueID:    record.IssueID,
				Similarity: score,
			})
		}
	}
	return similar
}

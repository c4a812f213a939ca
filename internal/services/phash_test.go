package services

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"civicfix-api/internal/models"
)

// testImagePNG renders a small gradient with a few solid blocks, giving the
// DCT something non-degenerate to chew on.
func testImagePNG(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 128, 128))
	for y := 0; y < 128; y++ {
		for x := 0; x < 128; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 2), G: uint8(y * 2), B: uint8((x + y) / 2), A: 255})
		}
	}
	for y := 20; y < 60; y++ {
		for x := 30; x < 90; x++ {
			img.Set(x, y, color.RGBA{R: 250, G: 20, B: 20, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func writeTestImage(t *testing.T, name string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, testImagePNG(t), 0o600); err != nil {
		t.Fatalf("failed to write test image: %v", err)
	}
	return path
}

func TestComputeHashFormat(t *testing.T) {
	svc := NewPHashService()

	hash, err := svc.ComputeHash(writeTestImage(t, "a.png"))
	if err != nil {
		t.Fatalf("ComputeHash failed: %v", err)
	}
	if len(hash) != 16 {
		t.Errorf("hash = %q, want 16 hex characters", hash)
	}
	for _, c := range hash {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			t.Errorf("hash %q contains non-hex character %q", hash, c)
		}
	}
}

func TestComputeHashDeterministic(t *testing.T) {
	svc := NewPHashService()

	h1, err := svc.ComputeHash(writeTestImage(t, "a.png"))
	if err != nil {
		t.Fatalf("ComputeHash failed: %v", err)
	}
	h2, err := svc.ComputeHash(writeTestImage(t, "b.png"))
	if err != nil {
		t.Fatalf("ComputeHash failed: %v", err)
	}

	// Byte-identical images must fingerprint identically.
	if h1 != h2 {
		t.Errorf("identical images hashed differently: %q vs %q", h1, h2)
	}
	if sim := Similarity(h1, h2); sim != 100.0 {
		t.Errorf("Similarity of identical hashes = %v, want 100.0", sim)
	}
}

func TestComputeHashRejectsCorruptData(t *testing.T) {
	svc := NewPHashService()

	path := filepath.Join(t.TempDir(), "corrupt.png")
	if err := os.WriteFile(path, []byte("not an image at all"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.ComputeHash(path); err == nil {
		t.Error("expected a distinct error for corrupt image data")
	}
}

func TestHammingDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"identical", "0000000000000000", "0000000000000000", 0},
		{"identical nonzero", "a1b2c3d4e5f60789", "a1b2c3d4e5f60789", 0},
		{"one bit", "0000000000000000", "0000000000000001", 1},
		{"one nibble fully flipped", "0000000000000000", "000000000000000f", 4},
		{"all bits", "0000000000000000", "ffffffffffffffff", 64},
		{"missing first", "", "ffffffffffffffff", 64},
		{"missing second", "ffffffffffffffff", "", 64},
		{"length mismatch", "abcd", "abcdef0123456789", 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HammingDistance(tt.a, tt.b); got != tt.want {
				t.Errorf("HammingDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "a1b2c3d4e5f60789", "a1b2c3d4e5f60789", 100.0},
		{"one bit differs", "0000000000000000", "0000000000000001", 98.4},   // (1-1/64)*100
		{"half the bits differ", "0000000000000000", "ffffffff00000000", 50.0},
		{"all bits differ", "0000000000000000", "ffffffffffffffff", 0.0},
		{"missing hash", "", "0000000000000000", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSimilarityRoundsToOneDecimal(t *testing.T) {
	// 3 differing bits: (1-3/64)*100 = 95.3125, rounds to 95.3.
	got := Similarity("0000000000000000", "0000000000000007")
	if got != 95.3 {
		t.Errorf("Similarity = %v, want 95.3", got)
	}
}

func TestFindSimilarImages(t *testing.T) {
	current := "0000000000000000"
	records := []models.HashRecord{
		{IssueID: "exact", PHash: "0000000000000000"},         // 100.0
		{IssueID: "close", PHash: "0000000000000003"},         // 96.9
		{IssueID: "borderline", PHash: "000000000000003f"},    // 90.6
		{IssueID: "far", PHash: "00000000ffffffff"},           // 50.0
		{IssueID: "no-hash", PHash: ""},                       // must be skipped
	}

	similar := FindSimilarImages(current, records, 90)

	if len(similar) != 3 {
		t.Fatalf("got %d matches, want 3: %+v", len(similar), similar)
	}
	for _, match := range similar {
		if match.Similarity < 90 {
			t.Errorf("match %s below threshold: %v", match.IssueID, match.Similarity)
		}
		if match.IssueID == "no-hash" {
			t.Error("records without a stored hash must never match")
		}
	}
}

func TestFindSimilarImagesEmptyInputs(t *testing.T) {
	records := []models.HashRecord{{IssueID: "a", PHash: "0000000000000000"}}

	if got := FindSimilarImages("", records, 90); len(got) != 0 {
		t.Errorf("empty hash should yield no matches, got %+v", got)
	}
	if got := FindSimilarImages("0000000000000000", nil, 90); len(got) != 0 {
		t.Errorf("empty candidate set should yield no matches, got %+v", got)
	}
}

func TestFindSimilarImagesCustomThreshold(t *testing.T) {
	records := []models.HashRecord{{IssueID: "far", PHash: "00000000ffffffff"}} // 50.0

	if got := FindSimilarImages("0000000000000000", records, 90); len(got) != 0 {
		t.Errorf("default-threshold search should exclude 50%% matches, got %+v", got)
	}
	got := FindSimilarImages("0000000000000000", records, 40)
	if len(got) != 1 || got[0].Similarity != 50.0 {
		t.Errorf("lowered threshold should include the match at 50.0, got %+v", got)
	}
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/joho/godotenv"
)

type Config struct {
	Port                    string
	FirebaseProjectID       string
	FirebaseBucketName      string
	FirebaseCredentialsPath string
	FirebaseCredentialsJSON string // raw JSON string, preferred on hosted environments
	FirestoreCollection     string

	// Public URL pieces for uploaded photos. APIHost overrides the request
	// host so mobile clients behind a tunnel always get a reachable URL.
	APIHost     string
	APIProtocol string

	UploadDir string // local staging dir for uploads (the extractor needs a file path)

	// Metadata policy.
	ExifToolPath    string // empty disables the external tool and uses the embedded decoder
	ExifToolTimeout time.Duration
	MaxPhotoAge     time.Duration
	MaxGPSDistanceM float64

	// Geocoding resolver.
	GeocodeBaseURL       string
	GeocodeUserAgent     string
	GeocodeTimeout       time.Duration
	GeocodeRetries       int
	GeocodeCallInterval  time.Duration // minimum spacing between provider calls
	GeocodeCacheTTL      time.Duration
	GeocodeCacheMaxSize  int
	GeocodeCacheSweepInt time.Duration

	// Duplicate detection.
	SimilarityThreshold float64 // percent, 0-100

	AllowedOrigins []string
	APIKeys        []string // API keys for authentication (comma-separated)
}

// Load reads configuration from environment variables and .env file.
// It loads the .env file if present, then populates the Config struct.
// Returns an error if required configuration is missing.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, using environment variables")
	}

	cfg := &Config{
		Port:                    getEnv("PORT", "8080"),
		FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseBucketName:      getEnv("FIREBASE_BUCKET_NAME", ""),
		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", "firebase-service-account.json"),
		FirebaseCredentialsJSON: getEnv("FIREBASE_CREDENTIALS_JSON", ""),
		FirestoreCollection:     getEnv("FIRESTORE_COLLECTION", "issues"),
		APIHost:                 getEnv("API_HOST", ""),
		APIProtocol:             getEnv("API_PROTOCOL", "http"),
		UploadDir:               getEnv("UPLOAD_DIR", os.TempDir()),
		ExifToolPath:            getEnv("EXIFTOOL_PATH", "exiftool"),
		ExifToolTimeout:         getDurationEnv("EXIFTOOL_TIMEOUT", 5*time.Second),
		MaxPhotoAge:             getDurationEnv("MAX_PHOTO_AGE", 24*time.Hour),
		MaxGPSDistanceM:         getFloatEnv("MAX_GPS_DISTANCE_METERS", 200),
		GeocodeBaseURL:          getEnv("GEOCODE_BASE_URL", "https://nominatim.openstreetmap.org/reverse"),
		GeocodeUserAgent:        getEnv("GEOCODE_USER_AGENT", "CivicFixApp/1.0"),
		GeocodeTimeout:          getDurationEnv("GEOCODE_TIMEOUT", 8*time.Second),
		GeocodeRetries:          getIntEnv("GEOCODE_RETRIES", 2),
		GeocodeCallInterval:     getDurationEnv("GEOCODE_CALL_INTERVAL", 500*time.Millisecond),
		GeocodeCacheTTL:         getDurationEnv("GEOCODE_CACHE_TTL", 24*time.Hour),
		GeocodeCacheMaxSize:     getIntEnv("GEOCODE_CACHE_MAX_SIZE", 1000),
		GeocodeCacheSweepInt:    getDurationEnv("GEOCODE_CACHE_SWEEP_INTERVAL", time.Hour),
		SimilarityThreshold:     getFloatEnv("SIMILARITY_THRESHOLD", 90),
		AllowedOrigins:          getList("ALLOWED_ORIGINS", []string{"*"}),
		APIKeys:                 getList("API_KEYS", []string{}),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.FirebaseProjectID == "" {
		return fmt.Errorf("FIREBASE_PROJECT_ID is required")
	}
	if c.FirebaseBucketName == "" {
		return fmt.Errorf("FIREBASE_BUCKET_NAME is required")
	}
	if c.FirebaseCredentialsJSON == "" && c.FirebaseCredentialsPath == "" {
		return fmt.Errorf("either FIREBASE_CREDENTIALS_JSON or FIREBASE_CREDENTIALS_PATH must be set")
	}
	if c.FirestoreCollection == "" {
		return fmt.Errorf("FIRESTORE_COLLECTION is required")
	}
	if c.MaxPhotoAge <= 0 {
		return fmt.Errorf("MAX_PHOTO_AGE must be positive")
	}
	if c.MaxGPSDistanceM <= 0 {
		return fmt.Errorf("MAX_GPS_DISTANCE_METERS must be positive")
	}
	if c.GeocodeRetries < 0 {
		return fmt.Errorf("GEOCODE_RETRIES cannot be negative")
	}
	if c.GeocodeCacheTTL <= 0 {
		return fmt.Errorf("GEOCODE_CACHE_TTL must be positive")
	}
	if c.GeocodeCacheMaxSize <= 0 {
		return fmt.Errorf("GEOCODE_CACHE_MAX_SIZE must be positive")
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 100 {
		return fmt.Errorf("SIMILARITY_THRESHOLD must be between 0 and 100")
	}
	if len(c.APIKeys) == 0 {
		return fmt.Errorf("API_KEYS is required (comma-separated list of API keys)")
	}
	return nil
}

// Retrieves an environment variable or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// Retrieves a duration from environment variable or returns a default value.
// It supports both time.Duration format (e.g., "10m", "12h") and integer minutes.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

// Retrieves an integer from environment variable or returns a default value.
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// Retrieves a float from environment variable or returns a default value.
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// Retrieves a comma-separated list from environment variable or returns a default value.
func getList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

package server

import (
	"context"
	"net/http"
	"os/exec"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/apex/log"
	"google.golang.org/api/option"

	"civicfix-api/internal/config"
	"civicfix-api/internal/handlers"
	"civicfix-api/internal/middleware"
	"civicfix-api/internal/router"
	"civicfix-api/internal/services"
)

// Services holds all initialized services for the application
type Services struct {
	GeoCache  *services.GeoCache
	Geocoder  *services.GeocodingService
	Validator *services.ValidationService
	Store     *services.IssueStore
	Storage   *services.StorageService
}

// InitServices initializes all application services based on configuration.
// Returns the initialized services or an error if initialization fails.
func InitServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	// Configure Firebase credentials
	var opts []option.ClientOption
	if cfg.FirebaseCredentialsJSON != "" {
		// Use JSON credentials from environment variable (preferred on hosted environments)
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.FirebaseCredentialsJSON)))
	} else {
		// Use credentials file (for local development)
		opts = append(opts, option.WithCredentialsFile(cfg.FirebaseCredentialsPath))
	}

	storageClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}

	firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProjectID, opts...)
	if err != nil {
		return nil, err
	}

	geoCache := services.NewGeoCache(cfg.GeocodeCacheTTL, cfg.GeocodeCacheMaxSize, cfg.GeocodeCacheSweepInt)
	geocoder := services.NewGeocodingService(geoCache, services.GeocodingOptions{
		BaseURL:      cfg.GeocodeBaseURL,
		UserAgent:    cfg.GeocodeUserAgent,
		Timeout:      cfg.GeocodeTimeout,
		Retries:      cfg.GeocodeRetries,
		CallInterval: cfg.GeocodeCallInterval,
	})

	// Prefer the external tool; it reads far more formats than the embedded
	// decoder. Fall back when the binary is not installed.
	var extractor services.MetadataExtractor
	if _, err := exec.LookPath(cfg.ExifToolPath); err == nil {
		extractor = services.NewExifToolExtractor(cfg.ExifToolPath, cfg.ExifToolTimeout)
	} else {
		log.Warnf("exiftool not found at %q, using embedded EXIF decoder", cfg.ExifToolPath)
		extractor = services.NewGoexifExtractor()
	}

	metadata := services.NewMetadataService(extractor, cfg.MaxPhotoAge, cfg.MaxGPSDistanceM)
	store := services.NewIssueStore(firestoreClient, cfg.FirestoreCollection)
	storageService := services.NewStorageService(storageClient, cfg.FirebaseBucketName)
	validator := services.NewValidationService(metadata, geocoder, services.NewPHashService(), store, cfg.SimilarityThreshold)

	return &Services{
		GeoCache:  geoCache,
		Geocoder:  geocoder,
		Validator: validator,
		Store:     store,
		Storage:   storageService,
	}, nil
}

// CreateHandler creates an HTTP handler with all middleware applied
func CreateHandler(svcs *Services, cfg *config.Config) http.Handler {
	h := handlers.New(svcs.Validator, svcs.Store, svcs.Storage, cfg.UploadDir, cfg.APIHost, cfg.APIProtocol)

	mux := router.Setup(h)

	rateLimiter := middleware.NewRateLimiter(10, 20)

	// Apply global middleware. RequestID sits outermost so the logger and
	// every layer below see the ID in the request context.
	var handler http.Handler = mux
	handler = middleware.APIKeyAuth(cfg.APIKeys)(handler)
	handler = rateLimiter.Limit(handler)
	handler = middleware.CORS(handler, cfg.AllowedOrigins)
	handler = middleware.Logger(handler)
	handler = middleware.RequestID(handler)

	return handler
}

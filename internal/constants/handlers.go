package constants

import "time"

// Handler constants
const (
	// DefaultRecentLimit is the number of recent detections returned by default
	DefaultRecentLimit = 10

	// MaxRecentLimit caps the limit query parameter of recent detections
	MaxRecentLimit = 100

	// DetectionTimeLayout is the display format of detection timestamps
	DetectionTimeLayout = "2006-01-02 15:04:05"

	// StaticImagesPrefix is the URL prefix of copied captured images
	StaticImagesPrefix = "/static/images/"

	// TestImageURL is the image reported by synthetic test detections
	TestImageURL = StaticImagesPrefix + "test_image.jpg"

	// TestDetectionCustomerID is used by test detections without a customer id
	TestDetectionCustomerID = "C1001"

	// TestDetectionBill is the predicted bill of test detections
	TestDetectionBill = 50.0

	// SSEKeepAliveInterval is how often idle event streams receive a comment
	SSEKeepAliveInterval = 15 * time.Second

	// StatsCacheTTL is how long dashboard statistics are cached
	StatsCacheTTL = 10 * time.Second
)

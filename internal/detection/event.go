// Package detection turns admitted face detections into dashboard events.
package detection

import (
	"time"

	"github.com/kozaktomas/customer-recognition/internal/constants"
)

// Event is the latest known detection of a customer, as shown on the dashboard.
type Event struct {
	CustomerID    string    `json:"customer_id"`
	Timestamp     time.Time `json:"timestamp"`
	ImageURL      string    `json:"image_url,omitempty"`
	PredictedBill float64   `json:"predicted_bill"`
	DetectionTime string    `json:"detection_time"`
	VisitCount    int       `json:"visit_count"`
}

// NewEvent builds an event and fills the display time.
func NewEvent(customerID string, at time.Time, predicted float64, imageURL string, visits int) Event {
	return Event{
		CustomerID:    customerID,
		Timestamp:     at,
		ImageURL:      imageURL,
		PredictedBill: predicted,
		DetectionTime: at.Format(constants.DetectionTimeLayout),
		VisitCount:    visits,
	}
}

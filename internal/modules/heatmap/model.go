// README: Heatmap model (scored grid buckets plus query metadata).
package heatmap

import (
	"time"

	"drivepulse/internal/types"
)

type Entry struct {
	Bucket string         `json:"bucket"`
	Score  float64        `json:"score"`
	Center types.Location `json:"center"`
}

type Query struct {
	Location types.Location `json:"location"`
	RadiusKm float64        `json:"radius_km"`
}

// Heatmap entries are ordered by score, highest first.
type Heatmap struct {
	Entries     []Entry   `json:"entries"`
	Query       Query     `json:"query"`
	GeneratedAt time.Time `json:"generated_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Stale       bool      `json:"stale"`
	Warnings    []string  `json:"warnings,omitempty"`
}

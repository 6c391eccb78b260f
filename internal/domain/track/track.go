// Package track provides the Track domain entity.
package track

import (
	"fmt"
	"time"
)

// Track represents a catalog track entity.
// Owned by the catalog; the engine only reads it.
type Track struct {
	ID       int64         // Catalog-assigned unique ID
	Name     string        // Original file name as uploaded
	Filename string        // Stored file name on the catalog side
	Mime     string        // Content type of the stored audio
	Duration time.Duration // Analyzed duration (0 if unknown)
	BPM      float64       // Analyzed tempo (0 if unknown)
	Energy   float64       // Analyzed energy in [0,1]
	Analyzed bool          // Analysis has completed
	Deleted  bool          // Soft-deleted (in trash)
}

// Eligible reports whether the track can be selected for playback.
func (t Track) Eligible() bool {
	return t.Analyzed && !t.Deleted
}

// String returns a short human-readable form for logs.
func (t Track) String() string {
	return fmt.Sprintf("#%d %s (bpm=%.1f energy=%.2f)", t.ID, t.Name, t.BPM, t.Energy)
}

// IDs returns the IDs of the given tracks in order.
func IDs(tracks []Track) []int64 {
	ids := make([]int64, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}
	return ids
}

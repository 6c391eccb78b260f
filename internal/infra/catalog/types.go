package catalog

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/osa030/autodj/internal/domain/track"
)

// trackResponse is a row of the catalog's tracks table as served over JSON.
type trackResponse struct {
	ID           int64    `json:"id"`
	Filename     string   `json:"filename"`
	OriginalName string   `json:"original_name"`
	Mime         string   `json:"mime"`
	Duration     *float64 `json:"duration"`
	BPM          *float64 `json:"bpm"`
	Energy       *float64 `json:"energy"`
	Analyzed     flag     `json:"analyzed"`
	Deleted      flag     `json:"deleted"`
}

func (r trackResponse) toTrack() track.Track {
	t := track.Track{
		ID:       r.ID,
		Name:     r.OriginalName,
		Filename: r.Filename,
		Mime:     r.Mime,
		Analyzed: bool(r.Analyzed),
		Deleted:  bool(r.Deleted),
	}
	if r.Duration != nil {
		t.Duration = time.Duration(*r.Duration * float64(time.Second))
	}
	if r.BPM != nil {
		t.BPM = *r.BPM
	}
	if r.Energy != nil {
		t.Energy = *r.Energy
	}
	return t
}

// flag decodes the catalog's integer booleans (0/1), JSON booleans and null.
type flag bool

func (f *flag) UnmarshalJSON(data []byte) error {
	switch strings.TrimSpace(string(data)) {
	case "null", "0", "false", `"0"`, `""`:
		*f = false
		return nil
	case "1", "true", `"1"`:
		*f = true
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = n != 0
	return nil
}

// apiError is the error body returned by the catalog service.
type apiError struct {
	Detail string `json:"detail"`
}

func apiErrorDetail(body []byte) string {
	var e apiError
	if err := json.Unmarshal(body, &e); err == nil && e.Detail != "" {
		return e.Detail
	}
	return strings.TrimSpace(string(body))
}

package filter

import (
	"context"

	"github.com/osa030/autodj/internal/domain/track"
)

// AnalyzedFilter rejects tracks whose analysis has not completed.
type AnalyzedFilter struct{}

func (f *AnalyzedFilter) Name() string {
	return "analyzed_filter"
}

func (f *AnalyzedFilter) Description() string {
	return "Rejects tracks without BPM/energy analysis"
}

func (f *AnalyzedFilter) ReturnCodes() []string {
	return []string{"not_analyzed"}
}

func (f *AnalyzedFilter) ValidateConfig(settings map[string]any) error {
	return nil
}

func (f *AnalyzedFilter) Check(ctx context.Context, t track.Track) Result {
	if !t.Analyzed {
		return Reject("not_analyzed")
	}
	return Accept()
}

// NotDeletedFilter rejects soft-deleted tracks.
type NotDeletedFilter struct{}

func (f *NotDeletedFilter) Name() string {
	return "not_deleted_filter"
}

func (f *NotDeletedFilter) Description() string {
	return "Rejects tracks that are in the trash"
}

func (f *NotDeletedFilter) ReturnCodes() []string {
	return []string{"deleted"}
}

func (f *NotDeletedFilter) ValidateConfig(settings map[string]any) error {
	return nil
}

func (f *NotDeletedFilter) Check(ctx context.Context, t track.Track) Result {
	if t.Deleted {
		return Reject("deleted")
	}
	return Accept()
}

func init() {
	Register("analyzed_filter", func() Filter {
		return &AnalyzedFilter{}
	})
	Register("not_deleted_filter", func() Filter {
		return &NotDeletedFilter{}
	})
}

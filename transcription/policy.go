package transcription

import (
	"fmt"
	"sort"

	"github.com/nijaru/autoclip/config"
	"github.com/nijaru/autoclip/models"
)

// Policy selects which segments drive clip generation. It is the only place
// segments are reordered or dropped.
type Policy interface {
	Name() string
	Apply(segments []models.Segment) []models.Segment
}

func NewPolicy(name string, limit int) (Policy, error) {
	switch name {
	case "", config.PolicyAll:
		return AllSegments{}, nil
	case config.PolicyLongest:
		if limit <= 0 {
			return nil, fmt.Errorf("segment limit must be positive, got %d", limit)
		}
		return LongestSegments{Limit: limit}, nil
	default:
		return nil, fmt.Errorf("unknown segment policy %q", name)
	}
}

// AllSegments keeps every segment in the order the model produced them.
type AllSegments struct{}

func (AllSegments) Name() string { return config.PolicyAll }

func (AllSegments) Apply(segments []models.Segment) []models.Segment {
	return segments
}

// LongestSegments keeps the Limit longest segments, preferring the earlier
// one on equal length, and returns them in chronological order.
type LongestSegments struct {
	Limit int
}

func (LongestSegments) Name() string { return config.PolicyLongest }

func (p LongestSegments) Apply(segments []models.Segment) []models.Segment {
	if len(segments) <= p.Limit {
		return segments
	}

	idx := make([]int, len(segments))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return segments[idx[a]].Duration() > segments[idx[b]].Duration()
	})

	keep := idx[:p.Limit]
	sort.Ints(keep)

	out := make([]models.Segment, 0, p.Limit)
	for _, i := range keep {
		out = append(out, segments[i])
	}
	return out
}

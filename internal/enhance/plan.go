// Package enhance decides which loudness filters a generated file needs and applies them.
package enhance

import (
	"strings"

	"github.com/book-expert/vibe-creator/internal/core"
)

// Decision thresholds and fixed filter parameters.
const (
	// LowBitRateThreshold is the bit rate (bits/s) under which gain is added.
	// Unknown bit rates (0) fall under it.
	LowBitRateThreshold = 300000
	// GainDB is the fixed boost applied to quiet sources.
	GainDB = 6

	filterDynaudnorm = "dynaudnorm"
	paramsDynaudnorm = "f=200:g=15"
	filterVolume     = "volume"
	paramsVolume     = "6dB"
	filterSeparator  = ","

	// OutputCodec is the lossless codec every enhanced file is written with.
	OutputCodec = "pcm_s16le"
	// OutputExtension is the container of every enhanced file.
	OutputExtension = ".wav"
)

// Human-readable actions recorded in the plan.
const (
	ActionNormalize       = "Dynamic normalization (dynaudnorm)"
	ActionGain            = "Volume increased by +6 dB"
	ActionVolumeUnchanged = "Volume unchanged (already loud)"
	ActionExportWAV       = "Exported as lossless WAV (pcm_s16le)"
)

// Filter is one named ffmpeg audio filter with its option string.
type Filter struct {
	Name   string
	Params string
}

func (f Filter) String() string {
	if f.Params == "" {
		return f.Name
	}

	return f.Name + "=" + f.Params
}

// Plan is the derived, deterministic post-processing recipe for one file.
type Plan struct {
	Filters   []Filter
	Actions   []string
	Codec     string
	Extension string
}

// FilterChain renders the filters as a single ffmpeg -af expression.
func (p Plan) FilterChain() string {
	parts := make([]string, len(p.Filters))
	for i, filter := range p.Filters {
		parts[i] = filter.String()
	}

	return strings.Join(parts, filterSeparator)
}

// Analyze derives the enhancement plan for info. A nil info means the file's
// properties are unknown and is treated like an unknown (low) bit rate.
//
// The plan does not look at whether the file was already enhanced; running it
// twice stacks the filters again.
func Analyze(info *core.StreamInfo) Plan {
	plan := Plan{
		Filters:   []Filter{{Name: filterDynaudnorm, Params: paramsDynaudnorm}},
		Actions:   []string{ActionNormalize},
		Codec:     OutputCodec,
		Extension: OutputExtension,
	}

	if info == nil || info.BitRate < LowBitRateThreshold {
		plan.Filters = append(plan.Filters, Filter{Name: filterVolume, Params: paramsVolume})
		plan.Actions = append(plan.Actions, ActionGain)
	} else {
		plan.Actions = append(plan.Actions, ActionVolumeUnchanged)
	}

	plan.Actions = append(plan.Actions, ActionExportWAV)

	return plan
}

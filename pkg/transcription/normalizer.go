package transcription

import (
	"fmt"
	"strings"
	"time"

	"github.com/ekaya-inc/agenda-sync/pkg/models"
)

// DefaultMergeGap is the largest silence between two same-speaker segments
// that still merges them into one utterance.
const DefaultMergeGap = 1500 * time.Millisecond

// Drop reasons reported for malformed segments.
const (
	DropEmptyText     = "empty_text"
	DropMissingStart  = "missing_start"
	DropMissingEnd    = "missing_end"
	DropNegativeRange = "end_before_start"
)

// NormalizerOptions tunes Normalize.
type NormalizerOptions struct {
	MergeGap time.Duration
}

// Normalize canonicalizes speaker labels to "Speaker 1".."Speaker N" in
// order of first appearance and merges adjacent same-speaker segments whose
// gap is below the merge threshold. Malformed segments are dropped and
// reported; they never abort the transcript.
//
// An empty speaker label (non-diarized input) counts as one speaker.
func Normalize(segments []models.RawSegment, opts NormalizerOptions) models.NormalizedTranscript {
	gap := opts.MergeGap
	if gap <= 0 {
		gap = DefaultMergeGap
	}
	gapMs := gap.Milliseconds()

	out := models.NormalizedTranscript{Utterances: []models.Utterance{}}
	labels := make(map[string]string)

	for i, seg := range segments {
		if reason := checkSegment(seg); reason != "" {
			out.Dropped = append(out.Dropped, models.DroppedSegment{Index: i, Reason: reason})
			continue
		}

		raw := strings.TrimSpace(seg.Speaker)
		speaker, ok := labels[raw]
		if !ok {
			speaker = fmt.Sprintf("Speaker %d", len(labels)+1)
			labels[raw] = speaker
		}

		text := collapseSpaces(seg.Text)
		start, end := *seg.StartMs, *seg.EndMs

		if n := len(out.Utterances); n > 0 {
			last := &out.Utterances[n-1]
			if last.Speaker == speaker && start-last.EndMs < gapMs {
				last.Text += " " + text
				if end > last.EndMs {
					last.EndMs = end
				}
				continue
			}
		}

		out.Utterances = append(out.Utterances, models.Utterance{
			Index:   len(out.Utterances),
			Speaker: speaker,
			Text:    text,
			StartMs: start,
			EndMs:   end,
		})
	}

	return out
}

func checkSegment(seg models.RawSegment) string {
	switch {
	case strings.TrimSpace(seg.Text) == "":
		return DropEmptyText
	case seg.StartMs == nil:
		return DropMissingStart
	case seg.EndMs == nil:
		return DropMissingEnd
	case *seg.EndMs < *seg.StartMs:
		return DropNegativeRange
	}
	return ""
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

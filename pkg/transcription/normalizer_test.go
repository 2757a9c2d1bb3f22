package transcription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/agenda-sync/pkg/models"
)

func ms(v int64) *int64 { return &v }

func seg(speaker, text string, start, end int64) models.RawSegment {
	return models.RawSegment{Speaker: speaker, Text: text, StartMs: ms(start), EndMs: ms(end)}
}

func TestNormalize_CanonicalizesSpeakersInOrderOfAppearance(t *testing.T) {
	out := Normalize([]models.RawSegment{
		seg("B", "Buenos días", 0, 1000),
		seg("A", "Hola, ¿cómo están?", 5000, 6000),
		seg("B", "Bien, gracias", 10000, 11000),
	}, NormalizerOptions{})

	require.Len(t, out.Utterances, 3)
	assert.Equal(t, "Speaker 1", out.Utterances[0].Speaker)
	assert.Equal(t, "Speaker 2", out.Utterances[1].Speaker)
	assert.Equal(t, "Speaker 1", out.Utterances[2].Speaker)
	for i, u := range out.Utterances {
		assert.Equal(t, i, u.Index)
	}
	assert.Empty(t, out.Dropped)
}

func TestNormalize_MergesAdjacentSameSpeakerBelowGap(t *testing.T) {
	out := Normalize([]models.RawSegment{
		seg("A", "Agendemos el diagnóstico", 0, 2000),
		seg("A", "para el martes", 2500, 4000),
		seg("A", "a las 9:30", 7000, 8000), // 3s gap: not merged
		seg("B", "Perfecto", 8100, 9000),
	}, NormalizerOptions{MergeGap: 1500 * time.Millisecond})

	require.Len(t, out.Utterances, 3)
	assert.Equal(t, "Agendemos el diagnóstico para el martes", out.Utterances[0].Text)
	assert.Equal(t, int64(0), out.Utterances[0].StartMs)
	assert.Equal(t, int64(4000), out.Utterances[0].EndMs)
	assert.Equal(t, "a las 9:30", out.Utterances[1].Text)
	assert.Equal(t, "Speaker 2", out.Utterances[2].Speaker)
}

func TestNormalize_DoesNotMergeAcrossOtherSpeakers(t *testing.T) {
	out := Normalize([]models.RawSegment{
		seg("A", "uno", 0, 100),
		seg("B", "dos", 150, 200),
		seg("A", "tres", 250, 300),
	}, NormalizerOptions{})

	require.Len(t, out.Utterances, 3)
}

func TestNormalize_DropsMalformedSegments(t *testing.T) {
	out := Normalize([]models.RawSegment{
		seg("A", "válido", 0, 1000),
		{Speaker: "A", Text: "   ", StartMs: ms(1000), EndMs: ms(2000)},
		{Speaker: "B", Text: "sin inicio", EndMs: ms(3000)},
		{Speaker: "B", Text: "sin fin", StartMs: ms(3000)},
		seg("B", "al revés", 5000, 4000),
		seg("C", "también válido", 6000, 7000),
	}, NormalizerOptions{})

	require.Len(t, out.Utterances, 2)
	assert.Equal(t, "Speaker 1", out.Utterances[0].Speaker)
	assert.Equal(t, "Speaker 2", out.Utterances[1].Speaker, "dropped segments do not claim a speaker number")
	assert.Equal(t, []models.DroppedSegment{
		{Index: 1, Reason: DropEmptyText},
		{Index: 2, Reason: DropMissingStart},
		{Index: 3, Reason: DropMissingEnd},
		{Index: 4, Reason: DropNegativeRange},
	}, out.Dropped)
}

func TestNormalize_EmptySpeakerIsOneSpeaker(t *testing.T) {
	out := Normalize([]models.RawSegment{
		seg("", "primera frase", 0, 1000),
		seg("", "segunda frase", 10000, 11000),
	}, NormalizerOptions{})

	require.Len(t, out.Utterances, 2)
	assert.Equal(t, "Speaker 1", out.Utterances[0].Speaker)
	assert.Equal(t, "Speaker 1", out.Utterances[1].Speaker)
}

func TestNormalize_CollapsesWhitespace(t *testing.T) {
	out := Normalize([]models.RawSegment{seg("A", "  hola \n  mundo ", 0, 10)}, NormalizerOptions{})

	require.Len(t, out.Utterances, 1)
	assert.Equal(t, "hola mundo", out.Utterances[0].Text)
}

func TestNormalize_EmptyInput(t *testing.T) {
	out := Normalize(nil, NormalizerOptions{})

	assert.NotNil(t, out.Utterances)
	assert.Empty(t, out.Utterances)
	assert.Empty(t, out.Dropped)
}

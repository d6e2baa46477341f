package subtitle

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWords(t *testing.T) {
	segments := []Segment{
		{Start: 10, End: 14, Text: "  bonjour tout le monde "},
		{Start: 14, End: 16, Text: ""},
		{Start: 30, End: 32, Text: "hors fenetre"},
	}

	words := Words(segments, 10, 20)
	require.Len(t, words, 4)

	assert.Equal(t, "BONJOUR", words[0].Text)
	assert.InDelta(t, 0, words[0].Start, 0.001)
	assert.InDelta(t, 1, words[0].End, 0.001)

	assert.Equal(t, "MONDE", words[3].Text)
	assert.InDelta(t, 3, words[3].Start, 0.001)
	assert.InDelta(t, 4, words[3].End, 0.001)
}

func TestWords_ClipsToWindow(t *testing.T) {
	// Segment straddles the window start; early words vanish, the boundary
	// word is truncated to zero-length and dropped too.
	segments := []Segment{{Start: 8, End: 12, Text: "un deux trois quatre"}}

	words := Words(segments, 10, 20)
	require.Len(t, words, 2)
	assert.Equal(t, "TROIS", words[0].Text)
	assert.InDelta(t, 0, words[0].Start, 0.001)
	assert.InDelta(t, 1, words[0].End, 0.001)
	assert.Equal(t, "QUATRE", words[1].Text)
}

func TestWords_Empty(t *testing.T) {
	assert.Empty(t, Words(nil, 0, 10))
	assert.Empty(t, Words([]Segment{{Start: 0, End: 1, Text: "   "}}, 0, 10))
}

func TestKaraokeASS_Header(t *testing.T) {
	script := KaraokeASS(nil, 0, 10)

	assert.Contains(t, script, "PlayResX: 1080")
	assert.Contains(t, script, "PlayResY: 1920")
	assert.Contains(t, script, "Style: Normal,Impact,110,&H00FFFFFF")
	assert.Contains(t, script, "Style: Highlight,Impact,110,&H0000FFFF")
	assert.NotContains(t, script, "Dialogue:")
}

func TestKaraokeASS_OneDialoguePerWord(t *testing.T) {
	segments := []Segment{
		{Start: 0, End: 4, Text: "un deux trois quatre"},
		{Start: 4, End: 6, Text: "cinq six"},
	}

	script := KaraokeASS(segments, 0, 10)
	dialogues := 0
	for _, line := range strings.Split(script, "\n") {
		if strings.HasPrefix(line, "Dialogue:") {
			dialogues++
		}
	}
	assert.Equal(t, 6, dialogues)
}

func TestKaraokeASS_HighlightRotates(t *testing.T) {
	segments := []Segment{{Start: 0, End: 4, Text: "un deux trois quatre"}}

	script := KaraokeASS(segments, 0, 10)

	// First card window: UN highlighted, two lines of two words.
	assert.Contains(t, script,
		`Dialogue: 0,0:00:00.00,0:00:01.00,Normal,,0,0,0,,{\rHighlight}UN{\rNormal} DEUX\NTROIS QUATRE`)
	// Third word's window highlights on the second line.
	assert.Contains(t, script,
		`Dialogue: 0,0:00:02.00,0:00:03.00,Normal,,0,0,0,,UN DEUX\N{\rHighlight}TROIS{\rNormal} QUATRE`)
}

func TestKaraokeASS_PartialCard(t *testing.T) {
	segments := []Segment{{Start: 0, End: 3, Text: "un deux trois"}}

	script := KaraokeASS(segments, 0, 10)
	assert.Contains(t, script, `UN DEUX\N{\rHighlight}TROIS{\rNormal}`)
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "0:00:00.00", formatTime(0))
	assert.Equal(t, "0:00:05.25", formatTime(5.25))
	assert.Equal(t, "0:01:30.50", formatTime(90.5))
	assert.Equal(t, "1:02:03.00", formatTime(3723))
}

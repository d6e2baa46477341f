// Package subtitle builds karaoke-style ASS scripts for vertical short
// clips: every word gets one dialogue card window with the current word
// restyled, so playback reads as word-by-word highlighting.
package subtitle

import (
	"fmt"
	"strings"
)

// Layout of a subtitle card. Four words are visible at a time, split over
// two centered lines.
const (
	wordsPerLine = 2
	linesPerCard = 2
	wordsPerCard = wordsPerLine * linesPerCard
)

// assHeader targets a 1080x1920 canvas. Normal is the white resting style,
// Highlight the yellow style applied to the word being spoken. Both use
// Impact 110 bold with a 5px outline, centered (alignment 5).
const assHeader = `[Script Info]
Title: Karaoke Subtitles
ScriptType: v4.00+
PlayResX: 1080
PlayResY: 1920

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Normal,Impact,110,&H00FFFFFF,&H00FFFFFF,&H00000000,&H00000000,1,0,0,0,100,100,0,0,1,5,0,5,40,40,0,1
Style: Highlight,Impact,110,&H0000FFFF,&H0000FFFF,&H00000000,&H00000000,1,0,0,0,100,100,0,0,1,5,0,5,40,40,0,1

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
`

// Segment is a transcript span with absolute timestamps in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Word is a single display word with timestamps relative to the clip start.
type Word struct {
	Text  string
	Start float64
	End   float64
}

// Words flattens transcript segments overlapping the [start, end] window
// into uppercased words. Segment-level timestamps are divided evenly across
// the segment's words, then rebased relative to the window; words squeezed
// out entirely by the clipping are dropped.
func Words(segments []Segment, start, end float64) []Word {
	var words []Word

	for _, seg := range segments {
		text := strings.ToUpper(strings.TrimSpace(seg.Text))
		if text == "" {
			continue
		}
		if seg.End < start || seg.Start > end {
			continue
		}

		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		wordDuration := (seg.End - seg.Start) / float64(len(fields))

		for i, field := range fields {
			wordStart := seg.Start + float64(i)*wordDuration
			wordEnd := wordStart + wordDuration

			relStart := wordStart - start
			if relStart < 0 {
				relStart = 0
			}
			relEnd := wordEnd - start
			if max := end - start; relEnd > max {
				relEnd = max
			}
			if relEnd <= relStart {
				continue
			}

			words = append(words, Word{Text: field, Start: relStart, End: relEnd})
		}
	}

	return words
}

// KaraokeASS renders the full ASS script for the clip window. One dialogue
// line is emitted per word, showing that word's whole card with the word
// itself switched to the Highlight style.
func KaraokeASS(segments []Segment, start, end float64) string {
	var sb strings.Builder
	sb.WriteString(assHeader)

	words := Words(segments, start, end)
	for cardStart := 0; cardStart < len(words); cardStart += wordsPerCard {
		card := words[cardStart:min(cardStart+wordsPerCard, len(words))]

		for highlightIdx, current := range card {
			parts := make([]string, len(card))
			for i, w := range card {
				if i == highlightIdx {
					parts[i] = `{\rHighlight}` + w.Text + `{\rNormal}`
				} else {
					parts[i] = w.Text
				}
			}

			lineText := strings.Join(parts[:min(wordsPerLine, len(parts))], " ")
			if len(parts) > wordsPerLine {
				lineText += `\N` + strings.Join(parts[wordsPerLine:], " ")
			}

			fmt.Fprintf(&sb, "Dialogue: 0,%s,%s,Normal,,0,0,0,,%s\n",
				formatTime(current.Start), formatTime(current.End), lineText)
		}
	}

	return sb.String()
}

// formatTime renders seconds as the ASS h:mm:ss.cc timestamp.
func formatTime(seconds float64) string {
	h := int(seconds) / 3600
	m := (int(seconds) % 3600) / 60
	s := seconds - float64(h*3600+m*60)
	return fmt.Sprintf("%d:%02d:%05.2f", h, m, s)
}

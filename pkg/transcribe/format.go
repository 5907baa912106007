package transcribe

import (
	"fmt"
	"strings"
)

// speakerID distinguishes attributed speakers from the UNKNOWN bucket used
// when diarization yields no label before the first attributed word.
type speakerID struct {
	known bool
	id    int
}

func (s speakerID) label() string {
	if !s.known {
		return "SPEAKER_UNKNOWN"
	}
	return fmt.Sprintf("SPEAKER_%d", s.id)
}

// FormatDiarized converts word-level speaker labels into one line per
// speaker turn:
//
//	SPEAKER_0: How are you today?
//	SPEAKER_1: Doing well, thanks.
//
// Words without a speaker inherit the current speaker; leading unattributed
// words become SPEAKER_UNKNOWN. Punctuated words are preferred when
// smart_format supplies them.
func FormatDiarized(words []Word) string {
	var (
		lines     []string
		current   *speakerID
		lineWords []string
	)

	flush := func() {
		if len(lineWords) == 0 {
			return
		}
		lines = append(lines, current.label()+": "+strings.Join(lineWords, " "))
		lineWords = nil
	}

	for _, w := range words {
		text := w.PunctuatedWord
		if text == "" {
			text = w.Word
		}
		if text == "" {
			continue
		}

		var sp speakerID
		switch {
		case w.Speaker != nil:
			sp = speakerID{known: true, id: *w.Speaker}
		case current != nil:
			sp = *current
		default:
			sp = speakerID{known: false}
		}

		if current == nil || sp != *current {
			flush()
			cur := sp
			current = &cur
		}
		lineWords = append(lineWords, text)
	}
	flush()

	return strings.Join(lines, "\n")
}

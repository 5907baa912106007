package cleaner

import (
	"strings"
	"unicode"
)

// DefaultMaxChunkWords bounds how much text goes into a single cleaning call.
// Long monologues degrade edit quality and risk output truncation.
const DefaultMaxChunkWords = 500

// SplitLongTurns splits any speaker turn longer than maxWords into multiple
// chunks, preferring sentence boundaries. Turns at or under the limit pass
// through unchanged, one chunk per line. Every chunk of a split turn repeats
// the turn's speaker label so diarization survives chunking.
func SplitLongTurns(lines []string, maxWords int) []string {
	if maxWords <= 0 {
		maxWords = DefaultMaxChunkWords
	}
	var chunks []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(strings.Fields(line)) <= maxWords {
			chunks = append(chunks, line)
			continue
		}
		label, rest := speakerLabel(line)
		for _, chunk := range splitLine(rest, maxWords) {
			if label != "" {
				chunk = label + " " + chunk
			}
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

// speakerLabel splits off a leading "SPEAKER_<n>:" label, returning the label
// and the remainder. Lines without one return an empty label.
func speakerLabel(line string) (label, rest string) {
	if !strings.HasPrefix(line, "SPEAKER_") {
		return "", line
	}
	colon := strings.Index(line, ":")
	if colon < 0 {
		return "", line
	}
	return line[:colon+1], strings.TrimSpace(line[colon+1:])
}

func splitLine(line string, maxWords int) []string {
	var (
		chunks    []string
		current   []string
		wordCount int
	)
	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
			current = nil
			wordCount = 0
		}
	}
	for _, sentence := range splitSentences(line) {
		n := len(strings.Fields(sentence))
		if n > maxWords {
			// A single run-on sentence over the limit gets hard-split.
			flush()
			words := strings.Fields(sentence)
			for len(words) > maxWords {
				chunks = append(chunks, strings.Join(words[:maxWords], " "))
				words = words[maxWords:]
			}
			if len(words) > 0 {
				current = words
				wordCount = len(words)
			}
			continue
		}
		if wordCount+n > maxWords {
			flush()
		}
		current = append(current, sentence)
		wordCount += n
	}
	flush()
	return chunks
}

// splitSentences breaks text at terminal punctuation followed by whitespace.
func splitSentences(text string) []string {
	var (
		sentences []string
		start     int
	)
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?':
			end := i + 1
			for end < len(runes) && (runes[end] == '.' || runes[end] == '!' || runes[end] == '?') {
				end++
			}
			if end >= len(runes) || unicode.IsSpace(runes[end]) {
				s := strings.TrimSpace(string(runes[start:end]))
				if s != "" {
					sentences = append(sentences, s)
				}
				start = end
				i = end - 1
			}
		}
	}
	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

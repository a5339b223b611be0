package app

import "unicode"

// ChunkText splits HTML-mode text into pieces of at most limit runes,
// preferring to cut at the last newline inside the window. A cut never
// lands inside a tag or an entity. Leading and trailing whitespace of each
// remainder is dropped.
func ChunkText(text string, limit int) []string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return []string{text}
	}

	chunks := make([]string, 0, len(runes)/limit+1)
	for len(runes) > 0 {
		if len(runes) <= limit {
			chunks = append(chunks, string(runes))
			break
		}
		split := lastNewline(runes[:limit])
		if split <= 0 {
			split = limit
		}
		split = htmlSafeCut(runes, split)
		chunks = append(chunks, string(runes[:split]))
		runes = trimSpace(runes[split:])
	}
	return chunks
}

// maxEntityLen covers named and numeric entities such as &quot; or &#128240;.
const maxEntityLen = 10

// htmlSafeCut moves split back to the start of a tag or entity that the
// window would leave open. A tag starting at 0 cannot be moved before.
func htmlSafeCut(runes []rune, split int) int {
	for {
		moved := false
		lastOpen, lastClose := -1, -1
		for i := 0; i < split; i++ {
			switch runes[i] {
			case '<':
				lastOpen = i
			case '>':
				lastClose = i
			}
		}
		if lastOpen > lastClose && lastOpen > 0 {
			split = lastOpen
			moved = true
		}
		if amp := openEntity(runes[:split]); amp > 0 {
			split = amp
			moved = true
		}
		if !moved {
			return split
		}
	}
}

// openEntity returns the index of a trailing '&' whose entity is cut off.
func openEntity(window []rune) int {
	for i := len(window) - 1; i >= 0 && len(window)-i <= maxEntityLen; i-- {
		r := window[i]
		switch {
		case r == '&':
			return i
		case r == '#' || unicode.IsLetter(r) || unicode.IsDigit(r):
			continue
		default:
			return -1
		}
	}
	return -1
}

func lastNewline(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == '\n' {
			return i
		}
	}
	return -1
}

func trimSpace(runes []rune) []rune {
	start, end := 0, len(runes)
	for start < end && unicode.IsSpace(runes[start]) {
		start++
	}
	for end > start && unicode.IsSpace(runes[end-1]) {
		end--
	}
	return runes[start:end]
}

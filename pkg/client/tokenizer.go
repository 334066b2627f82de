package client

import "unicode"

// markerRunes are markdown formatting characters that form their own reveal
// units: headings, code fences, emphasis, blockquotes, strikethrough.
var markerRunes = map[rune]bool{
	'#': true,
	'`': true,
	'*': true,
	'_': true,
	'>': true,
	'~': true,
	'-': true,
}

// SplitUnits splits text into atomic reveal units: newline runs, other
// whitespace runs, runs of a single markdown marker character, and words.
// Formatting markers are never split mid-token, so progressive reveal cannot
// produce a half-opened code fence or emphasis span.
func SplitUnits(text string) []string {
	runes := []rune(text)
	units := make([]string, 0, len(runes)/4+1)

	i := 0
	for i < len(runes) {
		j := i
		switch r := runes[i]; {
		case r == '\n' || r == '\r':
			for j < len(runes) && (runes[j] == '\n' || runes[j] == '\r') {
				j++
			}
		case unicode.IsSpace(r):
			for j < len(runes) && unicode.IsSpace(runes[j]) && runes[j] != '\n' && runes[j] != '\r' {
				j++
			}
		case markerRunes[r]:
			// A marker run is homogeneous: "**" or "```", never "*`".
			for j < len(runes) && runes[j] == r {
				j++
			}
		default:
			for j < len(runes) && !unicode.IsSpace(runes[j]) && !markerRunes[runes[j]] {
				j++
			}
		}
		units = append(units, string(runes[i:j]))
		i = j
	}

	return units
}

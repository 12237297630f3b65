package reconcile

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var reBracketed = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]|\{[^}]*\}`)

// decorationTokens are stripped before comparing names: resolution and
// quality tags, codecs, audio variants and stream technology labels.
var decorationTokens = map[string]struct{}{
	"hd": {}, "sd": {}, "uhd": {}, "fhd": {}, "fullhd": {}, "hdr": {},
	"4k": {}, "8k": {}, "480": {}, "480p": {}, "576": {}, "576p": {},
	"720": {}, "720p": {}, "1080": {}, "1080p": {}, "1080i": {}, "2160p": {},
	"h264": {}, "h265": {}, "x264": {}, "x265": {}, "hevc": {}, "avc": {},
	"multi": {}, "multiaudio": {}, "multilenguaje": {}, "dual": {},
	"ace": {}, "acestream": {},
}

// decorationPairs are two-word decorations ("full hd", "multi audio").
var decorationPairs = map[[2]string]struct{}{
	{"full", "hd"}:     {},
	{"multi", "audio"}: {},
}

// foldCase lower-cases s using Unicode case folding.
func foldCase(s string) string {
	return cases.Fold().String(s)
}

// stripAccents removes combining marks ("Fútbol" -> "Futbol").
func stripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Normalize reduces a channel name to the form used for similarity scoring:
// case-folded, accent-free, bracketed segments and decoration tokens removed,
// punctuation turned into spaces and whitespace collapsed.
func Normalize(name string) string {
	return strings.Join(tokens(name), " ")
}

func tokens(name string) []string {
	s := stripAccents(foldCase(name))
	s = reBracketed.ReplaceAllString(s, " ")
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
	fields := strings.Fields(s)
	out := make([]string, 0, len(fields))
	for i := 0; i < len(fields); i++ {
		if i+1 < len(fields) {
			if _, ok := decorationPairs[[2]string{fields[i], fields[i+1]}]; ok {
				i++
				continue
			}
		}
		if _, ok := decorationTokens[fields[i]]; ok {
			continue
		}
		out = append(out, splitDigits(fields[i])...)
	}
	return out
}

// splitDigits separates letter and digit runs so "espn2" and "espn 2"
// produce the same tokens.
func splitDigits(tok string) []string {
	var parts []string
	start := 0
	rs := []rune(tok)
	for i := 1; i < len(rs); i++ {
		if unicode.IsDigit(rs[i]) != unicode.IsDigit(rs[i-1]) {
			parts = append(parts, string(rs[start:i]))
			start = i
		}
	}
	return append(parts, string(rs[start:]))
}

// matchKey is the order-insensitive comparison key: sorted tokens joined
// without separators.
func matchKey(name string) []rune {
	toks := tokens(name)
	sort.Strings(toks)
	return []rune(strings.Join(toks, ""))
}

package retrieval

import "strings"

var arabicFolds = strings.NewReplacer(
	"أ", "ا",
	"إ", "ا",
	"آ", "ا",
	"ة", "ه",
	"ى", "ي",
)

// NormalizeArabic folds spelling variants that fragment matching: harakat
// (U+064B to U+0652) are removed, hamza-bearing alif becomes bare alif, ta
// marbuta becomes ha and alif maksura becomes ya.
func NormalizeArabic(text string) string {
	stripped := strings.Map(func(r rune) rune {
		if r >= 0x064B && r <= 0x0652 {
			return -1
		}
		return r
	}, text)
	return strings.TrimSpace(arabicFolds.Replace(stripped))
}

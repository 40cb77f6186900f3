package symbol

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// Bucket names the partition an entry is stored in.
type Bucket string

// CatchAll holds every key whose first character is not a letter.
const CatchAll Bucket = "#"

// BucketOf returns the bucket for a normalised key: the first rune when it is
// a letter, CatchAll otherwise.
func BucketOf(key string) Bucket {
	r, size := utf8.DecodeRuneInString(key)
	if size == 0 || r == utf8.RuneError || !unicode.IsLetter(r) {
		return CatchAll
	}
	return Bucket(string(r))
}

// Stem is the file-name-safe form of the bucket.
func (b Bucket) Stem() string {
	if b == CatchAll {
		return "other"
	}
	r, _ := utf8.DecodeRuneInString(string(b))
	if r >= 'a' && r <= 'z' {
		return string(r)
	}
	return fmt.Sprintf("u%04x", r)
}

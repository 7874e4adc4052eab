package words

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Reason codes for rejected submissions.
type Reason string

const (
	ReasonEmptyInput    Reason = "EMPTY_INPUT"
	ReasonNonAlpha      Reason = "NON_ALPHA"
	ReasonNotAWord      Reason = "NOT_A_WORD"
	ReasonAlreadyUsed   Reason = "ALREADY_USED"
	ReasonMissingLetter Reason = "MISSING_LETTER"
)

// Verdict is the outcome of validating a single submission.
type Verdict struct {
	OK     bool
	Reason Reason
	// Word is the canonical (lowercase) form; callers store this in the
	// player's used-word set on OK.
	Word string
}

// Dictionary is an immutable lowercase word set loaded once at startup.
type Dictionary struct {
	words map[string]struct{}
}

// Load reads a newline-delimited word list.
func Load(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dictionary: %w", err)
	}
	defer f.Close()

	words := make(map[string]struct{})
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		w := strings.ToLower(strings.TrimSpace(sc.Text()))
		if w != "" {
			words[w] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("dictionary %s is empty", path)
	}
	return &Dictionary{words: words}, nil
}

// NewDictionary builds a dictionary from an in-memory word list. Used by tests.
func NewDictionary(list []string) *Dictionary {
	words := make(map[string]struct{}, len(list))
	for _, w := range list {
		words[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return &Dictionary{words: words}
}

// Contains reports dictionary membership for the lowercase form of w.
func (d *Dictionary) Contains(w string) bool {
	_, ok := d.words[strings.ToLower(w)]
	return ok
}

// Len returns the number of loaded words.
func (d *Dictionary) Len() int { return len(d.words) }

// Validate checks a submission against the dictionary, the player's required
// letters and their used-word set. Pure: mutating usedWords/points on OK is the
// caller's job. Comparison is case-insensitive; duplicate letters in required
// are not separately required ("contains", not "contains N times").
func (d *Dictionary) Validate(word, required string, used map[string]struct{}) Verdict {
	w := strings.ToLower(strings.TrimSpace(word))
	req := strings.ToLower(strings.TrimSpace(required))

	if w == "" || req == "" {
		return Verdict{Reason: ReasonEmptyInput}
	}
	if !alphabetic(w) || !alphabetic(req) {
		return Verdict{Reason: ReasonNonAlpha}
	}
	if _, ok := d.words[w]; !ok {
		return Verdict{Reason: ReasonNotAWord, Word: w}
	}
	if _, dup := used[w]; dup {
		return Verdict{Reason: ReasonAlreadyUsed, Word: w}
	}
	for _, r := range req {
		if !strings.ContainsRune(w, r) {
			return Verdict{Reason: ReasonMissingLetter, Word: w}
		}
	}
	return Verdict{OK: true, Word: w}
}

func alphabetic(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

package scanner

// Rules configures the candidate validator.
type Rules struct {
	MinLength      int
	MaxLength      int // 0 means no upper bound
	MinDistinct    int // reject when fewer distinct characters are used...
	DiversityFloor int // ...and the code is longer than this
	Strict         bool
}

// DefaultRules returns the [6, 50] rule set used by the shell.
func DefaultRules() Rules {
	return Rules{
		MinLength:      6,
		MaxLength:      50,
		MinDistinct:    3,
		DiversityFloor: 4,
	}
}

// LegacyRules returns the permissive [4, ∞) rule set.
func LegacyRules() Rules {
	return Rules{
		MinLength:      4,
		MinDistinct:    2,
		DiversityFloor: 4,
	}
}

// Validate reports whether a raw decoder candidate is plausible enough to track.
// It runs in a single pass over the input and does not allocate.
func (r Rules) Validate(code string) bool {
	n := len(code)
	if n == 0 {
		return false
	}
	if n < r.MinLength || (r.MaxLength > 0 && n > r.MaxLength) {
		return false
	}
	if r.Strict && !isDigit(code[0]) {
		return false
	}

	var seen [128]bool
	distinct := 0
	run := 1
	ascending, descending := true, true

	for i := 0; i < n; i++ {
		c := code[i]
		if !allowed(c) {
			return false
		}
		if !seen[c] {
			seen[c] = true
			distinct++
		}
		if i == 0 {
			ascending = isDigit(c)
			descending = ascending
			continue
		}
		prev := code[i-1]
		if c == prev {
			run++
			if r.Strict && run >= 5 {
				return false
			}
		} else {
			run = 1
		}
		if !isDigit(c) || c != prev+1 {
			ascending = false
		}
		if !isDigit(c) || c+1 != prev {
			descending = false
		}
	}

	if distinct < r.MinDistinct && n > r.DiversityFloor {
		return false
	}
	if r.Strict && n > 1 && (ascending || descending) {
		return false
	}
	return true
}

func allowed(c byte) bool {
	switch {
	case c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c == '-', c == '_', c == '.', c == '/':
		return true
	}
	return false
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

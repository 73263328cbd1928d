// Package match implements the glob dialect used by the scan commands:
// '*' matches any run of bytes, '?' any single byte, '[...]' a byte
// class (with '^' negation and 'a-z' ranges) and '\\' escapes the next
// byte. Matching is byte-oriented; keys are not assumed to be UTF-8.
package match

// StringMatch reports whether s matches pattern.
func StringMatch(pattern, s string) bool {
	return matchBytes(pattern, s)
}

func matchBytes(pattern, s string) bool {
	p, n := 0, 0
	starP, starN := -1, 0
	for n < len(s) {
		if p < len(pattern) {
			switch pattern[p] {
			case '*':
				starP, starN = p, n
				p++
				continue
			case '?':
				p++
				n++
				continue
			case '[':
				if ok, next := matchClass(pattern, p, s[n]); ok {
					p = next
					n++
					continue
				}
			case '\\':
				if p+1 < len(pattern) && pattern[p+1] == s[n] {
					p += 2
					n++
					continue
				}
			default:
				if pattern[p] == s[n] {
					p++
					n++
					continue
				}
			}
		}
		// Mismatch: backtrack to the last '*' and let it swallow one
		// more byte, if there is one.
		if starP >= 0 {
			starN++
			p, n = starP+1, starN
			continue
		}
		return false
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}

// matchClass matches c against the class starting at pattern[start]
// (which is '['). It returns whether c matched and the index just past
// the closing ']'. An unterminated class never matches.
func matchClass(pattern string, start int, c byte) (bool, int) {
	i := start + 1
	negate := false
	if i < len(pattern) && pattern[i] == '^' {
		negate = true
		i++
	}
	matched := false
	first := true
	for i < len(pattern) {
		if pattern[i] == ']' && !first {
			if matched != negate {
				return true, i + 1
			}
			return false, i + 1
		}
		first = false
		if pattern[i] == '\\' && i+1 < len(pattern) {
			i++
			if pattern[i] == c {
				matched = true
			}
			i++
			continue
		}
		if i+2 < len(pattern) && pattern[i+1] == '-' && pattern[i+2] != ']' {
			lo, hi := pattern[i], pattern[i+2]
			if lo > hi {
				lo, hi = hi, lo
			}
			if lo <= c && c <= hi {
				matched = true
			}
			i += 3
			continue
		}
		if pattern[i] == c {
			matched = true
		}
		i++
	}
	return false, len(pattern)
}

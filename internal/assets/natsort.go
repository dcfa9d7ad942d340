package assets

// naturalLess compares two strings treating embedded digit runs as
// integers, so "part_2" < "part_10" even though "10" < "2" byte-wise.
func naturalLess(a, b string) bool {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		ca, cb := a[i], b[j]
		da, db := isDigit(ca), isDigit(cb)

		switch {
		case da && db:
			// Compare the full digit runs numerically.
			ia := i
			for i < len(a) && isDigit(a[i]) {
				i++
			}
			jb := j
			for j < len(b) && isDigit(b[j]) {
				j++
			}

			// Strip leading zeros before comparing lengths.
			na := trimZeros(a[ia:i])
			nb := trimZeros(b[jb:j])
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			if na != nb {
				return na < nb
			}

		case da != db:
			return da // digits sort before letters

		default:
			if ca != cb {
				return ca < cb
			}
			i++
			j++
		}
	}

	return len(a)-i < len(b)-j
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func trimZeros(s string) string {
	for len(s) > 1 && s[0] == '0' {
		s = s[1:]
	}
	return s
}

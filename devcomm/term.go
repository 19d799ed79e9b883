package devcomm

import "bytes"

// TrimTerm removes the longest matching terminator among terms from the end of msg.
//
// Instruments that accept both CR and CRLF report lines whose exact terminator is
// unknown in advance; trimming the longest match handles both without leaving a
// stray CR behind.
func TrimTerm(msg []byte, terms [][]byte) []byte {
	longest := 0
	for _, term := range terms {
		if len(term) > longest && bytes.HasSuffix(msg, term) {
			longest = len(term)
		}
	}

	return msg[:len(msg)-longest]
}

// HasTerm reports whether msg ends with any of the given terminators.
func HasTerm(msg []byte, terms [][]byte) bool {
	for _, term := range terms {
		if len(term) > 0 && bytes.HasSuffix(msg, term) {
			return true
		}
	}

	return false
}

// AppendTerm returns data with term appended, without modifying data's backing array.
func AppendTerm(data []byte, term []byte) []byte {
	if len(term) == 0 {
		return data
	}

	out := make([]byte, 0, len(data)+len(term))
	out = append(out, data...)
	out = append(out, term...)

	return out
}

// SingleCharTerms reports whether every terminator in terms is a single byte.
// Single-byte terminator sets allow byte-at-a-time matching on the read path.
func SingleCharTerms(terms [][]byte) bool {
	for _, term := range terms {
		if len(term) != 1 {
			return false
		}
	}

	return true
}

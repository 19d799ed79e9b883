package devcomm

import (
	"context"
	"fmt"
)

// ChunkReader reads up to len(buf) bytes from a transport into buf, honoring the
// deadline carried by ctx. A return of (0, nil) indicates a timed-out poll with no
// data, matching the behavior of serial ports with a read timeout.
type ChunkReader func(ctx context.Context, buf []byte) (int, error)

// readChunkSize is the read granularity used when no terminator constrains the
// read. Terminator scans read a single byte at a time so the transport never
// consumes past the terminator.
const readChunkSize = 8

// ReadTermed reads from read until any of the given terminators is seen, returning
// the data including the terminator.
//
// With an empty terminator set it reads until the first timed-out poll and returns
// whatever arrived. errorOnTimeout controls whether a timeout with a non-empty
// terminator set produces an error or the partial data read so far.
func ReadTermed(ctx context.Context, read ChunkReader, terms [][]byte, errorOnTimeout bool) ([]byte, error) {
	var result []byte

	singleChar := SingleCharTerms(terms)
	chunk := make([]byte, readChunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		buf := chunk[:readChunkSize]
		if len(terms) > 0 {
			buf = chunk[:1]
		}

		n, err := read(ctx, buf)
		if err != nil {
			return result, err
		}
		result = append(result, buf[:n]...)

		if n == 0 {
			if errorOnTimeout && len(terms) > 0 {
				return result, fmt.Errorf("%w: no terminator received", ErrTimeout)
			}
			return result, nil
		}

		if len(terms) == 0 {
			continue
		}

		if singleChar {
			for _, t := range terms {
				if buf[0] == t[0] {
					return result, nil
				}
			}
		} else if HasTerm(result, terms) {
			return result, nil
		}
	}
}

// ReadTrimmedLine reads a single line delimited by terms, removes the terminator,
// and skips empty lines, in the manner line-oriented instruments expect.
func ReadTrimmedLine(ctx context.Context, read ChunkReader, terms [][]byte) ([]byte, error) {
	for {
		line, err := ReadTermed(ctx, read, terms, true)
		if err != nil {
			return nil, err
		}

		line = TrimTerm(line, terms)
		if len(line) > 0 || len(terms) == 0 {
			return line, nil
		}
	}
}

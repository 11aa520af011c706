// Package normalize cleans captured process output.
//
// Output read from a container attach channel can carry framing residue
// (stream headers, stray control bytes, byte-order marks) alongside the
// program's text. Clean strips that noise so results are stable and
// comparable. Clean is idempotent.
//
// Stdout and stderr arrive already demultiplexed (stdcopy for the docker
// engine, separate pipes for the CLI engine), so leading punctuation is
// program output and is kept; only control bytes are dropped.
package normalize

import (
	"strings"
	"unicode"
)

// Clean returns raw with framing noise and control characters removed,
// line endings normalized, each line trimmed, runs of blank lines collapsed
// to one and surrounding whitespace removed.
func Clean(raw string) string {
	if raw == "" {
		return ""
	}

	s := strings.ToValidUTF8(raw, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.Map(dropNoise, s)

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}

func dropNoise(r rune) rune {
	switch {
	case r == '\n' || r == '\t':
		return r
	case r == '\uFEFF' || r == unicode.ReplacementChar:
		return -1
	case unicode.IsControl(r):
		return -1
	}
	return r
}

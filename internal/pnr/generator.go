// Package pnr issues booking references of the form PPPXXXXXXXX: a fixed
// three-letter prefix followed by eight upper-case alphanumerics.
package pnr

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
)

const (
	alphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	bodyLength = 8
	// Bytes at or above this value are rejected so every symbol is equally likely.
	maxUnbiased = 256 - 256%len(alphabet)
)

type Generator interface {
	Next() (string, error)
}

type RandomGenerator struct {
	prefix string
	source io.Reader
}

func NewGenerator(prefix string) (*RandomGenerator, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if len(prefix) != 3 {
		return nil, fmt.Errorf("pnr prefix must be 3 letters, got %q", prefix)
	}
	for _, r := range prefix {
		if r < 'A' || r > 'Z' {
			return nil, fmt.Errorf("pnr prefix must be letters only, got %q", prefix)
		}
	}
	return &RandomGenerator{prefix: prefix, source: rand.Reader}, nil
}

func (g *RandomGenerator) Next() (string, error) {
	var sb strings.Builder
	sb.Grow(len(g.prefix) + bodyLength)
	sb.WriteString(g.prefix)

	buf := make([]byte, bodyLength*2)
	for sb.Len() < len(g.prefix)+bodyLength {
		if _, err := io.ReadFull(g.source, buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= maxUnbiased {
				continue
			}
			sb.WriteByte(alphabet[int(b)%len(alphabet)])
			if sb.Len() == len(g.prefix)+bodyLength {
				break
			}
		}
	}
	return sb.String(), nil
}

// Valid reports whether s has the shape of a reference issued with any prefix.
func Valid(s string) bool {
	if len(s) != 3+bodyLength {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
		case i >= 3 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

var _ Generator = (*RandomGenerator)(nil)

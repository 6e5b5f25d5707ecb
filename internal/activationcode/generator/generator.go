// Package generator draws human-transcribable activation codes.
//
// Codes look like MEM-7KQ2-XH9P: a fixed prefix followed by grouped
// characters from an alphabet without 0/O or 1/I.
package generator

import (
	"crypto/rand"
	"errors"
	"io"
	"strings"
)

// Alphabet has 32 symbols, so one random byte masked to 5 bits picks a symbol without bias.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

var ErrInvalidShape = errors.New("invalid_code_shape")

type Shape struct {
	Prefix    string
	Length    int
	GroupSize int
}

// DefaultShape yields MEM-XXXX-XXXX.
var DefaultShape = Shape{Prefix: "MEM", Length: 8, GroupSize: 4}

func (s Shape) Validate() error {
	if s.Length < 4 || s.Length > 32 {
		return ErrInvalidShape
	}
	if s.GroupSize < 0 || s.GroupSize > s.Length {
		return ErrInvalidShape
	}
	for _, r := range s.Prefix {
		if !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') {
			return ErrInvalidShape
		}
	}
	return nil
}

// Format renders body in shape, inserting separators between groups.
func (s Shape) Format(body string) string {
	var b strings.Builder
	if s.Prefix != "" {
		b.WriteString(s.Prefix)
		b.WriteByte('-')
	}
	for i := 0; i < len(body); i++ {
		if s.GroupSize > 0 && i > 0 && i%s.GroupSize == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(body[i])
	}
	return b.String()
}

// Matches reports whether code could have been produced in this shape.
func (s Shape) Matches(code string) bool {
	body, ok := strings.CutPrefix(code, s.prefixWithSeparator())
	if !ok {
		return false
	}
	body = strings.ReplaceAll(body, "-", "")
	if len(body) != s.Length {
		return false
	}
	if s.Format(body) != code {
		return false
	}
	for i := 0; i < len(body); i++ {
		if strings.IndexByte(Alphabet, body[i]) < 0 {
			return false
		}
	}
	return true
}

func (s Shape) prefixWithSeparator() string {
	if s.Prefix == "" {
		return ""
	}
	return s.Prefix + "-"
}

// Normalize upper-cases and trims user input before lookup.
func Normalize(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.ReplaceAll(code, " ", "")
}

// Random draws bodies from crypto/rand.
type Random struct {
	shape  Shape
	source io.Reader
}

func NewRandom(shape Shape) (*Random, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	return &Random{shape: shape, source: rand.Reader}, nil
}

func (g *Random) Shape() Shape { return g.shape }

func (g *Random) Next() (string, error) {
	buf := make([]byte, g.shape.Length)
	if _, err := io.ReadFull(g.source, buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = Alphabet[buf[i]&31]
	}
	return g.shape.Format(string(buf)), nil
}

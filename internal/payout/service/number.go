package service

import (
	"crypto/rand"
	"time"

	"github.com/smallbiznis/memoria/internal/activationcode/generator"
)

const payoutSuffixLength = 6

// NumberFunc produces a human-readable payout number for now.
type NumberFunc func(now time.Time) (string, error)

// RandomNumber yields PO-YYYYMMDD-XXXXXX with the unambiguous code alphabet.
func RandomNumber(now time.Time) (string, error) {
	buf := make([]byte, payoutSuffixLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	suffix := make([]byte, payoutSuffixLength)
	for i, b := range buf {
		suffix[i] = generator.Alphabet[int(b)%len(generator.Alphabet)]
	}
	return "PO-" + now.UTC().Format("20060102") + "-" + string(suffix), nil
}

package random

import (
	"crypto/rand"
	"errors"
	"fmt"
)

// ErrSourceUnavailable is returned when the entropy source cannot produce bytes
var ErrSourceUnavailable = errors.New("random source unavailable")

// Filler replaces every byte of buf with unpredictable data
type Filler interface {
	Fill(buf []byte) error
}

// FillerFunc adapts a plain function to the Filler interface
type FillerFunc func(buf []byte) error

func (f FillerFunc) Fill(buf []byte) error {
	return f(buf)
}

// CryptoFiller reads from the operating system CSPRNG on every call.
// It keeps no state between calls.
type CryptoFiller struct{}

func (CryptoFiller) Fill(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return nil
}

// Default returns the production filler
func Default() Filler {
	return CryptoFiller{}
}

package shred

import (
	"errors"
	"path/filepath"

	"secure-shred/internal/random"
)

// NameLength is the length of every generated replacement name
const NameLength = 32

// 32 symbols so that each random byte maps to one symbol without bias
const nameAlphabet = "abcdefghijklmnopqrstuvwxyz234567"

const maxNameAttempts = 16

var errNamesExhausted = errors.New("no free random name")

// RandomName returns a fresh identifier built from NameLength random bytes
func RandomName(filler random.Filler) (string, error) {
	var raw [NameLength]byte
	if err := fill(filler, raw[:]); err != nil {
		return "", err
	}
	var out [NameLength]byte
	for i, b := range raw {
		out[i] = nameAlphabet[b&31]
	}
	return string(out[:]), nil
}

// siblingPath places name in the same directory as path.
// A bare filename yields a bare name, never "/name".
func siblingPath(path, name string) string {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}

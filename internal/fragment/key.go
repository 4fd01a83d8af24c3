package fragment

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedKey indicates a storage key that is not a fragment key.
var ErrMalformedKey = errors.New("malformed fragment key")

// Header is the part of a FragmentRecord encoded in its storage key.
type Header struct {
	Generation uint64
	Sequence   uint64
	X, Y       int
	W, H       int
}

// GenerationPrefix returns the key prefix shared by all fragments of gen.
func GenerationPrefix(namespace string, gen uint64) string {
	return fmt.Sprintf("%s/%d/", namespace, gen)
}

// Key returns the storage key for h within namespace.
func (h Header) Key(namespace string) string {
	return fmt.Sprintf("%srect-%d-%d-%d-%d-%d.dat",
		GenerationPrefix(namespace, h.Generation), h.Sequence, h.X, h.Y, h.W, h.H)
}

// ParseKey recovers the namespace and header from a fragment key.
func ParseKey(key string) (string, Header, error) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 {
		return "", Header{}, fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	namespace, genPart, name := parts[0], parts[1], parts[2]

	gen, err := strconv.ParseUint(genPart, 10, 64)
	if err != nil {
		return "", Header{}, fmt.Errorf("%w: generation %q", ErrMalformedKey, genPart)
	}

	if !strings.HasPrefix(name, "rect-") || !strings.HasSuffix(name, ".dat") {
		return "", Header{}, fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	fields := strings.Split(strings.TrimSuffix(strings.TrimPrefix(name, "rect-"), ".dat"), "-")
	if len(fields) != 5 {
		return "", Header{}, fmt.Errorf("%w: %q has %d fields, want 5", ErrMalformedKey, name, len(fields))
	}

	seq, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return "", Header{}, fmt.Errorf("%w: sequence %q", ErrMalformedKey, fields[0])
	}
	var dims [4]int
	for i, f := range fields[1:] {
		v, err := strconv.Atoi(f)
		if err != nil || v < 0 {
			return "", Header{}, fmt.Errorf("%w: field %q in %q", ErrMalformedKey, f, name)
		}
		dims[i] = v
	}

	return namespace, Header{
		Generation: gen,
		Sequence:   seq,
		X:          dims[0],
		Y:          dims[1],
		W:          dims[2],
		H:          dims[3],
	}, nil
}

package ccrypto

import (
	"crypto/sha512"
	"io"
)

// determRandIter is the number of SHA-512 rounds applied to a seed before
// any output is produced, to slow down brute-forcing of weak seeds.
const determRandIter = 2048

// NewDetermRand returns an io.Reader producing a pseudo-random byte
// stream fully determined by seed. Each hash round yields half output,
// half next state.
func NewDetermRand(seed []byte) io.Reader {
	var out []byte
	next := seed
	for i := 0; i < determRandIter; i++ {
		next, out = hash(next)
	}
	return &determRand{next: next, out: out}
}

type determRand struct {
	next, out []byte
}

func (d *determRand) Read(b []byte) (int, error) {
	n := 0
	for n < len(b) {
		next, out := hash(d.next)
		n += copy(b[n:], out)
		d.next = next
	}
	return n, nil
}

func hash(input []byte) (next []byte, output []byte) {
	sum := sha512.Sum512(input)
	return sum[:sha512.Size/2], sum[sha512.Size/2:]
}

package transport

import (
	cryptorand "crypto/rand"
	"io"
	mathrand "math/rand"
)

// newSeededReader returns an io.Reader suitable as a ulid.Monotonic entropy
// source. seed==0 asks for a process-random source (production use); any
// other value yields a deterministic stream (tests that need reproducible
// envelope ids).
func newSeededReader(seed uint64) io.Reader {
	if seed == 0 {
		return cryptorand.Reader
	}
	return &mathRandReader{r: mathrand.New(mathrand.NewSource(int64(seed)))}
}

type mathRandReader struct {
	r *mathrand.Rand
}

func (m *mathRandReader) Read(p []byte) (int, error) {
	return m.r.Read(p)
}

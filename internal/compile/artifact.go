package compile

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Cached binaries are stored as magic, the sha256 of the source they were
// built from, then the zstd compressed binary.
var artifactMagic = []byte("ARW1")

const digestLen = sha256.Size

var codecs = sync.OnceValues(func() (*codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &codec{enc: enc, dec: dec}, nil
})

type codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func sourceDigest(source string) [digestLen]byte {
	return sha256.Sum256([]byte(source))
}

// EncodeArtifact packs a binary built from source for the cache.
func EncodeArtifact(source string, binary []byte) ([]byte, error) {
	c, err := codecs()
	if err != nil {
		return nil, fmt.Errorf("failed to init zstd: %w", err)
	}
	d := sourceDigest(source)
	out := make([]byte, 0, len(artifactMagic)+digestLen+len(binary)/2)
	out = append(out, artifactMagic...)
	out = append(out, d[:]...)
	return c.enc.EncodeAll(binary, out), nil
}

// DecodeArtifact unpacks a cached binary. It reports false when the blob is
// empty, corrupt, or was built from a different source.
func DecodeArtifact(blob []byte, source string) ([]byte, bool) {
	head := len(artifactMagic) + digestLen
	if len(blob) <= head || !bytes.HasPrefix(blob, artifactMagic) {
		return nil, false
	}
	d := sourceDigest(source)
	if !bytes.Equal(blob[len(artifactMagic):head], d[:]) {
		return nil, false
	}
	c, err := codecs()
	if err != nil {
		return nil, false
	}
	bin, err := c.dec.DecodeAll(blob[head:], nil)
	if err != nil || len(bin) == 0 {
		return nil, false
	}
	return bin, true
}

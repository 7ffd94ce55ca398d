package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

const imageEditPrefix = "imgedit:"

// Fingerprint derives the key for an image edit. The image length is written
// before the bytes so that no (image, prompt) split can collide with another.
func Fingerprint(image []byte, prompt string) string {
	h := sha256.New()
	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(len(image)))
	h.Write(size[:])
	h.Write(image)
	h.Write([]byte(prompt))
	return imageEditPrefix + hex.EncodeToString(h.Sum(nil))
}

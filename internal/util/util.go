package util

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
)

var bytesBuffer = sync.Pool{
	New: func() interface{} { return &bytes.Buffer{} },
}

// GetBytesBuffer returns an empty buffer from the pool.
func GetBytesBuffer() *bytes.Buffer {
	p := bytesBuffer.Get().(*bytes.Buffer)
	p.Reset()
	return p
}

func PutBytesBuffer(p *bytes.Buffer) {
	bytesBuffer.Put(p)
}

// HashVector digests a feature vector within a namespace. Equal vectors in
// the same namespace give equal digests.
func HashVector(namespace string, vec []float64) [32]byte {
	buffer := GetBytesBuffer()
	defer PutBytesBuffer(buffer)
	buffer.WriteString(namespace)
	buffer.WriteByte(0)
	for i := range vec {
		if i > 0 {
			buffer.WriteByte(',')
		}
		buffer.WriteString(strconv.FormatFloat(vec[i], 'g', -1, 64))
	}
	return sha256.Sum256(buffer.Bytes())
}

func VectorKey(namespace string, vec []float64) string {
	sum := HashVector(namespace, vec)
	return namespace + ":" + hex.EncodeToString(sum[:])
}

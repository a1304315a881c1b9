package db

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// --------------------------------------------------------------------------
// Snapshot Format
// --------------------------------------------------------------------------

// A snapshot is a flat sequence of entries. Every entry is written as
//   - 1 byte: marker (entryMarker)
//   - 4 bytes: key length (uint32, big endian)
//   - 4 bytes: value length (uint32, big endian)
//   - N bytes: key
//   - M bytes: value
//
// The sequence is terminated by a single endMarker byte.
const (
	endMarker   byte = 0
	entryMarker byte = 1
)

// SaveEntries writes the snapshot of the entries produced by iterate to w.
// iterate must call the passed IterFunc for every entry in the order they should be restored.
func SaveEntries(w io.Writer, iterate func(fn IterFunc) error) (int, error) {
	bw := bufio.NewWriter(w)
	header := make([]byte, 9)
	count := 0

	var writeErr error
	err := iterate(func(key string, value []byte) bool {
		header[0] = entryMarker
		binary.BigEndian.PutUint32(header[1:5], uint32(len(key)))
		binary.BigEndian.PutUint32(header[5:9], uint32(len(value)))
		if _, writeErr = bw.Write(header); writeErr != nil {
			return false
		}
		if _, writeErr = bw.WriteString(key); writeErr != nil {
			return false
		}
		if _, writeErr = bw.Write(value); writeErr != nil {
			return false
		}
		count++
		return true
	})
	if err != nil {
		return count, err
	}
	if writeErr != nil {
		return count, fmt.Errorf("failed to write snapshot entry: %w", writeErr)
	}

	if err := bw.WriteByte(endMarker); err != nil {
		return count, err
	}
	return count, bw.Flush()
}

// LoadEntries reads a snapshot from r and calls fn for every entry.
// It stops at the end marker, so data following the snapshot is not consumed beyond the reader's buffering.
func LoadEntries(r io.Reader, fn func(key string, value []byte) error) (int, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		r = bufio.NewReader(r)
		br = r.(io.ByteReader)
	}

	header := make([]byte, 8)
	count := 0
	for {
		marker, err := br.ReadByte()
		if err != nil {
			return count, fmt.Errorf("failed to read snapshot marker: %w", err)
		}
		if marker == endMarker {
			return count, nil
		}
		if marker != entryMarker {
			return count, fmt.Errorf("invalid snapshot marker %d", marker)
		}

		if _, err := io.ReadFull(r, header); err != nil {
			return count, fmt.Errorf("failed to read entry header: %w", err)
		}
		keyLen := binary.BigEndian.Uint32(header[0:4])
		valueLen := binary.BigEndian.Uint32(header[4:8])

		data := make([]byte, int(keyLen)+int(valueLen))
		if _, err := io.ReadFull(r, data); err != nil {
			return count, fmt.Errorf("failed to read entry data: %w", err)
		}

		if err := fn(string(data[:keyLen]), data[keyLen:]); err != nil {
			return count, err
		}
		count++
	}
}

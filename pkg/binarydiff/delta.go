// Package binarydiff provides binary diff/patch operations between two
// DistFenceSet snapshots, used by pkg/publisher to build the delta artifact a
// manifest can point devices at instead of a full snapshot.
package binarydiff

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/iannil/geofence-engine/pkg/distmodel"
)

// DeltaFile is a binary diff between two fence-set snapshots.
type DeltaFile struct {
	FromVersion uint64
	ToVersion   uint64
	FromSize    int64
	ToSize      int64
	DiffData    []byte
	DiffHash    []byte // SHA-256 of DiffData
}

// Diff computes a DeltaFile between two fence sets' JSON encodings.
func Diff(oldSet, newSet distmodel.DistFenceSet) (*DeltaFile, error) {
	oldData, err := json.Marshal(oldSet.Items)
	if err != nil {
		return nil, fmt.Errorf("binarydiff: marshal old fence set: %w", err)
	}
	newData, err := json.Marshal(newSet.Items)
	if err != nil {
		return nil, fmt.Errorf("binarydiff: marshal new fence set: %w", err)
	}

	diffData := computeDiff(oldData, newData)
	diffHash := sha256.Sum256(diffData)

	return &DeltaFile{
		FromVersion: oldSet.Version,
		ToVersion:   newSet.Version,
		FromSize:    int64(len(oldData)),
		ToSize:      int64(len(newData)),
		DiffData:    diffData,
		DiffHash:    diffHash[:],
	}, nil
}

// computeDiff computes a simple binary diff between two byte slices: a
// common-prefix/common-suffix encoding when the two are similar enough,
// or the raw new data otherwise. This is not bsdiff-grade compression —
// see DESIGN.md for why a real bsdiff library was not wired in instead.
func computeDiff(oldData, newData []byte) []byte {
	const similarityThreshold = 0.5

	if len(newData) < len(oldData) {
		return newData
	}
	if len(oldData) == 0 || float64(len(newData)-len(oldData))/float64(len(oldData)) > similarityThreshold {
		return newData
	}

	prefixLen := commonPrefixLen(oldData, newData)
	suffixLen := commonSuffixLen(oldData[prefixLen:], newData[prefixLen:])

	var delta bytes.Buffer
	binary.Write(&delta, binary.LittleEndian, uint32(prefixLen))
	binary.Write(&delta, binary.LittleEndian, uint32(suffixLen))
	delta.Write(newData[prefixLen : len(newData)-suffixLen])
	return delta.Bytes()
}

func commonPrefixLen(a, b []byte) int {
	max := len(a)
	if len(b) < max {
		max = len(b)
	}
	for i := 0; i < max; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return max
}

func commonSuffixLen(a, b []byte) int {
	max := len(a)
	if len(b) < max {
		max = len(b)
	}
	for i := 0; i < max; i++ {
		if a[len(a)-1-i] != b[len(b)-1-i] {
			return i
		}
	}
	return max
}

// Patch applies diffData (produced by computeDiff) to oldData.
func Patch(oldData, diffData []byte) []byte {
	if len(diffData) < 8 {
		return diffData
	}

	prefixLen := binary.LittleEndian.Uint32(diffData[0:4])
	suffixLen := binary.LittleEndian.Uint32(diffData[4:8])
	if prefixLen > uint32(len(oldData)) || suffixLen > uint32(len(oldData)) {
		return diffData
	}

	result := make([]byte, 0, int(prefixLen)+len(diffData[8:])+int(suffixLen))
	result = append(result, oldData[:prefixLen]...)
	result = append(result, diffData[8:]...)
	if suffixLen > 0 {
		result = append(result, oldData[len(oldData)-int(suffixLen):]...)
	}
	return result
}

// ApplyDelta reconstructs the new fence set's items by patching oldSet's
// items with delta, verifying the diff hash first.
func ApplyDelta(oldSet distmodel.DistFenceSet, delta *DeltaFile) ([]distmodel.DistFenceItem, error) {
	oldData, err := json.Marshal(oldSet.Items)
	if err != nil {
		return nil, fmt.Errorf("binarydiff: marshal old fence set: %w", err)
	}

	if len(delta.DiffHash) > 0 {
		h := sha256.Sum256(delta.DiffData)
		if !bytes.Equal(h[:], delta.DiffHash) {
			return nil, fmt.Errorf("binarydiff: diff hash mismatch")
		}
	}

	newData := Patch(oldData, delta.DiffData)

	var items []distmodel.DistFenceItem
	if err := json.Unmarshal(newData, &items); err != nil {
		return nil, fmt.Errorf("binarydiff: unmarshal patched fence set: %w", err)
	}
	return items, nil
}

// WriteDelta encodes a DeltaFile as JSON.
func WriteDelta(delta *DeltaFile, w io.Writer) error {
	if err := json.NewEncoder(w).Encode(delta); err != nil {
		return fmt.Errorf("binarydiff: write delta: %w", err)
	}
	return nil
}

// ReadDelta decodes a JSON-encoded DeltaFile.
func ReadDelta(r io.Reader) (*DeltaFile, error) {
	var delta DeltaFile
	if err := json.NewDecoder(r).Decode(&delta); err != nil {
		return nil, fmt.Errorf("binarydiff: read delta: %w", err)
	}
	return &delta, nil
}

// deltaMagic identifies a binary-framed delta file on disk.
const deltaMagic = "GFED"

// DeltaHeader is the fixed-size header preceding DiffData in a framed
// delta file written by WriteDeltaFile.
type DeltaHeader struct {
	Magic       [4]byte
	Version     uint16
	FromVersion uint64
	ToVersion   uint64
	OldSize     uint64
	NewSize     uint64
	DiffSize    uint64
	DiffHash    []byte
}

// WriteDeltaFile writes a complete framed delta file: header followed by
// diff bytes.
func WriteDeltaFile(oldSet, newSet distmodel.DistFenceSet, w io.Writer) error {
	delta, err := Diff(oldSet, newSet)
	if err != nil {
		return fmt.Errorf("binarydiff: create diff: %w", err)
	}

	header := DeltaHeader{
		Magic:       [4]byte{'G', 'F', 'E', 'D'},
		Version:     1,
		FromVersion: delta.FromVersion,
		ToVersion:   delta.ToVersion,
		OldSize:     uint64(delta.FromSize),
		NewSize:     uint64(delta.ToSize),
		DiffSize:    uint64(len(delta.DiffData)),
		DiffHash:    delta.DiffHash,
	}
	if err := writeHeader(w, &header); err != nil {
		return fmt.Errorf("binarydiff: write header: %w", err)
	}
	if _, err := w.Write(delta.DiffData); err != nil {
		return fmt.Errorf("binarydiff: write diff data: %w", err)
	}
	return nil
}

// ReadDeltaFile reads a complete framed delta file and validates its
// magic, version, target version and diff hash.
func ReadDeltaFile(r io.Reader, expectedToVersion uint64) (*DeltaFile, error) {
	var header DeltaHeader
	if err := readHeader(r, &header); err != nil {
		return nil, fmt.Errorf("binarydiff: read header: %w", err)
	}
	if string(header.Magic[:]) != deltaMagic {
		return nil, fmt.Errorf("binarydiff: invalid magic number: %q", header.Magic[:])
	}
	if header.Version != 1 {
		return nil, fmt.Errorf("binarydiff: unsupported delta version: %d", header.Version)
	}
	if header.ToVersion != expectedToVersion {
		return nil, fmt.Errorf("binarydiff: version mismatch: expected %d, got %d", expectedToVersion, header.ToVersion)
	}

	diffData := make([]byte, header.DiffSize)
	if _, err := io.ReadFull(r, diffData); err != nil {
		return nil, fmt.Errorf("binarydiff: read diff data: %w", err)
	}
	if len(header.DiffHash) == sha256.Size {
		h := sha256.Sum256(diffData)
		if !bytes.Equal(h[:], header.DiffHash) {
			return nil, fmt.Errorf("binarydiff: diff hash mismatch")
		}
	}

	return &DeltaFile{
		FromVersion: header.FromVersion,
		ToVersion:   header.ToVersion,
		FromSize:    int64(header.OldSize),
		ToSize:      int64(header.NewSize),
		DiffData:    diffData,
		DiffHash:    header.DiffHash,
	}, nil
}

func writeHeader(w io.Writer, h *DeltaHeader) error {
	if _, err := w.Write(h.Magic[:]); err != nil {
		return err
	}
	for _, v := range []interface{}{h.Version, h.FromVersion, h.ToVersion, h.OldSize, h.NewSize, h.DiffSize} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if len(h.DiffHash) > 0 {
		if _, err := w.Write(h.DiffHash); err != nil {
			return err
		}
	}
	return nil
}

func readHeader(r io.Reader, h *DeltaHeader) error {
	if _, err := io.ReadFull(r, h.Magic[:]); err != nil {
		return err
	}
	for _, v := range []interface{}{&h.Version, &h.FromVersion, &h.ToVersion, &h.OldSize, &h.NewSize, &h.DiffSize} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	hashBuf := make([]byte, sha256.Size)
	n, err := io.ReadFull(r, hashBuf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return err
	}
	if n > 0 {
		h.DiffHash = hashBuf[:n]
	}
	return nil
}

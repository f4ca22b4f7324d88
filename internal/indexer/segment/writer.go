package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/affix"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/pattern"
)

// MagicBytes identifies a valid .ptix segment file.
const (
	MagicBytes    uint32 = 0x50544958
	FormatVersion uint32 = 2
	HeaderSize    int    = 64
	FooterSize    int    = 32
	Extension            = ".ptix"
)

// SegmentHeader is the 64-byte header written at the start of every segment.
type SegmentHeader struct {
	Magic      uint32
	Version    uint32
	KeyCount   uint32
	TypeCount  uint32
	CreatedAt  int64
	DictOffset int64
	DictSize   int64
	PostOffset int64
	PostSize   int64
	ConfSize   uint32
	Flags      uint8
	Form       uint8
}

const flagGlob uint8 = 1

var formCodes = []affix.Form{affix.FormNone, affix.FormNFC, affix.FormNFD}

func formCode(f affix.Form) uint8 {
	for i, c := range formCodes {
		if c == f {
			return uint8(i)
		}
	}
	return 0
}

// DictEntry maps a key to its postings offset, length, and posting count in
// the segment file. Keys are raw bytes: types need not be valid UTF-8, and
// a JSON string would replace invalid bytes with U+FFFD.
type DictEntry struct {
	Key        []byte `json:"k"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	Count      int    `json:"n"`
}

// Meta describes what a segment was built from. Glob and Normalize must
// match the settings a later lookup uses, or keys mean something else.
type Meta struct {
	TypeCount int
	Configs   []pattern.Config
	Glob      bool
	Normalize affix.Form
}

// Writer serialises index snapshots into new .ptix segment files.
type Writer struct {
	dataDir string
}

// NewWriter creates a Writer that writes segments into the given directory.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// Write atomically creates a new segment file containing the given entries.
// It writes to a .tmp file first and renames on success.
func (w *Writer) Write(entries []index.Entry, meta Meta) (string, error) {
	segmentName := fmt.Sprintf("seg_%d%s", time.Now().UnixNano(), Extension)
	if err := w.WriteFile(segmentName, entries, meta); err != nil {
		return "", err
	}
	return segmentName, nil
}

// WriteFile is Write with a caller-chosen file name inside the data
// directory.
func (w *Writer) WriteFile(name string, entries []index.Entry, meta Meta) error {
	finalPath := filepath.Join(w.dataDir, name)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return fmt.Errorf("creating segment directory: %w", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp segment file: %w", err)
	}
	defer f.Close()

	headerBytes := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(headerBytes[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(headerBytes[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(headerBytes[8:12], uint32(len(entries)))
	binary.LittleEndian.PutUint32(headerBytes[12:16], uint32(meta.TypeCount))
	binary.LittleEndian.PutUint64(headerBytes[16:24], uint64(time.Now().Unix()))
	if meta.Glob {
		headerBytes[60] |= flagGlob
	}
	headerBytes[61] = formCode(meta.Normalize)
	if _, err := f.Write(headerBytes); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	postingsStart := int64(HeaderSize)
	offset := postingsStart
	dict := make([]DictEntry, 0, len(entries))
	for _, entry := range entries {
		postingsData, err := json.Marshal(entry.Positions)
		if err != nil {
			return fmt.Errorf("marshaling postings for key %q: %w", entry.Key, err)
		}
		if _, err := f.Write(postingsData); err != nil {
			return fmt.Errorf("writing postings for key %q: %w", entry.Key, err)
		}
		dict = append(dict, DictEntry{
			Key:        []byte(entry.Key),
			PostOffset: offset - postingsStart,
			PostLen:    len(postingsData),
			Count:      len(entry.Positions),
		})
		offset += int64(len(postingsData))
	}
	postingsSize := offset - postingsStart

	dictStart := offset
	dictData, err := json.Marshal(dict)
	if err != nil {
		return fmt.Errorf("marshaling dictionary: %w", err)
	}
	if _, err := f.Write(dictData); err != nil {
		return fmt.Errorf("writing dictionary: %w", err)
	}
	encoded := make([]string, len(meta.Configs))
	for i, c := range meta.Configs {
		encoded[i] = c.Encode()
	}
	confData, err := json.Marshal(encoded)
	if err != nil {
		return fmt.Errorf("marshaling configs: %w", err)
	}
	if _, err := f.Write(confData); err != nil {
		return fmt.Errorf("writing configs: %w", err)
	}

	checksum := crc32.NewIEEE()
	checksum.Write(dictData)
	checksum.Write(confData)
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], checksum.Sum32())
	binary.LittleEndian.PutUint32(footer[4:8], uint32(len(confData)))
	binary.LittleEndian.PutUint64(footer[8:16], uint64(dictStart))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(len(dictData)))
	binary.LittleEndian.PutUint64(footer[24:32], uint64(postingsSize))
	if _, err := f.Write(footer); err != nil {
		return fmt.Errorf("writing footer: %w", err)
	}

	binary.LittleEndian.PutUint64(headerBytes[24:32], uint64(dictStart))
	binary.LittleEndian.PutUint64(headerBytes[32:40], uint64(len(dictData)))
	binary.LittleEndian.PutUint64(headerBytes[40:48], uint64(postingsStart))
	binary.LittleEndian.PutUint64(headerBytes[48:56], uint64(postingsSize))
	binary.LittleEndian.PutUint32(headerBytes[56:60], uint32(len(confData)))
	if _, err := f.WriteAt(headerBytes, 0); err != nil {
		return fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing segment file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming segment file: %w", err)
	}
	return nil
}

// Package segment persists a built index to disk so the same vocabulary
// index can serve later lookups without being rebuilt. A segment holds a
// header, JSON posting blocks, a sorted JSON dictionary, the encoded
// configurations and settings the index was built with, and a CRC footer.
package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"log/slog"
	"net/http"
	"os"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/affix"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/pattern"
	apperrors "github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/errors"
)

type Reader struct {
	file     *os.File
	filePath string
	header   SegmentHeader
	dict     []DictEntry
	keys     []string
	configs  []pattern.Config
	logger   *slog.Logger
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := readSegment(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("segment %s: %w", path, err)
	}
	r.filePath = path
	r.logger = slog.Default().With("component", "segment-reader", "segment", path)
	return r, nil
}

func readSegment(f *os.File) (*Reader, error) {
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", apperrors.ErrSegmentCorrupt, err)
	}
	magic := binary.LittleEndian.Uint32(headerBytes[0:4])
	if magic != MagicBytes {
		return nil, fmt.Errorf("%w: bad magic bytes %x", apperrors.ErrSegmentCorrupt, magic)
	}
	header := SegmentHeader{
		Magic:      magic,
		Version:    binary.LittleEndian.Uint32(headerBytes[4:8]),
		KeyCount:   binary.LittleEndian.Uint32(headerBytes[8:12]),
		TypeCount:  binary.LittleEndian.Uint32(headerBytes[12:16]),
		CreatedAt:  int64(binary.LittleEndian.Uint64(headerBytes[16:24])),
		DictOffset: int64(binary.LittleEndian.Uint64(headerBytes[24:32])),
		DictSize:   int64(binary.LittleEndian.Uint64(headerBytes[32:40])),
		PostOffset: int64(binary.LittleEndian.Uint64(headerBytes[40:48])),
		PostSize:   int64(binary.LittleEndian.Uint64(headerBytes[48:56])),
		ConfSize:   binary.LittleEndian.Uint32(headerBytes[56:60]),
		Flags:      headerBytes[60],
		Form:       headerBytes[61],
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", apperrors.ErrSegmentCorrupt, header.Version)
	}
	if int(header.Form) >= len(formCodes) {
		return nil, fmt.Errorf("%w: unknown normalization code %d", apperrors.ErrSegmentCorrupt, header.Form)
	}

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat segment: %w", err)
	}
	tailSize := header.DictSize + int64(header.ConfSize) + int64(FooterSize)
	if header.DictOffset < int64(HeaderSize) || header.DictSize < 0 || header.DictOffset+tailSize != info.Size() {
		return nil, fmt.Errorf("%w: layout does not match file size %d", apperrors.ErrSegmentCorrupt, info.Size())
	}
	tail := make([]byte, tailSize)
	if _, err := f.ReadAt(tail, header.DictOffset); err != nil {
		return nil, fmt.Errorf("%w: reading dictionary: %v", apperrors.ErrSegmentCorrupt, err)
	}
	dictBytes := tail[:header.DictSize]
	confBytes := tail[header.DictSize : header.DictSize+int64(header.ConfSize)]
	footer := tail[header.DictSize+int64(header.ConfSize):]

	checksum := crc32.NewIEEE()
	checksum.Write(dictBytes)
	checksum.Write(confBytes)
	if want := binary.LittleEndian.Uint32(footer[0:4]); checksum.Sum32() != want {
		return nil, fmt.Errorf("%w: checksum mismatch", apperrors.ErrSegmentCorrupt)
	}

	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, fmt.Errorf("%w: parsing dictionary: %v", apperrors.ErrSegmentCorrupt, err)
	}
	keys := make([]string, len(dict))
	for i, e := range dict {
		keys[i] = string(e.Key)
		if i > 0 && keys[i-1] >= keys[i] {
			return nil, fmt.Errorf("%w: dictionary not sorted at entry %d", apperrors.ErrSegmentCorrupt, i)
		}
	}
	var encoded []string
	if err := json.Unmarshal(confBytes, &encoded); err != nil {
		return nil, fmt.Errorf("%w: parsing configs: %v", apperrors.ErrSegmentCorrupt, err)
	}
	configs := make([]pattern.Config, 0, len(encoded))
	for _, e := range encoded {
		c, err := pattern.DecodeConfig(e)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrSegmentCorrupt, err)
		}
		configs = append(configs, c)
	}
	return &Reader{
		file:    f,
		header:  header,
		dict:    dict,
		keys:    keys,
		configs: configs,
	}, nil
}

// Search returns the positions stored under key, or nil when the key is
// absent.
func (r *Reader) Search(key string) ([]uint32, error) {
	idx := sort.SearchStrings(r.keys, key)
	if idx >= len(r.keys) || r.keys[idx] != key {
		return nil, nil
	}
	entry := r.dict[idx]
	postingsBytes := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(postingsBytes, r.header.PostOffset+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings: %w", err)
	}
	var positions []uint32
	if err := json.Unmarshal(postingsBytes, &positions); err != nil {
		return nil, fmt.Errorf("parsing postings: %w", err)
	}
	return positions, nil
}

// Lookup is Search for callers that treat a read failure as no match; the
// failure is logged.
func (r *Reader) Lookup(key string) []uint32 {
	positions, err := r.Search(key)
	if err != nil {
		r.logger.Error("segment lookup failed", "key", key, "error", err)
		return nil
	}
	return positions
}

// Covers reports whether the segment was built with every configuration in
// configs.
func (r *Reader) Covers(configs []pattern.Config) bool {
	have := make(map[pattern.Config]struct{}, len(r.configs))
	for _, c := range r.configs {
		have[c] = struct{}{}
	}
	for _, c := range configs {
		if _, ok := have[c]; !ok {
			return false
		}
	}
	return true
}

// Extra returns the segment's configurations that configs does not need.
// A pattern with a wildcard in the middle can collide with keys of such a
// configuration and match types a fresh build would not.
func (r *Reader) Extra(configs []pattern.Config) []pattern.Config {
	need := make(map[pattern.Config]struct{}, len(configs))
	for _, c := range configs {
		need[c] = struct{}{}
	}
	var extra []pattern.Config
	for _, c := range r.configs {
		if _, ok := need[c]; !ok {
			extra = append(extra, c)
		}
	}
	return extra
}

// Glob reports whether the segment was built with wildcards enabled.
func (r *Reader) Glob() bool {
	return r.header.Flags&flagGlob != 0
}

// Normalization returns the form types were normalised to before indexing.
func (r *Reader) Normalization() affix.Form {
	return formCodes[r.header.Form]
}

// CheckSettings fails when a lookup with glob and form would read keys the
// segment stored under different rules.
func (r *Reader) CheckSettings(glob bool, form affix.Form) error {
	if glob != r.Glob() {
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"segment %s was built with glob=%t, lookup uses glob=%t", r.filePath, r.Glob(), glob)
	}
	if form != r.Normalization() {
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"segment %s was built with normalization %s, lookup uses %s", r.filePath, r.Normalization(), form)
	}
	return nil
}

func (r *Reader) Configs() []pattern.Config {
	return r.configs
}

func (r *Reader) Keys() int {
	return len(r.dict)
}

func (r *Reader) TypeCount() int {
	return int(r.header.TypeCount)
}

func (r *Reader) Close() error {
	return r.file.Close()
}

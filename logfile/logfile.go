// Package logfile implements the append-only write-ahead log that backs
// one page (spec §4.2). Every record is length-prefixed; appends are O(1)
// and never seek. A torn trailing record encountered during replay
// truncates the file to the last complete record rather than failing
// recovery.
//
// Wire format per record (spec §3):
//
//	len(4)  op(1)  key_len(1)  key_bytes  value_len(4)  value_bytes
//
// len counts every byte after itself (op through value_bytes), so a
// reader can always tell, before parsing the body, how many bytes to
// expect next. value_len is 0 for DELETE.
package logfile

import (
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/intellect4all/triekv/common"
)

const (
	lenFieldSize     = 4
	opFieldSize      = 1
	keyLenFieldSize  = 1
	valLenFieldSize  = 4
	recordHeaderSize = lenFieldSize + opFieldSize + keyLenFieldSize + valLenFieldSize
)

// LogFile is the on-disk file backing one page: `<prefix>.dat`, or
// `_root.dat` for the empty prefix.
type LogFile struct {
	path     string
	file     *os.File
	offset   int64 // current end of file
	synced   int64 // last fsynced offset
	poisoned error
}

// Open opens (creating if absent) the log file at path. Appends are made
// with O_APPEND so they never need an explicit seek.
func Open(path string) (*LogFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open log file %s", path)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "stat log file %s", path)
	}
	return &LogFile{
		path:   path,
		file:   f,
		offset: stat.Size(),
		synced: stat.Size(),
	}, nil
}

// Path returns the log file's filesystem path.
func (l *LogFile) Path() string { return l.path }

// Size returns the current logical length of the file in bytes.
func (l *LogFile) Size() int64 { return l.offset }

// SyncedOffset returns the offset up to which the file is known to be
// durably flushed to stable storage (advanced only by Sync, in "strict"
// durability mode, or trusted at the OS-buffer level in "default" mode by
// the caller).
func (l *LogFile) SyncedOffset() int64 { return l.synced }

// MarkFlushed advances the synced offset without calling fsync, used by
// the "default" durability mode where an append is considered flushed as
// soon as the write syscall returns (spec §4.5 Writeback).
func (l *LogFile) MarkFlushed() { l.synced = l.offset }

// Poisoned reports the error that poisoned this log file, if any.
func (l *LogFile) Poisoned() error { return l.poisoned }

// Append writes one framed record and never seeks. On I/O failure the log
// file is poisoned: every subsequent Append/Sync fails until the process
// restarts and recovery reopens it.
func (l *LogFile) Append(rec common.Record) error {
	if l.poisoned != nil {
		return l.poisoned
	}

	buf := encode(rec)
	n, err := l.file.Write(buf)
	if err != nil {
		l.poisoned = &common.PoisonedError{Prefix: l.path, Cause: err}
		return l.poisoned
	}
	l.offset += int64(n)

	log.Debug().
		Str("log_file", l.path).
		Str("op", rec.Op.String()).
		Uint32("crc32", crc32.ChecksumIEEE(buf)).
		Int("bytes", n).
		Msg("appended record")
	return nil
}

// Sync forces all appended bytes to stable storage.
func (l *LogFile) Sync() error {
	if l.poisoned != nil {
		return l.poisoned
	}
	if err := l.file.Sync(); err != nil {
		l.poisoned = &common.PoisonedError{Prefix: l.path, Cause: err}
		return l.poisoned
	}
	l.synced = l.offset
	return nil
}

// Close closes the underlying file handle without syncing.
func (l *LogFile) Close() error {
	return l.file.Close()
}

// Retire renames the log file to `<path>.old`, used when a page splits
// and its parent leaf is replaced by an internal trie node (spec §4.6
// step 8). The retired file is left on disk; recovery ignores it once its
// children are present.
func (l *LogFile) Retire() error {
	if err := l.file.Close(); err != nil {
		return errors.Wrapf(err, "close log file %s before retiring", l.path)
	}
	oldPath := l.path + ".old"
	if err := os.Rename(l.path, oldPath); err != nil {
		return errors.Wrapf(err, "retire log file %s", l.path)
	}
	return nil
}

// Replay reads every complete record in apply order. A partial trailing
// record is truncated away and logged rather than treated as an error
// (spec §4.2 torn-write tolerance).
func Replay(path string) ([]common.Record, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open log file %s for replay", path)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var records []common.Record
	var goodOffset int64

	for {
		header := make([]byte, lenFieldSize)
		n, err := io.ReadFull(r, header)
		if err == io.EOF {
			break
		}
		if err != nil || n < lenFieldSize {
			// torn tail: couldn't even read the length prefix
			log.Warn().Str("log_file", path).Int64("offset", goodOffset).
				Msg("truncating torn trailing record")
			break
		}

		bodyLen := binary.BigEndian.Uint32(header)
		body := make([]byte, bodyLen)
		if _, err := io.ReadFull(r, body); err != nil {
			log.Warn().Str("log_file", path).Int64("offset", goodOffset).
				Msg("truncating torn trailing record")
			break
		}

		rec, ok := decodeBody(body)
		if !ok {
			log.Warn().Str("log_file", path).Int64("offset", goodOffset).
				Msg("truncating malformed trailing record")
			break
		}
		records = append(records, rec)
		goodOffset += int64(lenFieldSize) + int64(bodyLen)
	}

	if stat, err := f.Stat(); err == nil && stat.Size() > goodOffset {
		if err := f.Truncate(goodOffset); err != nil {
			return nil, errors.Wrapf(err, "truncate torn tail of %s", path)
		}
	}

	return records, nil
}

func encode(rec common.Record) []byte {
	keyBytes := []byte(rec.Key)
	bodyLen := opFieldSize + keyLenFieldSize + len(keyBytes) + valLenFieldSize + len(rec.Value)

	buf := make([]byte, lenFieldSize+bodyLen)
	binary.BigEndian.PutUint32(buf[0:], uint32(bodyLen))
	buf[4] = byte(rec.Op)
	buf[5] = byte(len(keyBytes))
	copy(buf[6:], keyBytes)
	valOff := 6 + len(keyBytes)
	valLen := 0
	if rec.Op == common.OpPut {
		valLen = len(rec.Value)
	}
	binary.BigEndian.PutUint32(buf[valOff:], uint32(valLen))
	if valLen > 0 {
		copy(buf[valOff+4:], rec.Value)
	}
	return buf
}

func decodeBody(body []byte) (common.Record, bool) {
	if len(body) < opFieldSize+keyLenFieldSize+valLenFieldSize {
		return common.Record{}, false
	}
	op := common.OpType(body[0])
	if op != common.OpPut && op != common.OpDelete {
		return common.Record{}, false
	}
	keyLen := int(body[1])
	if len(body) < 2+keyLen+valLenFieldSize {
		return common.Record{}, false
	}
	key := string(body[2 : 2+keyLen])
	valOff := 2 + keyLen
	valLen := int(binary.BigEndian.Uint32(body[valOff:]))
	if len(body) < valOff+4+valLen {
		return common.Record{}, false
	}
	var value []byte
	if valLen > 0 {
		value = make([]byte, valLen)
		copy(value, body[valOff+4:valOff+4+valLen])
	}
	return common.Record{Op: op, Key: key, Value: value}, true
}

// RetirePath renames the log file at path to `<path>.old` by filesystem
// path alone, for callers that have already closed their handle to it
// (e.g. the page cache's Forget, called just before a split retires the
// parent).
func RetirePath(path string) error {
	if err := os.Rename(path, path+".old"); err != nil {
		return errors.Wrapf(err, "retire log file %s", path)
	}
	return nil
}

// PathForPrefix maps a normalized trie prefix to its log file path within
// dataDir: the empty prefix maps to `_root.dat`, everything else to
// `<prefix>.dat`.
func PathForPrefix(dataDir, prefix string) string {
	name := prefix + ".dat"
	if prefix == "" {
		name = "_root.dat"
	}
	return filepath.Join(dataDir, name)
}

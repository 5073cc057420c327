package fingerprint

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/brightloom/reelvault/internal/joberr"
	"github.com/brightloom/reelvault/internal/models"
)

// weakHashSampleBytes bounds how much of a file is read to compute the
// weak_hash tie-breaker: full-file hashing would be far too slow for
// multi-gigabyte media on every scan, so only the head is sampled.
const weakHashSampleBytes = 64 * 1024

// Identify stats filePath and derives its MediaFingerprint: device/inode
// where the platform exposes them, size, mtime, and an xxhash-based
// weak_hash over a bounded prefix of the file. Per spec.md §3/§7: ENOENT
// classifies as Gone, EACCES as Skip; both are returned wrapped in the
// corresponding jobs sentinel so callers can classify without inspecting
// os-specific error values themselves.
func Identify(filePath string) (models.MediaFingerprint, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.MediaFingerprint{}, joberr.Wrap(joberr.ErrGone, err)
		}
		if errors.Is(err, fs.ErrPermission) {
			return models.MediaFingerprint{}, joberr.Wrap(joberr.ErrSkip, err)
		}
		return models.MediaFingerprint{}, joberr.Wrap(joberr.ErrTransient, err)
	}

	fp := models.MediaFingerprint{
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	if dev, ino, ok := statDeviceInode(info); ok {
		fp.DeviceID = &dev
		fp.Inode = &ino
	}

	weak, err := weakHash(filePath)
	if err == nil {
		fp.WeakHash = &weak
	}
	// A weak_hash failure (e.g. permission race after stat) is tolerated:
	// size+mtime+device+inode already form a usable identity.

	return fp, nil
}

func statDeviceInode(info os.FileInfo) (dev, ino uint64, ok bool) {
	sys, isStat := info.Sys().(*syscall.Stat_t)
	if !isStat {
		return 0, 0, false
	}
	return uint64(sys.Dev), uint64(sys.Ino), true
}

func weakHash(filePath string) (uint64, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.CopyN(h, f, weakHashSampleBytes); err != nil && err != io.EOF {
		return 0, err
	}
	return h.Sum64(), nil
}

// NormalizePath applies spec.md's path normalization rules so the same
// physical file always produces the same dedupe key: absolute path, NFC
// unicode normalization, trailing separators stripped, and lowercase
// folding on case-insensitive mounts.
func NormalizePath(path string, caseInsensitive bool) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	abs = strings.TrimRight(abs, string(filepath.Separator))
	if utf8.ValidString(abs) {
		abs = norm.NFC.String(abs)
	}
	if caseInsensitive {
		abs = strings.ToLower(abs)
	}
	return abs, nil
}

// Package contracts keeps downloaded rental contracts on disk, encrypted and
// compressed, with a SHA-256 sidecar per file.
package contracts

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/amirk1998/car-rental-client/internal/logging"
	"github.com/amirk1998/car-rental-client/internal/security"
	"github.com/amirk1998/car-rental-client/pkg/errors"
)

const fileSuffix = ".pdf.enc.gz"

type Archive struct {
	dir           string
	encryptor     *security.FieldEncryptor
	retentionDays int
	log           *zap.Logger
}

// Entry describes one archived contract file.
type Entry struct {
	Path      string
	BookingID int64
	ModTime   time.Time
}

// NewArchive creates the archive directory with owner-only permissions.
func NewArchive(dir string, encryptor *security.FieldEncryptor, retentionDays int, log *zap.Logger) (*Archive, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create contracts directory: %w", err)
	}

	return &Archive{
		dir:           dir,
		encryptor:     encryptor,
		retentionDays: retentionDays,
		log:           logging.OrNop(log).Named("contracts"),
	}, nil
}

// Path returns where the contract of bookingID is stored.
func (a *Archive) Path(bookingID int64) string {
	return filepath.Join(a.dir, fmt.Sprintf("contract_%d%s", bookingID, fileSuffix))
}

// Save seals pdf, compresses it and writes it with its checksum. An
// existing copy for the same booking is replaced.
func (a *Archive) Save(bookingID int64, pdf []byte) (string, error) {
	sealed, err := a.encryptor.EncryptBytes(pdf, label(bookingID))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrArchiveFailed, err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(sealed); err != nil {
		return "", fmt.Errorf("%w: failed to write compressed data: %v", errors.ErrArchiveFailed, err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("%w: failed to finish compressed data: %v", errors.ErrArchiveFailed, err)
	}

	path := a.Path(bookingID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0600); err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrArchiveFailed, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("%w: %v", errors.ErrArchiveFailed, err)
	}

	if err := writeChecksum(path, buf.Bytes()); err != nil {
		return "", fmt.Errorf("%w: failed to create checksum: %v", errors.ErrArchiveFailed, err)
	}

	a.log.Info("contract archived", zap.Int64("booking_id", bookingID), zap.String("path", path))
	return path, nil
}

// Open verifies and decrypts the stored contract of bookingID.
func (a *Archive) Open(bookingID int64) ([]byte, error) {
	path := a.Path(bookingID)
	if err := a.Verify(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrArchiveFailed, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open compressed data: %v", errors.ErrArchiveFailed, err)
	}
	defer gz.Close()

	sealed, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read compressed data: %v", errors.ErrArchiveFailed, err)
	}

	return a.encryptor.DecryptBytes(sealed, label(bookingID))
}

// Verify checks a stored file against its checksum sidecar.
func (a *Archive) Verify(path string) error {
	stored, err := os.ReadFile(path + ".sha256")
	if err != nil {
		return fmt.Errorf("failed to read checksum file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read contract file: %w", err)
	}

	if fmt.Sprintf("%x", sha256.Sum256(data)) != strings.TrimSpace(string(stored)) {
		return fmt.Errorf("%w: %s may be corrupted", errors.ErrChecksumMismatch, filepath.Base(path))
	}
	return nil
}

// List returns archived contracts, newest first.
func (a *Archive) List() ([]Entry, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read contracts directory: %w", err)
	}

	var out []Entry
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		var bookingID int64
		if _, err := fmt.Sscanf(name, "contract_%d"+fileSuffix, &bookingID); err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{Path: filepath.Join(a.dir, name), BookingID: bookingID, ModTime: info.ModTime()})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ModTime.After(out[j].ModTime) })
	return out, nil
}

// CleanOld removes files older than the retention period and returns how
// many were removed. A non-positive retention keeps everything.
func (a *Archive) CleanOld() (int, error) {
	if a.retentionDays <= 0 {
		return 0, nil
	}
	cutoffTime := time.Now().AddDate(0, 0, -a.retentionDays)

	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read contracts directory: %w", err)
	}

	deletedCount := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoffTime) {
			filePath := filepath.Join(a.dir, entry.Name())
			if err := os.Remove(filePath); err != nil {
				a.log.Warn("failed to delete old contract file", zap.String("path", filePath), zap.Error(err))
				continue
			}
			deletedCount++
		}
	}

	if deletedCount > 0 {
		a.log.Info("cleaned old contract files", zap.Int("count", deletedCount))
	}

	return deletedCount, nil
}

// RunCleanup applies the retention policy every interval until ctx is done.
func (a *Archive) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.CleanOld(); err != nil {
				a.log.Warn("contract cleanup failed", zap.Error(err))
			}
		}
	}
}

func label(bookingID int64) string {
	return fmt.Sprintf("contract:%d", bookingID)
}

func writeChecksum(path string, data []byte) error {
	return os.WriteFile(path+".sha256", []byte(fmt.Sprintf("%x", sha256.Sum256(data))), 0600)
}

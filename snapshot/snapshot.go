package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/meshpay/meshledger/jsonx"
	"github.com/meshpay/meshledger/ledger"
	"github.com/meshpay/meshledger/logx"
)

const (
	filePrefix = "delta-"
	fileSuffix = ".json"
	// FormatVersion is bumped whenever the file layout changes
	FormatVersion = 1
)

// DeltaMeta describes a delta file. Digest is the registry digest of the
// origin at export time; a receiver that imported every file of the origin
// ends up with the same digest.
type DeltaMeta struct {
	Version   int    `json:"version"`
	Origin    string `json:"origin"`
	BaseEpoch uint64 `json:"base_epoch"`
	Epoch     uint64 `json:"epoch"`
	Digest    string `json:"digest"`
	Checksum  string `json:"checksum"`
	CreatedAt int64  `json:"created_at"`
}

// DeltaFile carries a delta between devices that never share a network,
// on removable media or any other out-of-band channel.
type DeltaFile struct {
	Meta  DeltaMeta     `json:"meta"`
	Delta *ledger.Delta `json:"delta"`
}

func checksum(d *ledger.Delta) (string, error) {
	data, err := jsonx.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshal delta: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// FileName returns the name a delta of origin up to epoch is written under.
// Names of one origin sort by epoch.
func FileName(origin string, epoch uint64) string {
	return fmt.Sprintf("%s%s-%020d%s", filePrefix, origin, epoch, fileSuffix)
}

// WriteDeltaFile writes d to dir and returns the file path.
func WriteDeltaFile(dir string, d *ledger.Delta, digest [32]byte) (string, error) {
	if d == nil {
		return "", fmt.Errorf("nil delta")
	}
	sum, err := checksum(d)
	if err != nil {
		return "", err
	}
	file := DeltaFile{
		Meta: DeltaMeta{
			Version:   FormatVersion,
			Origin:    d.Origin,
			BaseEpoch: d.BaseEpoch,
			Epoch:     d.Epoch,
			Digest:    ledger.DigestHex(digest),
			Checksum:  sum,
			CreatedAt: time.Now().Unix(),
		},
		Delta: d,
	}

	data, err := jsonx.MarshalIndent(file)
	if err != nil {
		return "", fmt.Errorf("marshal delta file: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("mkdir delta dir: %w", err)
	}
	path := filepath.Join(dir, FileName(d.Origin, d.Epoch))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("write delta file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("rename delta file: %w", err)
	}
	logx.Info("SNAPSHOT", fmt.Sprintf("Wrote delta %s (epochs %d..%d, %d transactions)", path, d.BaseEpoch, d.Epoch, len(d.Transactions)))
	return path, nil
}

// ReadDeltaFile loads a delta file and checks it was not altered.
func ReadDeltaFile(path string) (*DeltaFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f DeltaFile
	if err := jsonx.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal delta file: %w", err)
	}
	if f.Meta.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported delta file version %d", f.Meta.Version)
	}
	if f.Delta == nil {
		return nil, fmt.Errorf("delta file %s carries no delta", path)
	}
	sum, err := checksum(f.Delta)
	if err != nil {
		return nil, err
	}
	if sum != f.Meta.Checksum {
		return nil, fmt.Errorf("delta file %s checksum mismatch", path)
	}
	if f.Delta.Origin != f.Meta.Origin || f.Delta.Epoch != f.Meta.Epoch || f.Delta.BaseEpoch != f.Meta.BaseEpoch {
		return nil, fmt.Errorf("delta file %s metadata does not match its delta", path)
	}
	return &f, nil
}

// ListDeltaFiles returns the delta files in dir ordered by origin, then epoch.
func ListDeltaFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read delta dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !isDeltaFile(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// CleanupOldDeltaFiles removes every delta file of origin in dir except
// latestPath.
func CleanupOldDeltaFiles(dir, origin, latestPath string) error {
	paths, err := ListDeltaFiles(dir)
	if err != nil {
		return err
	}
	prefix := filePrefix + origin + "-"
	for _, path := range paths {
		if path == latestPath || !strings.HasPrefix(filepath.Base(path), prefix) {
			continue
		}
		if err := os.Remove(path); err != nil {
			logx.Error("SNAPSHOT", "Failed to remove old delta file:", path, err)
		}
	}
	return nil
}

func isDeltaFile(name string) bool {
	return strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix)
}

// Package quarantine isolates files refused at upload so they can be reviewed
// instead of discarded.
package quarantine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/aegis/pkg/logger"
)

// Entry describes one quarantined file. The metadata sidecar carries the
// incident reference so reviewers can correlate with the audit trail.
type Entry struct {
	ID            string    `json:"id"`
	OriginalName  string    `json:"originalName"`
	StoredPath    string    `json:"storedPath"`
	Reference     string    `json:"reference"`
	RiskScore     int       `json:"riskScore"`
	DataTypes     []string  `json:"dataTypes"`
	QuarantinedAt time.Time `json:"quarantinedAt"`
}

// FSStore keeps quarantined files on the local filesystem, one content file
// plus one JSON sidecar per entry.
type FSStore struct {
	dir string
	log logger.Logger
}

// NewFSStore creates the quarantine directory if needed.
func NewFSStore(dir string, log logger.Logger) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create quarantine directory: %w", err)
	}
	return &FSStore{
		dir: dir,
		log: log.WithComponent("quarantine"),
	}, nil
}

// Quarantine stores the file content and its metadata sidecar. The original
// name is recorded but never used as the stored filename, so a hostile name
// cannot escape the directory.
func (s *FSStore) Quarantine(ctx context.Context, originalName, content, reference string, riskScore int, dataTypes []string) (*Entry, error) {
	id := uuid.NewString()
	entry := &Entry{
		ID:            id,
		OriginalName:  filepath.Base(originalName),
		StoredPath:    filepath.Join(s.dir, id+".quarantined"),
		Reference:     reference,
		RiskScore:     riskScore,
		DataTypes:     dataTypes,
		QuarantinedAt: time.Now().UTC(),
	}

	if err := os.WriteFile(entry.StoredPath, []byte(content), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write quarantined file: %w", err)
	}

	meta, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(s.dir, id+".json"), meta, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write quarantine metadata: %w", err)
	}

	s.log.Info(ctx, "file quarantined",
		logger.String("id", id),
		logger.String("original_name", entry.OriginalName),
		logger.String("reference", reference),
		logger.Int("risk_score", riskScore))
	return entry, nil
}

// List returns the metadata of every quarantined entry.
func (s *FSStore) List(ctx context.Context) ([]Entry, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			s.log.Warn(ctx, "unreadable quarantine metadata skipped",
				logger.String("path", p))
			continue
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Delete removes a quarantined entry and its metadata.
func (s *FSStore) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid quarantine id: %w", err)
	}
	if err := os.Remove(filepath.Join(s.dir, id+".quarantined")); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Remove(filepath.Join(s.dir, id+".json"))
}

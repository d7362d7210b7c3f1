package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// SnapshotSchemaVersion is written into every snapshot. Loading accepts any
// snapshot whose version satisfies snapshotConstraint; anything else is
// discarded as incompatible rather than guessed at.
const SnapshotSchemaVersion = "1.1.0"

// snapshotConstraint accepts snapshots from any 1.x writer.
var snapshotConstraint = mustConstraint("^1")

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Codec is the explicit per-domain (de)serializer for snapshot records.
// Decoding reconstructs fully typed records — date fields and decimal
// amounts come back by contract, not by reflective guessing over whatever
// generic JSON produced.
type Codec interface {
	// Domain names the collection this codec handles. Only domains with a
	// registered codec are persisted; everything else is transient.
	Domain() string

	// EncodeRecords serializes a bucket's result set.
	EncodeRecords(recs []Record) (json.RawMessage, error)

	// DecodeRecords restores a bucket's result set with concrete types.
	DecodeRecords(data json.RawMessage) ([]Record, error)
}

// snapshotFile is the on-disk shape of the persistence slot.
type snapshotFile struct {
	Version      string                     `json:"version"`
	ID           string                     `json:"id"`
	SavedAt      time.Time                  `json:"saved_at"`
	ActiveWindow Range                      `json:"active_window"`
	Domains      map[string][]bucketPayload `json:"domains"`
}

// bucketPayload is one persisted bucket. The range round-trips through
// Range's own JSON codec so boundaries restore as real instants.
type bucketPayload struct {
	Range      Range           `json:"range"`
	CapturedAt time.Time       `json:"captured_at"`
	Records    json.RawMessage `json:"records"`
}

// Persister reads and writes the single named snapshot slot. Writes are
// atomic (temp file + rename) so a crash mid-save never truncates the slot.
type Persister struct {
	path   string
	codecs map[string]Codec
	log    zerolog.Logger
	now    func() time.Time
}

// NewPersister creates a persister for the given slot path. The codecs
// whitelist which domains survive a restart.
func NewPersister(path string, logger zerolog.Logger, codecs ...Codec) *Persister {
	m := make(map[string]Codec, len(codecs))
	for _, c := range codecs {
		m[c.Domain()] = c
	}
	return &Persister{
		path:   path,
		codecs: m,
		log:    logger.With().Str("component", "cache_persist").Logger(),
		now:    time.Now,
	}
}

// Save serializes every whitelisted domain plus the active window into the
// slot. Domains without a codec are skipped silently — they are transient by
// definition.
func (p *Persister) Save(store *Store, active Range) error {
	file := snapshotFile{
		Version:      SnapshotSchemaVersion,
		ID:           ulid.Make().String(),
		SavedAt:      p.now(),
		ActiveWindow: active,
		Domains:      make(map[string][]bucketPayload),
	}

	for domain, codec := range p.codecs {
		entries := store.snapshotDomain(domain)
		if len(entries) == 0 {
			continue
		}
		buckets := make([]bucketPayload, 0, len(entries))
		for _, ent := range entries {
			raw, err := codec.EncodeRecords(ent.Records)
			if err != nil {
				return fmt.Errorf("encode domain %s: %w", domain, err)
			}
			buckets = append(buckets, bucketPayload{
				Range:      ent.Range,
				CapturedAt: ent.CapturedAt,
				Records:    raw,
			})
		}
		file.Domains[domain] = buckets
	}

	data, err := json.MarshalIndent(&file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if dir := filepath.Dir(p.path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("create snapshot directory: %w", err)
		}
	}

	// Temp file + rename keeps the slot readable even if this write dies.
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename snapshot: %w", err)
	}

	p.log.Debug().Str("id", file.ID).Int("domains", len(file.Domains)).Msg("snapshot saved")
	return nil
}

// Load restores the slot into the store and returns the persisted active
// window. Missing, corrupt, or version-incompatible slots return the
// corresponding sentinel error and leave the store empty; callers fall back
// to a fresh default window rather than crashing.
//
// Bucket capture stamps are restored as persisted, not reset, so a quick
// relaunch serves the snapshot while an old one ages straight into the
// stale-refresh path.
func (p *Persister) Load(store *Store) (Range, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Range{}, ErrNoSnapshot
		}
		return Range{}, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}

	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return Range{}, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}

	ver, err := semver.NewVersion(file.Version)
	if err != nil {
		return Range{}, fmt.Errorf("%w: %q", ErrSnapshotVersion, file.Version)
	}
	if !snapshotConstraint.Check(ver) {
		return Range{}, fmt.Errorf("%w: %s", ErrSnapshotVersion, file.Version)
	}

	for domain, buckets := range file.Domains {
		codec, ok := p.codecs[domain]
		if !ok {
			// A slot written by a build that knew more domains than this
			// one. Skip rather than fail the whole restore.
			p.log.Warn().Err(fmt.Errorf("%w: %s", ErrUnknownDomain, domain)).Msg("skipping snapshot domain")
			continue
		}
		for _, b := range buckets {
			recs, decErr := codec.DecodeRecords(b.Records)
			if decErr != nil {
				p.log.Warn().Err(decErr).Str("domain", domain).Msg("skipping undecodable snapshot bucket")
				continue
			}
			store.restore(domain, b.Range, b.CapturedAt, recs)
		}
	}

	if file.ActiveWindow.IsZero() {
		return Range{}, fmt.Errorf("%w: missing active window", ErrSnapshotCorrupt)
	}

	p.log.Debug().Str("id", file.ID).Time("saved_at", file.SavedAt).Msg("snapshot restored")
	return file.ActiveWindow, nil
}

// Clear removes the slot. Missing slots are not an error (idempotent).
func (p *Persister) Clear() error {
	if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove snapshot: %w", err)
	}
	return nil
}

// Path returns the slot location, for operator tooling.
func (p *Persister) Path() string {
	return p.path
}

// snapshotDomain copies out a domain's entries for serialization.
func (s *Store) snapshotDomain(domain string) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, ok := s.domains[domain]
	if !ok {
		return nil
	}
	out := make([]*Entry, 0, len(db.entries))
	for _, ent := range db.entries {
		out = append(out, ent)
	}
	return out
}

// restore inserts a bucket preserving its persisted capture stamp.
func (s *Store) restore(domain string, r Range, capturedAt time.Time, recs []Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(domain, r, recs, capturedAt)
}

package cache

// Optimistic mutation: a user action lands in the affected buckets
// immediately so every open screen updates without a network round-trip.
// Each touched bucket gets its CapturedAt bumped — a local write counts as
// a fresh fetch for freshness accounting, trading strict network-truth for
// UI responsiveness.
//
// Insert and update/delete are deliberately asymmetric. An existing record
// may already be visible in several overlapping windows at once, so updates
// and deletes scan every bucket. A brand-new record's visibility in other
// windows cannot be inferred locally (another window's server-side filters
// may exclude it even when its date fits), so inserts touch only the bucket
// for the window the user is looking at. The next refresh of any other
// bucket picks the record up from the authoritative snapshot.
//
// Every mutation replaces the bucket's slice instead of editing it in
// place: slices already handed out by Get or Session.Data are read by
// consumers without any lock, so the old backing array must stay frozen.

// Insert appends the record to the bucket for the active window and bumps
// its capture stamp. It reports whether a bucket existed to receive the
// record; when the active window has never been fetched there is nothing to
// patch and the insert is a no-op.
func (s *Store) Insert(domain string, active Range, rec Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, ok := s.domains[domain]
	if !ok {
		return false
	}
	ent, ok := db.entries[active.Fingerprint()]
	if !ok {
		return false
	}

	updated := make([]Record, len(ent.Records), len(ent.Records)+1)
	copy(updated, ent.Records)
	ent.Records = append(updated, rec)
	ent.CapturedAt = s.now()
	return true
}

// UpdateRecord applies fn to the record with the given id in every bucket of
// the domain that holds it. The scan is idempotent: buckets without the id
// are untouched, and applying the same patch twice converges. Returns the
// number of buckets modified.
func (s *Store) UpdateRecord(domain string, id int64, fn func(Record) Record) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, ok := s.domains[domain]
	if !ok {
		return 0
	}

	now := s.now()
	touched := 0
	for _, ent := range db.entries {
		for i, rec := range ent.Records {
			if rec.RecordID() != id {
				continue
			}
			updated := make([]Record, len(ent.Records))
			copy(updated, ent.Records)
			updated[i] = fn(rec)
			ent.Records = updated
			ent.CapturedAt = now
			touched++
			break
		}
	}
	return touched
}

// DeleteRecord removes the record with the given id from every bucket of the
// domain. No bucket retains a stale copy. Returns the number of buckets
// modified.
func (s *Store) DeleteRecord(domain string, id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, ok := s.domains[domain]
	if !ok {
		return 0
	}

	now := s.now()
	touched := 0
	for _, ent := range db.entries {
		for i, rec := range ent.Records {
			if rec.RecordID() != id {
				continue
			}
			updated := make([]Record, 0, len(ent.Records)-1)
			updated = append(updated, ent.Records[:i]...)
			updated = append(updated, ent.Records[i+1:]...)
			ent.Records = updated
			ent.CapturedAt = now
			touched++
			break
		}
	}
	return touched
}

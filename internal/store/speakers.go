package store

import (
	"context"
	"fmt"
)

// ResolveSpeaker maps an evidence key to a canonical speaker id, creating the
// identity on first encounter. The display name is set by the first writer
// and never overwritten afterwards.
func (s *Store) ResolveSpeaker(ctx context.Context, evidenceKey, displayName string) (int64, string, error) {
	var id int64
	var name string
	err := s.Pool.QueryRow(ctx, `
		INSERT INTO speaker_identities (evidence_key, display_name)
		VALUES ($1, $2)
		ON CONFLICT (evidence_key) DO UPDATE
		SET evidence_key = EXCLUDED.evidence_key
		RETURNING canonical_id, display_name`,
		evidenceKey, displayName).Scan(&id, &name)
	if err != nil {
		return 0, "", fmt.Errorf("resolve speaker: %w", err)
	}
	return id, name, nil
}

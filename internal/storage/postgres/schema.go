package postgres

import (
	"context"
	"fmt"
)

// EnsureSchema creates the channels table, the tsvector projection column,
// its GIN index, and the trigger keeping the projection in sync with
// handle/name/description. Every statement is idempotent, so the call is safe
// on every startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	channel_handle TEXT UNIQUE,
	channel_url TEXT,
	channel_name TEXT,
	video_count INTEGER,
	join_date TEXT,
	last_modified TEXT,
	logo_url TEXT,
	description TEXT,
	scraped_at TIMESTAMPTZ DEFAULT NOW()
)`, s.table),

		fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS fts_document tsvector`, s.table),

		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_fts_document_idx ON %[1]s USING GIN(fts_document)`, s.table),

		fmt.Sprintf(`
CREATE OR REPLACE FUNCTION %s_fts_update()
RETURNS TRIGGER AS $$
BEGIN
	NEW.fts_document :=
		to_tsvector('english', COALESCE(NEW.channel_handle, '')) ||
		to_tsvector('english', COALESCE(NEW.channel_name, '')) ||
		to_tsvector('english', COALESCE(NEW.description, ''));
	RETURN NEW;
END;
$$ LANGUAGE plpgsql`, s.table),

		fmt.Sprintf(`DROP TRIGGER IF EXISTS %[1]s_fts_update_trigger ON %[1]s`, s.table),

		fmt.Sprintf(`
CREATE TRIGGER %[1]s_fts_update_trigger
BEFORE INSERT OR UPDATE ON %[1]s
FOR EACH ROW
EXECUTE FUNCTION %[1]s_fts_update()`, s.table),
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

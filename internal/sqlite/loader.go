package sqlite

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
)

// loadAllJSONL reads every collection mirror in dataDir into the documents
// table. Loading is transactional: all files load or the table stays empty.
// Malformed lines and lines without an _id are skipped with a warning; a
// later line for the same _id replaces the earlier one.
func loadAllJSONL(db *sql.DB, dataDir string, log zerolog.Logger) error {
	paths, err := filepath.Glob(filepath.Join(dataDir, "*"+jsonlExt))
	if err != nil {
		return fmt.Errorf("listing %s: %w", dataDir, err)
	}
	sort.Strings(paths)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning load transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(upsertSQL)
	if err != nil {
		return fmt.Errorf("preparing load insert: %w", err)
	}
	defer stmt.Close()

	for _, path := range paths {
		collection := collectionFromPath(path)
		records, err := readJSONL(path)
		if err != nil {
			return err
		}
		loaded := 0
		for i, rec := range records {
			doc, err := decodeDocument(rec)
			if err != nil {
				log.Warn().Err(err).Str("file", path).Int("line", i+1).Msg("skipping malformed document")
				continue
			}
			id, ok := doc["_id"]
			if !ok {
				log.Warn().Str("file", path).Int("line", i+1).Msg("skipping document without _id")
				continue
			}
			key, err := idKey(id)
			if err != nil {
				log.Warn().Err(err).Str("file", path).Int("line", i+1).Msg("skipping document with bad _id")
				continue
			}
			if _, err := stmt.Exec(collection, key, string(rec)); err != nil {
				return fmt.Errorf("loading %s: %w", path, err)
			}
			loaded++
		}
		log.Info().Str("collection", collection).Int("documents", loaded).Msg("loaded collection")
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing load transaction: %w", err)
	}
	return nil
}

package sqlite

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

const jsonlExt = ".jsonl"

// jsonlPath returns the mirror file of a collection.
func jsonlPath(dataDir, collection string) string {
	return filepath.Join(dataDir, collection+jsonlExt)
}

// collectionFromPath is the inverse of jsonlPath.
func collectionFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), jsonlExt)
}

// encodeDocument renders doc as one line of canonical extended JSON.
func encodeDocument(doc bson.M) ([]byte, error) {
	return bson.MarshalExtJSON(doc, true, false)
}

// decodeDocument parses one line of extended JSON.
func decodeDocument(line []byte) (bson.M, error) {
	var doc bson.M
	if err := bson.UnmarshalExtJSON(line, true, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// readJSONL reads a JSONL file and returns each non-empty line. A missing
// file reads as empty.
func readJSONL(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var records [][]byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		records = append(records, cp)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return records, nil
}

// writeJSONL atomically replaces path with records using the temp file,
// fsync, rename sequence.
func writeJSONL(path string, records [][]byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(step string, err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%s: %w", step, err)
	}

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		if _, err := w.Write(rec); err != nil {
			return fail("writing record", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fail("writing newline", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fail("flushing buffer", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("syncing temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

package sqlite

import (
	"database/sql"
	"fmt"
)

// Every collection shares one table. Bodies are canonical extended JSON so
// BSON types survive the round trip; rowid keeps insertion order.
const (
	createDocuments = `CREATE TABLE documents (
    collection TEXT NOT NULL,
    doc_id TEXT NOT NULL,
    body TEXT NOT NULL,
    PRIMARY KEY (collection, doc_id)
);`

	idxDocumentsCollection = `CREATE INDEX idx_documents_collection ON documents(collection);`
)

var schemaDDL = []string{
	createDocuments,
	idxDocumentsCollection,
}

func initSchema(db *sql.DB) error {
	for _, stmt := range schemaDDL {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

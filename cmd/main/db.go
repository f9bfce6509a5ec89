package main

import (
	"database/sql"
	"fmt"

	"github.com/CTAG07/Laxpress/pkg/articles"
)

// openDB opens the database and creates every table the host needs.
func openDB(driver, dataSource string) (*sql.DB, error) {
	db, err := sql.Open(driver, dataSource)
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers; one connection avoids busy errors.
	db.SetMaxOpenConns(1)

	if err = articles.SetupSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to setup article schema: %w", err)
	}
	if err = setupAuthSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to setup auth schema: %w", err)
	}
	return db, nil
}

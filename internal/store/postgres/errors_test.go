package postgres

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	err := &pgconn.PgError{Code: "23505"}
	if !isUniqueViolation(err) {
		t.Fatal("want true for SQLSTATE 23505")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatal("want false for a foreign key violation")
	}
	if isUniqueViolation(fmt.Errorf("wrap: %w", &pgconn.PgError{Code: "23505"})) == false {
		t.Fatal("want true through an error wrap")
	}
}

func TestIsForeignKeyViolation(t *testing.T) {
	err := &pgconn.PgError{Code: "23503"}
	if !isForeignKeyViolation(err) {
		t.Fatal("want true for SQLSTATE 23503")
	}
	if isForeignKeyViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("want false for a unique violation")
	}
}

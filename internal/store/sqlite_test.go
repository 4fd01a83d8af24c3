package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenSQLite_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpenSQLite_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("first OpenSQLite() failed: %v", err)
	}
	if err := s.Write(ctx, "ns/0/a", []byte("payload")); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	s.Close()

	for i := 0; i < 3; i++ {
		s, err := OpenSQLite(path)
		if err != nil {
			t.Fatalf("OpenSQLite() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("final OpenSQLite() failed: %v", err)
	}
	defer s.Close()

	data, err := s.Read(ctx, "ns/0/a")
	if err != nil {
		t.Fatalf("Read() after reopen failed: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("Read() = %q, want %q", data, "payload")
	}
}

func TestOpenSQLite_InvalidPath(t *testing.T) {
	_, err := OpenSQLite("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestSQLiteClose_NilDB(t *testing.T) {
	s := &SQLite{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestSQLitePragmas(t *testing.T) {
	s := openTestSQLite(t)

	pragmas := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL = 1
		{"busy_timeout", "5000"},
		{"user_version", "1"},
	}
	for _, p := range pragmas {
		t.Run(p.name, func(t *testing.T) {
			if err := s.verifyPragma(p.name, p.expected); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestSQLiteSchema_BlobsTable(t *testing.T) {
	s := openTestSQLite(t)

	rows, err := s.db.Query("PRAGMA table_info(blobs)")
	if err != nil {
		t.Fatalf("table_info failed: %v", err)
	}
	defer rows.Close()

	columns := map[string]bool{}
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notnull   int
			dfltValue any
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("scan failed: %v", err)
		}
		columns[name] = true
	}

	for _, col := range []string{"key", "data", "size"} {
		if !columns[col] {
			t.Errorf("blobs table missing column %q", col)
		}
	}
}

func TestSQLiteWrite_RecordsSize(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	if err := s.Write(ctx, "ns/1/frag", make([]byte, 48)); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	var size int
	if err := s.db.QueryRow("SELECT size FROM blobs WHERE key = ?", "ns/1/frag").Scan(&size); err != nil {
		t.Fatalf("query size failed: %v", err)
	}
	if size != 48 {
		t.Errorf("size = %d, want 48", size)
	}
}

func TestOpenSQLite_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	if _, err := s.db.Exec("PRAGMA user_version = 2"); err != nil {
		t.Fatalf("set user_version: %v", err)
	}
	s.Close()

	if _, err := OpenSQLite(path); err == nil {
		t.Fatal("OpenSQLite() accepted a database from a newer schema")
	}
}

func TestOpenSQLite_ReopenKeepsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	for i := 0; i < 2; i++ {
		s, err := OpenSQLite(path)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		if err := s.verifyPragma("user_version", "1"); err != nil {
			t.Error(err)
		}
		s.Close()
	}
}

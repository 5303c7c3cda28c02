package db

import (
	"strings"
	"testing"
)

func TestTranslateTypes(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bigint", "created_at BIGINT NOT NULL", "created_at INTEGER NOT NULL"},
		{"varchar", "id VARCHAR(36) PRIMARY KEY", "id TEXT PRIMARY KEY"},
		{"longtext", "content LONGTEXT NOT NULL", "content TEXT NOT NULL"},
		{"json-type", "params JSON", "params TEXT"},
		{"enum", "status ENUM('pending', 'processing') NOT NULL", "status TEXT NOT NULL"},
		{"boolean", "disabled BOOLEAN DEFAULT FALSE", "disabled INTEGER DEFAULT FALSE"},
		{"tinyint", "enabled TINYINT(1) DEFAULT 1", "enabled INTEGER DEFAULT 1"},
		{"auto-increment", "n INT AUTO_INCREMENT", "n INT AUTOINCREMENT"},
		{"greatest", "SET balance = GREATEST(balance + ?, 0)", "SET balance = MAX(balance + ?, 0)"},
		{"case-insensitive", "x bigint, y varchar(10)", "x INTEGER, y TEXT"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Translate(tc.in); got != tc.want {
				t.Errorf("Translate(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestTranslateStripsIndexes(t *testing.T) {
	in := `CREATE TABLE IF NOT EXISTS generations (
  id VARCHAR(36) PRIMARY KEY,
  user_id VARCHAR(36) NOT NULL,
  INDEX idx_user_id (user_id),
  INDEX idx_status (status)
)`
	got := Translate(in)
	if strings.Contains(strings.ToUpper(got), "INDEX") {
		t.Errorf("INDEX definitions should be stripped, got:\n%s", got)
	}
	if strings.Contains(got, ",\n)") || strings.Contains(got, ",)") {
		t.Errorf("stripping should not leave a trailing comma, got:\n%s", got)
	}
}

func TestTranslateStripsForeignKeys(t *testing.T) {
	in := `CREATE TABLE t (
  id VARCHAR(36) PRIMARY KEY,
  user_id VARCHAR(36) NOT NULL,
  FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
)`
	got := Translate(in)
	upper := strings.ToUpper(got)
	if strings.Contains(upper, "FOREIGN KEY") {
		t.Errorf("FOREIGN KEY should be stripped, got:\n%s", got)
	}
	if strings.Contains(upper, "CASCADE") {
		t.Errorf("cascade clause should be stripped, got:\n%s", got)
	}
}

// The production schema must come out clean: no MySQL-only tokens survive.
func TestTranslateSchema(t *testing.T) {
	got := strings.ToUpper(Translate(createTablesSQL))
	for _, token := range []string{"BIGINT", "VARCHAR", "LONGTEXT", "ENUM(", "TINYINT", "AUTO_INCREMENT", "INDEX ", "FOREIGN KEY"} {
		if strings.Contains(got, token) {
			t.Errorf("translated schema still contains %q", token)
		}
	}
}

func TestTranslateLeavesPlainStatementsAlone(t *testing.T) {
	in := "SELECT * FROM users WHERE id = ?"
	if got := Translate(in); got != in {
		t.Errorf("Translate(%q) = %q, want unchanged", in, got)
	}
}

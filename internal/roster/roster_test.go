package roster_test

import (
	"os"
	"path/filepath"
	"testing"

	"callsheet/internal/roster"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadCSV(t *testing.T) {
	path := writeFile(t, "roster.csv", "id,first_name,state\ns1,Jane,TX\ns2,Bob,CA\n")
	records, err := roster.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d", len(records))
	}
	if records[0]["id"] != "s1" || records[0]["first_name"] != "Jane" || records[0]["state"] != "TX" {
		t.Fatalf("record 0 = %v", records[0])
	}
}

func TestLoadCSVRaggedRows(t *testing.T) {
	path := writeFile(t, "roster.csv", "id,name,email\ns1,Jane\ns2,Bob,bob@example.com,extra\n")
	records, err := roster.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := records[0]["email"]; ok {
		t.Fatalf("short row should omit missing fields: %v", records[0])
	}
	if records[1]["email"] != "bob@example.com" {
		t.Fatalf("record 1 = %v", records[1])
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "roster.json", `[{"id":"s1","grade":4,"active":true},{"name":"no id"}]`)
	records, err := roster.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d", len(records))
	}
	if records[0]["grade"] != 4.0 {
		t.Fatalf("json numbers decode as float64, got %T", records[0]["grade"])
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	path := writeFile(t, "roster.xml", "<roster/>")
	if _, err := roster.Load(path); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestLoadEmptyCSV(t *testing.T) {
	path := writeFile(t, "roster.csv", "")
	records, err := roster.Load(path)
	if err != nil || len(records) != 0 {
		t.Fatalf("empty file = %v, %v", records, err)
	}
}

func TestMissingIDCount(t *testing.T) {
	path := writeFile(t, "roster.json", `[{"id":"s1"},{"name":"x"},{"id":""},{"id":null}]`)
	records, err := roster.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if n := roster.MissingIDCount(records, ""); n != 3 {
		t.Fatalf("MissingIDCount = %d, want 3", n)
	}
	if n := roster.MissingIDCount(records, "name"); n != 3 {
		t.Fatalf("MissingIDCount with configured field = %d, want 3", n)
	}
}

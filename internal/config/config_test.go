package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"callsheet/internal/config"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := config.Default()
	if cfg.Roster.Path != "roster.csv" {
		t.Fatalf("default roster path = %q", cfg.Roster.Path)
	}
	if len(cfg.Report.NameFields) == 0 {
		t.Fatal("default config should carry name field candidates")
	}
	if cfg.Report.NameFields[0].First != "first_name" || cfg.Report.NameFields[0].Last != "last_name" {
		t.Fatalf("first candidate = %+v", cfg.Report.NameFields[0])
	}
}

func TestFromYAMLValidation(t *testing.T) {
	cases := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{"valid", "roster:\n  path: people.json\n", false},
		{"bad roster extension", "roster:\n  path: people.txt\n", true},
		{"name pair missing first", "report:\n  name_fields:\n    - last: surname\n", true},
		{"webhook missing url", "webhooks:\n  - events: [campaign.create]\n", true},
		{"webhook ok", "webhooks:\n  - url: http://localhost:9999/hook\n    events: [call.record]\n", false},
		{"not yaml", "{{{", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.FromYAML([]byte(tc.yaml))
			if (err != nil) != tc.wantErr {
				t.Fatalf("FromYAML err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.LoadOptional(dir)
	if err != nil || cfg != nil {
		t.Fatalf("missing file should be nil,nil: %v %v", cfg, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "callsheet.yml"), []byte(config.GenerateDefault()), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = config.LoadOptional(dir)
	if err != nil || cfg == nil {
		t.Fatalf("load template: %v %v", cfg, err)
	}
	if cfg.Roster.Path != "roster.csv" {
		t.Fatalf("roster path = %q", cfg.Roster.Path)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATA_DIR", "LAST_RUN_FILE", "READWISE_TOKEN", "READWISE_API_KEY", "READWISE_BASE_URL",
		"LLM_PROVIDER", "LLM_API_KEY", "OPENAI_API_KEY", "LLM_BASE_URL", "LLM_MODEL", "LLM_BATCH_SIZE",
		"AMAZON_USER", "AMAZON_PASS", "ANKI_CONNECT_URL", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("ANKIFY_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Anki.Deck != "2-Recent" || cfg.Anki.BasicModel != "Basic (synced)" || cfg.Anki.VocabModel != "Vocab.2023-04-08" {
		t.Errorf("unexpected anki defaults %+v", cfg.Anki)
	}
	if cfg.Anki.URL != DefaultAnkiURL {
		t.Errorf("unexpected anki url %q", cfg.Anki.URL)
	}
	if !cfg.Kindle.Headless || cfg.Kindle.BookLimit != 10 {
		t.Errorf("unexpected kindle defaults %+v", cfg.Kindle)
	}
	if cfg.DataDir == "" {
		t.Error("expected a default data dir")
	}
	if cfg.GetLLMConfig().MaxAttempts != 1 {
		t.Error("expected a single attempt by default")
	}
	if cfg.HasLLM() {
		t.Error("no backend should be configured by default")
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
data_dir: /tmp/ankify-data
readwise_token: file-token
llm:
  provider: anthropic
  api_key: file-key
  batch_size: 25
anki:
  deck: Books
kindle:
  headless: false
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("READWISE_API_KEY", "legacy-token")
	t.Setenv("LLM_MODEL", "claude-haiku")
	t.Setenv("AMAZON_USER", "reader@example.com")
	t.Setenv("READWISE_BASE_URL", "http://127.0.0.1:9999/api/v2")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.ReadwiseToken != "legacy-token" {
		t.Errorf("legacy env should override file token, got %q", cfg.ReadwiseToken)
	}
	if cfg.ReadwiseURL != "http://127.0.0.1:9999/api/v2" {
		t.Errorf("unexpected readwise url %q", cfg.ReadwiseURL)
	}
	if cfg.LLM.Provider != "anthropic" || cfg.LLM.Model != "claude-haiku" || cfg.LLM.BatchSize != 25 {
		t.Errorf("unexpected llm config %+v", cfg.LLM)
	}
	if cfg.Anki.Deck != "Books" || cfg.Anki.BasicModel != DefaultBasicModel {
		t.Errorf("file should override only the keys it sets, got %+v", cfg.Anki)
	}
	if cfg.Kindle.Headless {
		t.Error("expected headless=false from file")
	}
	if cfg.Kindle.User != "reader@example.com" {
		t.Errorf("unexpected kindle user %q", cfg.Kindle.User)
	}
	if cfg.CheckpointPath() != "/tmp/ankify-data/last_run.json" {
		t.Errorf("unexpected checkpoint path %q", cfg.CheckpointPath())
	}
	if !cfg.HasLLM() {
		t.Error("expected backend to be configured")
	}
}

func TestLegacyOpenAIKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-legacy")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	llm := cfg.GetLLMConfig()
	if llm.APIKey != "sk-legacy" || llm.Provider != "openai" {
		t.Errorf("unexpected llm config %+v", llm)
	}
}

func TestLastRunFileEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("LAST_RUN_FILE", "/var/lib/ankify/last-run")

	cfg, _ := Load()
	if cfg.CheckpointPath() != "/var/lib/ankify/last-run" {
		t.Errorf("unexpected checkpoint path %q", cfg.CheckpointPath())
	}
}

func TestSaveExampleConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	got, err := SaveExampleConfig(path)
	if err != nil {
		t.Fatalf("SaveExampleConfig failed: %v", err)
	}
	if got != path {
		t.Errorf("unexpected path %q", got)
	}

	clearEnv(t)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("example config should load: %v", err)
	}
	if cfg.Anki.Deck != DefaultDeck {
		t.Errorf("unexpected deck %q", cfg.Anki.Deck)
	}

	os.WriteFile(path, []byte("anki:\n  deck: Mine\n"), 0600)
	if _, err := SaveExampleConfig(path); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "anki:\n  deck: Mine\n" {
		t.Error("existing config must not be overwritten")
	}
}

func TestCheckpointStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "last_run.json")
	store := NewCheckpointStore(path)

	cp, err := store.Load()
	if err != nil {
		t.Fatalf("Load of missing file failed: %v", err)
	}
	if cp.LastRun != nil || cp.LastSnapshot != "" {
		t.Errorf("expected empty checkpoint, got %+v", cp)
	}

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cp.LastRun = &now
	cp.LastSnapshot = "books-2024-03-01T12:00:00.000Z.json"
	if err := store.Save(cp); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.LastRun == nil || !loaded.LastRun.Equal(now) {
		t.Errorf("unexpected last run %v", loaded.LastRun)
	}
	if loaded.LastSnapshot != cp.LastSnapshot || loaded.Version != "1.0" {
		t.Errorf("unexpected checkpoint %+v", loaded)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected no temp files left behind, got %d entries", len(entries))
	}
}

func TestCheckpointLegacyTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last_run")
	if err := os.WriteFile(path, []byte("2023-04-08T17:30:00.123Z\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cp, err := NewCheckpointStore(path).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := time.Date(2023, 4, 8, 17, 30, 0, 123000000, time.UTC)
	if cp.LastRun == nil || !cp.LastRun.Equal(want) {
		t.Errorf("LastRun = %v, want %v", cp.LastRun, want)
	}
}

func TestCheckpointCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last_run.json")
	os.WriteFile(path, []byte("{not json"), 0600)

	if _, err := NewCheckpointStore(path).Load(); err == nil {
		t.Error("expected error for corrupt checkpoint")
	}
}

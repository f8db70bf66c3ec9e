package factory

import (
	"context"
	"testing"

	"go-style-scout/internal/config"
	"go-style-scout/internal/detection"
	"go-style-scout/internal/search"
)

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Search.SupabaseURL = "https://project.supabase.co"
	cfg.Search.SupabaseKey = "key"
	return cfg
}

func TestCreateDetector(t *testing.T) {
	cfg := testConfig()
	f := NewCapabilityFactory(cfg)

	d, err := f.CreateDetector(context.Background())
	if err != nil {
		t.Fatalf("Expected http detector, got %v", err)
	}
	if _, ok := d.(*detection.HTTPDetector); !ok {
		t.Errorf("Expected *detection.HTTPDetector, got %T", d)
	}

	cfg.Detector.Backend = "yolo"
	if _, err := f.CreateDetector(context.Background()); err == nil {
		t.Error("Expected error for unknown detector backend")
	}
}

func TestCreateSearcher(t *testing.T) {
	cfg := testConfig()
	f := NewCapabilityFactory(cfg)

	s, err := f.CreateSearcher(context.Background())
	if err != nil {
		t.Fatalf("Expected supabase searcher, got %v", err)
	}
	if _, ok := s.(*search.SupabaseSearcher); !ok {
		t.Errorf("Expected *search.SupabaseSearcher, got %T", s)
	}

	cfg.Search.Backend = "milvus"
	if _, err := f.CreateSearcher(context.Background()); err == nil {
		t.Error("Expected error for unknown search backend")
	}
}

func TestCreateImageRepository_AppliesHostAllowlist(t *testing.T) {
	cfg := testConfig()
	cfg.ImageHostAllowlist = []string{"cdn.shop.com"}

	repo, err := NewStorageFactory(cfg).CreateImageRepository()
	if err != nil {
		t.Fatalf("Expected repository, got %v", err)
	}
	if err := repo.ValidateImageURL("https://cdn.shop.com/a.jpg"); err != nil {
		t.Errorf("Expected allowlisted host to pass, got %v", err)
	}
	if err := repo.ValidateImageURL("https://elsewhere.com/a.jpg"); err == nil {
		t.Error("Expected other hosts to be rejected")
	}
}

func TestCreateImageRepository_RejectsInternalTargets(t *testing.T) {
	internal := []string{
		"http://127.0.0.1:5000/embed",
		"http://169.254.169.254/latest/meta-data/",
		"http://localhost:3001/metrics",
	}

	repo, err := NewStorageFactory(testConfig()).CreateImageRepository()
	if err != nil {
		t.Fatalf("Expected repository, got %v", err)
	}
	for _, u := range internal {
		if err := repo.ValidateImageURL(u); err == nil {
			t.Errorf("Expected %s to be rejected by default", u)
		}
	}

	cfg := testConfig()
	cfg.AllowPrivateImageHosts = true
	repo, err = NewStorageFactory(cfg).CreateImageRepository()
	if err != nil {
		t.Fatalf("Expected repository, got %v", err)
	}
	for _, u := range internal {
		if err := repo.ValidateImageURL(u); err != nil {
			t.Errorf("Expected %s to pass when private hosts are allowed, got %v", u, err)
		}
	}
}

package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestImagePrompt_ContainsConfiguredFields(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "default config", cfg: Default()},
		{name: "custom config", cfg: Config{
			Character:   "X",
			Pose:        "mid-air flip",
			Suit:        "chrome armor",
			Environment: "rainy neon street",
			Lighting:    "cold blue rim light",
		}},
		{name: "empty config", cfg: Config{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ImagePrompt(tt.cfg)
			if got == "" {
				t.Fatal("ImagePrompt() returned empty string")
			}
			for _, want := range []string{tt.cfg.Character, tt.cfg.Pose, tt.cfg.Suit, tt.cfg.Environment, tt.cfg.Lighting} {
				if !strings.Contains(got, want) {
					t.Errorf("ImagePrompt() = %q, missing %q", got, want)
				}
			}
		})
	}
}

func TestImagePrompt_Layout(t *testing.T) {
	got := ImagePrompt(Config{Character: "X", Pose: "P", Suit: "S", Environment: "E", Lighting: "L"})
	want := "Ultra-detailed cinematic superhero wallpaper, X in a P, wearing a S. E, L. "
	if !strings.HasPrefix(got, want) {
		t.Errorf("ImagePrompt() = %q, want prefix %q", got, want)
	}
	if !strings.HasSuffix(got, "cinematic look.") {
		t.Errorf("ImagePrompt() = %q, want suffix %q", got, "cinematic look.")
	}
}

func TestAnimationPrompt(t *testing.T) {
	got := AnimationPrompt(Config{AnimationKeywords: "slow parallax"})
	want := "slow parallax. Bring the character to life with cinematic motion."
	if got != want {
		t.Errorf("AnimationPrompt() = %q, want %q", got, want)
	}
	if AnimationPrompt(Config{}) == "" {
		t.Error("AnimationPrompt() with empty keywords should still be non-empty")
	}
}

func TestConfig_Merge(t *testing.T) {
	base := Default()
	merged := base.Merge(Config{Character: "X", Lighting: "moonlight"})

	if merged.Character != "X" || merged.Lighting != "moonlight" {
		t.Errorf("Merge() did not apply patch: %+v", merged)
	}
	if merged.Pose != base.Pose || merged.AnimationKeywords != base.AnimationKeywords {
		t.Errorf("Merge() overwrote fields missing from patch: %+v", merged)
	}
}

func TestLoadPresets(t *testing.T) {
	t.Run("empty path returns default only", func(t *testing.T) {
		presets, err := LoadPresets("")
		if err != nil {
			t.Fatalf("LoadPresets() error = %v", err)
		}
		if len(presets) != 1 {
			t.Fatalf("expected 1 preset, got %d", len(presets))
		}
		if presets[DefaultPresetName] != Default() {
			t.Errorf("default preset mismatch: %+v", presets[DefaultPresetName])
		}
	})

	t.Run("file presets are merged over default", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "presets.yaml")
		content := `presets:
  neon:
    character: "cyber ninja"
    environment: "rainy neon rooftop"
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write preset file: %v", err)
		}

		presets, err := LoadPresets(path)
		if err != nil {
			t.Fatalf("LoadPresets() error = %v", err)
		}
		neon, ok := presets["neon"]
		if !ok {
			t.Fatalf("preset neon not loaded, got %v", presets.Names())
		}
		if neon.Character != "cyber ninja" || neon.Environment != "rainy neon rooftop" {
			t.Errorf("unexpected neon preset: %+v", neon)
		}
		if neon.Suit != Default().Suit {
			t.Errorf("missing field should fall back to default, got %q", neon.Suit)
		}
		if names := presets.Names(); len(names) != 2 || names[0] != "default" || names[1] != "neon" {
			t.Errorf("Names() = %v", names)
		}
	})

	t.Run("missing file fails", func(t *testing.T) {
		if _, err := LoadPresets(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("invalid yaml fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(path, []byte("presets: [unclosed"), 0644); err != nil {
			t.Fatalf("failed to write preset file: %v", err)
		}
		if _, err := LoadPresets(path); err == nil {
			t.Error("expected error for invalid yaml")
		}
	})
}

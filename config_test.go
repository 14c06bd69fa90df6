package tilemap

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
)

func TestDefaultConfigRoundTrip(t *testing.T) {
	want := DefaultConfig()
	data, err := want.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for _, key := range []string{"stencil_values = 256", "fade_duration = '300ms'", "placement_budget = '2ms'"} {
		if !strings.Contains(string(data), key) {
			t.Errorf("encoded config lacks %q:\n%s", key, data)
		}
	}
	got, err := ParseConfig(data)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if got != want {
		t.Errorf("round trip = %+v, want %+v", got, want)
	}
}

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		check   func(Config) bool
		wantErr bool
	}{
		{
			name:  "empty keeps defaults",
			doc:   "",
			check: func(c Config) bool { return c == DefaultConfig() },
		},
		{
			name: "overrides",
			doc:  "stencil_values = 16\nfade_duration = \"1s\"\ncompile_shaders_to_spirv = true\n",
			check: func(c Config) bool {
				return c.StencilValues == 16 && c.FadeDuration.Std() == time.Second &&
					c.CompileShadersToSPIRV && c.SublayersPerLayer == 3
			},
		},
		{name: "unknown key", doc: "stencil_bits = 8\n", wantErr: true},
		{name: "bad duration", doc: "fade_duration = \"soon\"\n", wantErr: true},
		{name: "invalid value", doc: "depth_epsilon = 2.0\n", wantErr: true},
		{name: "syntax", doc: "stencil_values = \n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConfig([]byte(tt.doc))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseConfig = %+v, want an error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseConfig: %v", err)
			}
			if !tt.check(got) {
				t.Errorf("ParseConfig = %+v", got)
			}
		})
	}
}

func TestParseConfigUnknownKeyIsStrictError(t *testing.T) {
	_, err := ParseConfig([]byte("stencil_bits = 8\n"))
	var strict *toml.StrictMissingError
	if !errors.As(err, &strict) {
		t.Fatalf("err = %v, want a *toml.StrictMissingError", err)
	}
	if !strings.Contains(err.Error(), "stencil_bits") {
		t.Errorf("err = %q, want it to name the key", err)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tilemap.toml")
	if err := os.WriteFile(path, []byte("collision_grid_cell = 32.0\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.CollisionGridCell != 32 {
		t.Errorf("CollisionGridCell = %g, want 32", cfg.CollisionGridCell)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadConfig(missing) = %v, want os.ErrNotExist", err)
	}
}

package cmd

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andresmejia3/facegate/internal/config"
	"github.com/andresmejia3/facegate/internal/gallery"
	"github.com/spf13/pflag"
)

func TestReadMenu(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantChoice menuChoice
		wantName   string
		wantErr    error
	}{
		{"Register", "1\nAlice Smith\n", choiceEnroll, "Alice Smith", nil},
		{"Register trims name", "1\n  bob  \n", choiceEnroll, "bob", nil},
		{"Register without trailing newline", "1\ncarol", choiceEnroll, "carol", nil},
		{"Verify", "2\n", choiceVerify, "", nil},
		{"Verify with spaces", " 2 \n", choiceVerify, "", nil},
		{"Unknown option", "3\n", 0, "", errInvalidChoice},
		{"Empty input", "", 0, "", io.EOF},
		{"Register then EOF", "1\n", 0, "", io.EOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			choice, name, err := readMenu(bufio.NewReader(strings.NewReader(tt.input)), &out)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("readMenu failed: %v", err)
			}
			if choice != tt.wantChoice || name != tt.wantName {
				t.Errorf("readMenu() = (%v, %q), want (%v, %q)", choice, name, tt.wantChoice, tt.wantName)
			}
			if !strings.Contains(out.String(), "1. Register a User") || !strings.Contains(out.String(), "2. Verify a User") {
				t.Errorf("Menu not shown: %q", out.String())
			}
		})
	}
}

func TestApplyFlags(t *testing.T) {
	var o Options
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.StringVar(&o.Root, "root", "", "")
	fs.StringVar(&o.Device, "device", "", "")
	fs.StringVar(&o.Python, "python", "", "")
	fs.StringVar(&o.EngineScript, "engine-script", "", "")
	fs.StringVar(&o.MatchModel, "model", "", "")
	fs.StringVar(&o.Preview, "preview", "", "")
	fs.StringVar(&o.PreviewFile, "preview-file", "", "")
	fs.StringVar(&o.Replay, "replay", "", "")
	fs.BoolVar(&o.Staged, "staged", false, "")
	fs.BoolVar(&o.Debug, "debug", false, "")

	if err := fs.Parse([]string{"--device", "/dev/video2", "--preview", "file", "--staged"}); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Root = "/from/yaml"
	cfg.Debug = true
	applyFlags(fs, &o, cfg)

	if cfg.Camera.Device != "/dev/video2" || cfg.Preview.Mode != config.PreviewFile || !cfg.Staged {
		t.Errorf("Explicit flags not applied: %+v", cfg)
	}
	// Flags left at their zero value must not clobber the configuration.
	if cfg.Root != "/from/yaml" || !cfg.Debug || cfg.Engine.Python != "python3" {
		t.Errorf("Unset flags overrode configuration: %+v", cfg)
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		if got := confirm(bufio.NewReader(strings.NewReader(tt.input)), &out, "Sure?"); got != tt.want {
			t.Errorf("confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "[y/N]") {
			t.Errorf("Prompt missing: %q", out.String())
		}
	}
}

func TestMissingPoses(t *testing.T) {
	dir := filepath.Join("data", "faces", "alice")
	tests := []struct {
		name string
		refs []string
		want string
	}{
		{"Complete", []string{"down.jpg", "left.jpg", "right.jpg", "straight.jpg", "up.jpg"}, "-"},
		{"Canceled after two poses", []string{"left.jpg", "straight.jpg"}, "right,up,down"},
		{"Empty", nil, "straight,left,right,up,down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := gallery.Identity{Name: "alice"}
			for _, r := range tt.refs {
				id.References = append(id.References, filepath.Join(dir, r))
			}
			if got := missingPoses(id); got != tt.want {
				t.Errorf("missingPoses() = %q, want %q", got, tt.want)
			}
		})
	}
}

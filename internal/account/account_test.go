package account

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/tanderapp/tander/internal/config"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "default", false},
		{"valid with numbers", "maria63", false},
		{"valid with hyphen", "my-account", false},
		{"valid with underscore", "my_account", false},
		{"valid single char", "a", false},
		{"valid max length", strings.Repeat("a", 64), false},
		{"empty", "", true},
		{"uppercase", "Maria", true},
		{"space", "my account", true},
		{"dot", "my.account", true},
		{"too long", strings.Repeat("a", 65), true},
		{"special chars", "my@account", true},
		{"slash", "my/account", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestResolveFlagWins(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if got := Resolve("work"); got != "work" {
		t.Errorf("Resolve(work) = %q, want %q", got, "work")
	}
}

func TestResolveFallsBackToDefault(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if got := Resolve(""); got != DefaultAccountName {
		t.Errorf("Resolve() = %q, want %q", got, DefaultAccountName)
	}
}

func TestResolveUsesConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := config.Default()
	cfg.DefaultAccount = "maria"
	if err := config.Save(filepath.Join(home, ".tander", "config.toml"), cfg); err != nil {
		t.Fatal(err)
	}

	if got := Resolve(""); got != "maria" {
		t.Errorf("Resolve() = %q, want %q", got, "maria")
	}
}

func TestPathsUnderAccountDir(t *testing.T) {
	t.Setenv("HOME", "/home/tander-test")

	dir := Dir("maria")
	for name, path := range map[string]string{
		"cache": CacheDBPath("maria"),
		"token": TokenPath("maria"),
		"lock":  LockPath("maria"),
		"log":   LogPath("maria"),
	} {
		if !strings.HasPrefix(path, dir) {
			t.Errorf("%s path %q not under account dir %q", name, path, dir)
		}
	}
	if filepath.Base(TokenPath("maria")) != "token.json" {
		t.Errorf("token file = %q, want token.json", filepath.Base(TokenPath("maria")))
	}
}

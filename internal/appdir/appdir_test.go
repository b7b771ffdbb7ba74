package appdir

import (
	"errors"
	"path/filepath"
	"testing"
)

func fakePlatform(goos string, env map[string]string, home string) Platform {
	return Platform{
		GOOS:   goos,
		Getenv: func(k string) string { return env[k] },
		HomeDir: func() (string, error) {
			if home == "" {
				return "", errors.New("no home")
			}
			return home, nil
		},
	}
}

func TestProjectNameLowercasesFolder(t *testing.T) {
	if got := ProjectName(filepath.Join("/work", "PySeed_Demo"), false, ""); got != "pyseed_demo" {
		t.Fatalf("ProjectName = %q, want pyseed_demo", got)
	}
}

func TestProjectNamePackagedUsesExecutableGrandparent(t *testing.T) {
	exe := filepath.Join("/work", "MyApp", "dist", "myapp")
	if got := ProjectName("/tmp/_MEI1234", true, exe); got != "myapp" {
		t.Fatalf("ProjectName = %q, want myapp", got)
	}
}

func TestResolveLinuxXDG(t *testing.T) {
	l, err := Resolve("demo", fakePlatform("linux", map[string]string{"XDG_DATA_HOME": "/xdg"}, "/home/u"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if l.Root != filepath.Join("/xdg", "demo") {
		t.Fatalf("Root = %q", l.Root)
	}
}

func TestResolveLinuxDefault(t *testing.T) {
	l, err := Resolve("demo", fakePlatform("linux", nil, "/home/u"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := filepath.Join("/home/u", ".local", "share", "demo")
	if l.Root != want {
		t.Fatalf("Root = %q, want %q", l.Root, want)
	}
	if l.EnvironmentDir() != filepath.Join(want, "venv") {
		t.Fatalf("EnvironmentDir = %q", l.EnvironmentDir())
	}
	if l.TokenCachePath() != filepath.Join(want, "github_token.json") {
		t.Fatalf("TokenCachePath = %q", l.TokenCachePath())
	}
}

func TestResolveWindowsRequiresLocalAppData(t *testing.T) {
	if _, err := Resolve("demo", fakePlatform("windows", nil, "/home/u")); err == nil {
		t.Fatalf("expected error without LOCALAPPDATA")
	}
	l, err := Resolve("demo", fakePlatform("windows", map[string]string{"LOCALAPPDATA": "/lad"}, ""))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if l.Root != filepath.Join("/lad", "demo") {
		t.Fatalf("Root = %q", l.Root)
	}
}

func TestResolveDarwinDotDir(t *testing.T) {
	l, err := Resolve("demo", fakePlatform("darwin", nil, "/Users/u"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if l.Root != filepath.Join("/Users/u", ".demo") {
		t.Fatalf("Root = %q", l.Root)
	}
}

func TestResolveRejectsEmptyName(t *testing.T) {
	if _, err := Resolve("  ", fakePlatform("linux", nil, "/home/u")); err == nil {
		t.Fatalf("expected error for empty name")
	}
}

func TestEnsureCreatesRoot(t *testing.T) {
	l := Layout{Name: "demo", Root: filepath.Join(t.TempDir(), "nested", "demo")}
	if err := l.Ensure(); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := l.Ensure(); err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
}

package cache

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempSource(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestKeyDeterministic(t *testing.T) {
	dir := t.TempDir()
	src := writeTempSource(t, dir, "foo.c", "int main() { return 0; }")

	k1, err := Key(src, []string{"-O2", "-c"}, nil)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	k2, err := Key(src, []string{"-O2", "-c"}, nil)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	if k1 != k2 {
		t.Errorf("Key not deterministic: %x != %x", k1, k2)
	}
}

func TestKeyChangesWithContent(t *testing.T) {
	dir := t.TempDir()
	src := writeTempSource(t, dir, "foo.c", "int main() { return 0; }")
	k1, err := Key(src, []string{"-O2"}, nil)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}

	if err := os.WriteFile(src, []byte("int main() { return 1; }"), 0o644); err != nil {
		t.Fatal(err)
	}
	k2, err := Key(src, []string{"-O2"}, nil)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	if k1 == k2 {
		t.Error("expected key to change when source contents change")
	}
}

func TestKeyChangesWithFlags(t *testing.T) {
	dir := t.TempDir()
	src := writeTempSource(t, dir, "foo.c", "int main() { return 0; }")

	k1, err := Key(src, []string{"-O2"}, []string{"-flto"})
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	k2, err := Key(src, []string{"-O2"}, []string{"-fembed-bitcode"})
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	if k1 == k2 {
		t.Error("expected key to change when bitcode-generation flags change")
	}
}

func TestKeyArgOrderIndependent(t *testing.T) {
	dir := t.TempDir()
	src := writeTempSource(t, dir, "foo.c", "int main() { return 0; }")

	k1, err := Key(src, []string{"-O2", "-Wall", "-c"}, nil)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	k2, err := Key(src, []string{"-c", "-O2", "-Wall"}, nil)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	if k1 != k2 {
		t.Errorf("Key should be independent of argument order: %x != %x", k1, k2)
	}
}

func TestLookupMiss(t *testing.T) {
	dir := t.TempDir()
	if _, ok := Lookup(dir, "/tmp/foo.c", 0xdeadbeef); ok {
		t.Error("expected a miss for an empty cache directory")
	}
}

func TestStoreAndLookup(t *testing.T) {
	dir := t.TempDir()
	bc := filepath.Join(dir, "foo.o.bc")
	if err := os.WriteFile(bc, []byte("fake bitcode"), 0o644); err != nil {
		t.Fatal(err)
	}

	stored, err := Store(dir, "/src/foo.c", 0x1234, bc)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, err := os.Stat(stored); err != nil {
		t.Fatalf("stored bitcode missing: %v", err)
	}

	path, ok := Lookup(dir, "/src/foo.c", 0x1234)
	if !ok {
		t.Fatal("expected a hit after Store")
	}
	if path != stored {
		t.Errorf("Lookup path = %q, want %q", path, stored)
	}
}

func TestCachedBitcodePathFormat(t *testing.T) {
	got := CachedBitcodePath("/tmp/cache", "/src/foo.c", 0x1234567890abcdef)
	want := "/tmp/cache/foo_1234567890abcdef.bc"
	if got != want {
		t.Errorf("CachedBitcodePath = %q, want %q", got, want)
	}
}

func TestEnabledDefault(t *testing.T) {
	t.Setenv(EnvVar, "")
	os.Unsetenv(EnvVar)
	if Enabled(false) {
		t.Error("expected caching disabled by default when config says so")
	}
	if !Enabled(true) {
		t.Error("expected caching enabled when config says so and no env override")
	}
}

func TestEnabledEnvOverride(t *testing.T) {
	t.Setenv(EnvVar, "1")
	if !Enabled(false) {
		t.Error("expected RLLVM_CACHE=1 to force caching on regardless of config")
	}

	t.Setenv(EnvVar, "0")
	if Enabled(true) {
		t.Error("expected RLLVM_CACHE=0 to force caching off regardless of config")
	}
}

func TestDirCreation(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "nested", "cache")

	dir, err := Dir(target)
	if err != nil {
		t.Fatalf("Dir: %v", err)
	}
	if dir != target {
		t.Errorf("Dir = %q, want %q", dir, target)
	}
	info, err := os.Stat(target)
	if err != nil || !info.IsDir() {
		t.Fatalf("expected cache directory to be created at %q", target)
	}
}

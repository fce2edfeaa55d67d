package secretbind

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNoopResolvesNoSecrets(t *testing.T) {
	secrets, err := Noop{}.Resolve("any-id")
	if err != nil || secrets != nil {
		t.Errorf("Noop.Resolve = (%v, %v), want (nil, nil)", secrets, err)
	}
}

func TestStaticResolvesFixedList(t *testing.T) {
	want := []Secret{{Name: "db-password", Data: []byte("hunter2")}}
	got, err := Static{Secrets: want}.Resolve("any-id")
	if err != nil {
		t.Fatalf("Static.Resolve: %v", err)
	}
	if len(got) != 1 || got[0].Name != "db-password" {
		t.Errorf("Static.Resolve = %+v, want %+v", got, want)
	}
}

func TestWriteTempWritesModeAndContent(t *testing.T) {
	dir := t.TempDir()
	secret := Secret{Name: "token", Data: []byte("s3cr3t")}

	path, err := WriteTemp(dir, secret)
	if err != nil {
		t.Fatalf("WriteTemp: %v", err)
	}
	if path != filepath.Join(dir, "token") {
		t.Errorf("WriteTemp path = %q, want %q", path, filepath.Join(dir, "token"))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "s3cr3t" {
		t.Errorf("file content = %q, want %q", data, "s3cr3t")
	}

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if fi.Mode().Perm() != 0400 {
		t.Errorf("file mode = %v, want 0400", fi.Mode().Perm())
	}
}

func TestWriteTempRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	secret := Secret{Name: "token", Data: []byte("one")}
	if _, err := WriteTemp(dir, secret); err != nil {
		t.Fatalf("first WriteTemp: %v", err)
	}
	if _, err := WriteTemp(dir, secret); err == nil {
		t.Error("second WriteTemp with same name succeeded, want an error (O_EXCL)")
	}
}

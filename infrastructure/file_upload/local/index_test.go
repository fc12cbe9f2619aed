package local

import (
	"bytes"
	"testing"
)

func TestLocalDiskServiceRoundTrip(t *testing.T) {
	service := &LocalDiskService{BaseDir: t.TempDir()}

	data := []byte("jpeg-bytes")
	if err := service.SaveFile("faces/123456789.jpg", data); err != nil {
		t.Fatalf("SaveFile() error = %v", err)
	}

	exists, err := service.CheckFileExists("faces/123456789.jpg")
	if err != nil || !exists {
		t.Fatalf("CheckFileExists() = (%v, %v), want (true, nil)", exists, err)
	}

	read, err := service.ReadFile("faces/123456789.jpg")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Equal(read, data) {
		t.Errorf("ReadFile() = %q, want %q", read, data)
	}

	if err := service.DeleteFile("faces/123456789.jpg"); err != nil {
		t.Fatalf("DeleteFile() error = %v", err)
	}
	exists, _ = service.CheckFileExists("faces/123456789.jpg")
	if exists {
		t.Error("file still exists after delete")
	}
}

func TestLocalDiskServiceDeleteMissingIsNoop(t *testing.T) {
	service := &LocalDiskService{BaseDir: t.TempDir()}
	if err := service.DeleteFile("faces/missing.jpg"); err != nil {
		t.Errorf("DeleteFile() on missing file = %v, want nil", err)
	}
}

func TestLocalDiskServiceRejectsPathEscape(t *testing.T) {
	base := t.TempDir()
	service := &LocalDiskService{BaseDir: base}

	if err := service.SaveFile("../escape.jpg", []byte("x")); err != nil {
		t.Fatalf("SaveFile() error = %v", err)
	}
	exists, _ := service.CheckFileExists("../escape.jpg")
	if !exists {
		t.Error("cleaned path should resolve inside the base directory")
	}
}

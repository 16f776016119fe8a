package ops

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hpungsan/shiplens/internal/cache"
	"github.com/hpungsan/shiplens/internal/config"
	"github.com/hpungsan/shiplens/internal/errors"
	"github.com/hpungsan/shiplens/internal/turvo"
)

func TestExportShipment_DefaultPath(t *testing.T) {
	cfg := config.DefaultConfig()
	exportsDir := testExportsDir(t)

	rec := &cache.Record{
		TabID:      3,
		ShipmentID: "12345",
		Data:       turvo.JSONBody([]byte(`{"details":{"custom_id":"PO-9","rate":1}}`)),
	}

	out, err := ExportShipment(cfg, exportsDir, rec, "")
	if err != nil {
		t.Fatalf("ExportShipment() error = %v", err)
	}
	if out.Path != filepath.Join(exportsDir, "12345.json") {
		t.Fatalf("Path = %q, want <exports>/12345.json", out.Path)
	}
	if out.Kind != "json" {
		t.Errorf("Kind = %q, want json", out.Kind)
	}

	data, err := os.ReadFile(out.Path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	want := "{\n  \"details\": {\n    \"custom_id\": \"PO-9\",\n    \"rate\": 1\n  }\n}"
	if string(data) != want {
		t.Fatalf("file content = %q, want %q", data, want)
	}
	if out.Bytes != len(want) {
		t.Errorf("Bytes = %d, want %d", out.Bytes, len(want))
	}
}

func TestExportShipment_TextBodyWrittenVerbatim(t *testing.T) {
	cfg := config.DefaultConfig()
	exportsDir := testExportsDir(t)

	rec := &cache.Record{ShipmentID: "7", Data: turvo.TextBody("Unauthorized")}
	out, err := ExportShipment(cfg, exportsDir, rec, "")
	if err != nil {
		t.Fatalf("ExportShipment() error = %v", err)
	}
	data, err := os.ReadFile(out.Path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "Unauthorized" {
		t.Fatalf("file content = %q", data)
	}
	if out.Kind != "text" {
		t.Errorf("Kind = %q, want text", out.Kind)
	}
}

func TestExportShipment_SanitizesShipmentID(t *testing.T) {
	cfg := config.DefaultConfig()
	exportsDir := testExportsDir(t)

	rec := &cache.Record{ShipmentID: "../../etc/passwd", Data: turvo.JSONBody([]byte(`{}`))}
	out, err := ExportShipment(cfg, exportsDir, rec, "")
	if err != nil {
		t.Fatalf("ExportShipment() error = %v", err)
	}
	if filepath.Dir(out.Path) != exportsDir {
		t.Fatalf("export escaped exports dir: %q", out.Path)
	}
	if filepath.Base(out.Path) != "etc-passwd.json" {
		t.Errorf("file name = %q", filepath.Base(out.Path))
	}
}

func TestExportShipment_NilRecord(t *testing.T) {
	_, err := ExportShipment(config.DefaultConfig(), testExportsDir(t), nil, "")
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got: %v", err)
	}
}

func TestExportShipmentList_FileName(t *testing.T) {
	cfg := config.DefaultConfig()
	exportsDir := testExportsDir(t)
	now := time.UnixMilli(1700000000123)

	out, err := ExportShipmentList(cfg, exportsDir, "PO-9", turvo.JSONBody([]byte(`{"list":[]}`)), "", now)
	if err != nil {
		t.Fatalf("ExportShipmentList() error = %v", err)
	}
	if filepath.Base(out.Path) != "shipment-list-PO-9-1700000000123.json" {
		t.Fatalf("file name = %q", filepath.Base(out.Path))
	}
}

func TestExportShipment_ExplicitPathMustNameShipment(t *testing.T) {
	cfg := config.DefaultConfig()
	exportsDir := testExportsDir(t)
	rec := &cache.Record{ShipmentID: "42", Data: turvo.JSONBody([]byte(`{}`))}

	_, err := ExportShipment(cfg, exportsDir, rec, filepath.Join(exportsDir, "notes.json"))
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got: %v", err)
	}

	out, err := ExportShipment(cfg, exportsDir, rec, filepath.Join(exportsDir, "acme-42.json"))
	if err != nil {
		t.Fatalf("ExportShipment() error = %v", err)
	}
	if filepath.Base(out.Path) != "acme-42.json" {
		t.Errorf("file name = %q", filepath.Base(out.Path))
	}
}

func TestExportShipmentList_ExplicitPathMustNameList(t *testing.T) {
	cfg := config.DefaultConfig()
	exportsDir := testExportsDir(t)
	body := turvo.JSONBody([]byte(`{"list":[]}`))
	now := time.UnixMilli(1700000000123)

	// A list must not land on a single shipment's file name.
	_, err := ExportShipmentList(cfg, exportsDir, "PO-9", body, filepath.Join(exportsDir, "42.json"), now)
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got: %v", err)
	}

	if _, err := ExportShipmentList(cfg, exportsDir, "PO-9", body, filepath.Join(exportsDir, "shipment-list-po9.json"), now); err != nil {
		t.Fatalf("ExportShipmentList() error = %v", err)
	}
}

func TestExport_ExplicitPathMustBeAllowed(t *testing.T) {
	cfg := config.DefaultConfig()
	outside := filepath.Join(t.TempDir(), "shipment.json")

	_, err := Export(cfg, testExportsDir(t), ExportInput{Path: outside, Body: turvo.TextBody("x")})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got: %v", err)
	}

	cfg.AllowedPaths = []string{filepath.Dir(outside)}
	if _, err := Export(cfg, testExportsDir(t), ExportInput{Path: outside, Body: turvo.TextBody("x")}); err != nil {
		t.Fatalf("Export() to allowed path error = %v", err)
	}
}

func TestExport_RequiresJSONExtension(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true

	_, err := Export(cfg, testExportsDir(t), ExportInput{
		Path: filepath.Join(t.TempDir(), "shipment.txt"),
		Body: turvo.TextBody("x"),
	})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got: %v", err)
	}
}

func TestExport_RequiresPathOrName(t *testing.T) {
	_, err := Export(config.DefaultConfig(), testExportsDir(t), ExportInput{Body: turvo.TextBody("x")})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got: %v", err)
	}
}

func TestExport_OverwritesAtomically(t *testing.T) {
	cfg := config.DefaultConfig()
	exportsDir := testExportsDir(t)

	first, err := Export(cfg, exportsDir, ExportInput{Name: "1.json", Body: turvo.TextBody("first")})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if _, err := Export(cfg, exportsDir, ExportInput{Name: "1.json", Body: turvo.TextBody("second")}); err != nil {
		if strings.Contains(err.Error(), "Windows") {
			t.Skip("overwrite not supported on Windows")
		}
		t.Fatalf("Export() overwrite error = %v", err)
	}

	data, err := os.ReadFile(first.Path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "second" {
		t.Fatalf("file content = %q, want second", data)
	}

	entries, err := os.ReadDir(exportsDir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestExport_FilePermissions(t *testing.T) {
	if os.PathSeparator == '\\' {
		t.Skip("permission bits not meaningful on Windows")
	}
	cfg := config.DefaultConfig()
	out, err := Export(cfg, testExportsDir(t), ExportInput{Name: "9.json", Body: turvo.TextBody("x")})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	info, err := os.Stat(out.Path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 0600", perm)
	}
}

func TestLoadShipment(t *testing.T) {
	cfg := config.DefaultConfig()
	exportsDir := testExportsDir(t)

	out, err := Export(cfg, exportsDir, ExportInput{Name: "5.json", Body: turvo.JSONBody([]byte(`{"details":{"custom_id":42}}`))})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	body, err := LoadShipment(cfg, exportsDir, out.Path)
	if err != nil {
		t.Fatalf("LoadShipment() error = %v", err)
	}
	if !body.IsJSON() {
		t.Fatal("expected JSON body")
	}
	if got := turvo.CustomID(body); got != "42" {
		t.Errorf("CustomID() = %q, want 42", got)
	}
}

func TestLoadShipment_TextAndMissing(t *testing.T) {
	cfg := config.DefaultConfig()
	exportsDir := testExportsDir(t)

	out, err := Export(cfg, exportsDir, ExportInput{Name: "6.json", Body: turvo.TextBody("not json")})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	body, err := LoadShipment(cfg, exportsDir, out.Path)
	if err != nil {
		t.Fatalf("LoadShipment() error = %v", err)
	}
	if body.IsJSON() || body.Text != "not json" {
		t.Errorf("body = %+v, want text", body)
	}

	_, err = LoadShipment(cfg, exportsDir, filepath.Join(exportsDir, "missing.json"))
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

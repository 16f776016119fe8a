package ops

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/hpungsan/shiplens/internal/cache"
	"github.com/hpungsan/shiplens/internal/config"
	"github.com/hpungsan/shiplens/internal/errors"
	"github.com/hpungsan/shiplens/internal/turvo"
)

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path string     // optional, default: <exports dir>/<Name>
	Name string     // default file name, used when Path is empty
	Body turvo.Body // required
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Kind       string `json:"kind"`
	Bytes      int    `json:"bytes"`
	ExportedAt int64  `json:"exported_at"`
}

// Export writes a shipment payload to a .json file. JSON documents are
// written indented by two spaces; text payloads are written as received.
// The file is written to a temp file and renamed into place, so an existing
// file is preserved on failure.
func Export(cfg *config.Config, exportsDir string, input ExportInput) (*ExportOutput, error) {
	exportPath := input.Path
	if exportPath == "" {
		if input.Name == "" {
			return nil, errors.NewInvalidRequest("path or name is required")
		}
		if exportsDir == "" {
			var err error
			if exportsDir, err = DefaultExportsDir(""); err != nil {
				return nil, err
			}
		}
		exportPath = filepath.Join(exportsDir, input.Name)
	}

	// Default paths embed upstream identifiers, so they are validated too.
	if err := ValidatePath(exportPath, PathCheckWrite, cfg, exportsDir); err != nil {
		return nil, err
	}

	payload, err := FormatPayload(input.Body)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(exportPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(payload); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlinked destination.
	if info, err := os.Lstat(exportPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInternal(fmt.Errorf("export path is a symlink"))
	}

	// On Windows, os.Rename fails if the destination exists; the existing
	// file is kept rather than risking a delete-then-rename.
	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewInvalidRequest("export destination already exists; overwriting is not supported on Windows (choose a new path or delete the existing file)")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return &ExportOutput{
		Path:       exportPath,
		Kind:       input.Body.Kind(),
		Bytes:      len(payload),
		ExportedAt: time.Now().Unix(),
	}, nil
}

// ExportShipment writes a cached shipment to <shipmentId>.json unless path is given.
func ExportShipment(cfg *config.Config, exportsDir string, rec *cache.Record, path string) (*ExportOutput, error) {
	if rec == nil {
		return nil, errors.NewInvalidRequest("record is required")
	}
	if path != "" {
		if err := ValidateShipmentName(path, rec.ShipmentID); err != nil {
			return nil, err
		}
	}
	return Export(cfg, exportsDir, ExportInput{
		Path: path,
		Name: turvo.ShipmentFilename(SanitizeForFilename(rec.ShipmentID)),
		Body: rec.Data,
	})
}

// ExportShipmentList writes a shipment list response to
// shipment-list-<customId>-<unix ms>.json unless path is given.
func ExportShipmentList(cfg *config.Config, exportsDir, customID string, body turvo.Body, path string, now time.Time) (*ExportOutput, error) {
	if path != "" {
		if err := ValidateShipmentListName(path); err != nil {
			return nil, err
		}
	}
	return Export(cfg, exportsDir, ExportInput{
		Path: path,
		Name: turvo.ShipmentListFilename(SanitizeForFilename(customID), now.UnixMilli()),
		Body: body,
	})
}

// FormatPayload renders a body the way a browser download of it would look.
func FormatPayload(b turvo.Body) ([]byte, error) {
	if !b.IsJSON() {
		return []byte(b.Text), nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, b.JSON, "", "  "); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("indent shipment: %w", err))
	}
	return buf.Bytes(), nil
}

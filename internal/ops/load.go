package ops

import (
	"bytes"
	"fmt"
	"io"

	"github.com/tidwall/gjson"

	"github.com/hpungsan/shiplens/internal/config"
	"github.com/hpungsan/shiplens/internal/errors"
	"github.com/hpungsan/shiplens/internal/turvo"
)

// MaxShipmentFileBytes bounds a saved shipment loaded from disk.
const MaxShipmentFileBytes = 32 << 20

// LoadShipment reads a saved shipment (an export or a browser download)
// for offline summaries. Files that hold valid JSON load as JSON bodies,
// anything else as text.
func LoadShipment(cfg *config.Config, exportsDir, path string) (turvo.Body, error) {
	if err := ValidatePath(path, PathCheckRead, cfg, exportsDir); err != nil {
		return turvo.Body{}, err
	}

	file, err := openFileNoFollowRead(path)
	if err != nil {
		if errors.CodeOf(err) != "" {
			return turvo.Body{}, err
		}
		return turvo.Body{}, errors.NewInternal(fmt.Errorf("failed to open shipment file: %w", err))
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxShipmentFileBytes+1))
	if err != nil {
		return turvo.Body{}, errors.NewInternal(err)
	}
	if len(data) > MaxShipmentFileBytes {
		return turvo.Body{}, errors.NewInvalidRequest(fmt.Sprintf("shipment file exceeds %d bytes", MaxShipmentFileBytes))
	}

	trimmed := bytes.TrimSpace(data)
	if gjson.ValidBytes(trimmed) {
		return turvo.JSONBody(trimmed), nil
	}
	return turvo.TextBody(string(data)), nil
}

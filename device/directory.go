package device

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360/meshtel/errors"
)

// Directory resolves device identities by physical address.
type Directory interface {
	// Resolve looks up a device by physical address, constrained to the
	// expected class. It returns ErrDeviceNotFound (wrapped) when no device
	// matches both the address and the class filter; an unregistered or
	// misclassified sender is an expected outcome, not a fault.
	//
	// Addresses are matched verbatim: no case folding or separator
	// normalization is applied, matching the behavior of the provisioning
	// side.
	Resolve(ctx context.Context, mac string, want Class) (Device, error)

	// List returns all known devices, optionally filtered by internal id.
	List(ctx context.Context, internalIDs []int64) ([]Device, error)
}

// SQLDirectory is a Directory backed by the shared devices table.
type SQLDirectory struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLDirectory creates a directory over an open database handle.
func NewSQLDirectory(db *sql.DB, logger *slog.Logger) *SQLDirectory {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLDirectory{
		db:     db,
		logger: logger.With("component", "device-directory"),
	}
}

var _ Directory = (*SQLDirectory)(nil)

// Resolve implements Directory.
func (d *SQLDirectory) Resolve(ctx context.Context, mac string, want Class) (Device, error) {
	const query = `SELECT id, mac_address, internal_id, info FROM devices WHERE mac_address = ?`

	var dev Device
	err := d.db.QueryRowContext(ctx, query, mac).Scan(&dev.ID, &dev.MacAddress, &dev.InternalID, &dev.Info)
	if err == sql.ErrNoRows {
		return Device{}, fmt.Errorf("device %s: %w", mac, errors.ErrDeviceNotFound)
	}
	if err != nil {
		return Device{}, errors.WrapTransient(err, "device-directory", "Resolve", "device lookup")
	}

	dev.Class = ClassFromInfo(dev.Info)
	if want != ClassUnknown && dev.Class != want {
		d.logger.Debug("device registered under different class",
			"mac", mac, "want", want.String(), "have", dev.Class.String())
		return Device{}, fmt.Errorf("device %s with class %s: %w", mac, want, errors.ErrDeviceNotFound)
	}

	return dev, nil
}

// List implements Directory.
func (d *SQLDirectory) List(ctx context.Context, internalIDs []int64) ([]Device, error) {
	query := `SELECT id, mac_address, internal_id, info FROM devices`
	var args []any

	if len(internalIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(internalIDs)), ",")
		query += fmt.Sprintf(" WHERE internal_id IN (%s)", placeholders)
		for _, id := range internalIDs {
			args = append(args, id)
		}
	}
	query += " ORDER BY id"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WrapTransient(err, "device-directory", "List", "device query")
	}
	defer rows.Close()

	devices := []Device{}
	for rows.Next() {
		var dev Device
		if err := rows.Scan(&dev.ID, &dev.MacAddress, &dev.InternalID, &dev.Info); err != nil {
			return nil, errors.WrapTransient(err, "device-directory", "List", "row scan")
		}
		dev.Class = ClassFromInfo(dev.Info)
		devices = append(devices, dev)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapTransient(err, "device-directory", "List", "row iteration")
	}

	return devices, nil
}

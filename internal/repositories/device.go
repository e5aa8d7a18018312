package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/soundctl/soundctl/internal/models"
	"github.com/soundctl/soundctl/internal/shared"
)

// DeviceRepository caches Spotify Connect devices seen by the account so the
// device picker can render without a network round trip.
type DeviceRepository struct {
	db *sql.DB
}

// NewDeviceRepository creates a new [DeviceRepository] with the given database connection
func NewDeviceRepository(db *sql.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Save upserts a device keyed by its Connect device ID, refreshing last_seen_at.
func (r *DeviceRepository) Save(device models.Device) error {
	now := time.Now()

	query := `
		UPDATE devices
		SET name = ?, kind = ?, is_active = ?, last_seen_at = ?
		WHERE device_id = ?
	`

	result, err := r.db.Exec(query, device.Name, device.Kind, device.IsActive, now, device.ID)
	if err != nil {
		return fmt.Errorf("failed to update device: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows > 0 {
		return nil
	}

	sequence, err := NextSequence(r.db, "devices")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	insert := `
		INSERT INTO devices (id, sequence, device_id, name, kind, is_active, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(insert, shared.GenerateID(), sequence, device.ID, device.Name, device.Kind, device.IsActive, now)
	if err != nil {
		return fmt.Errorf("failed to insert device: %w", err)
	}

	return nil
}

// SaveAll upserts every device in the list, marking only those flagged active.
func (r *DeviceRepository) SaveAll(devices []models.Device) error {
	for _, device := range devices {
		if err := r.Save(device); err != nil {
			return err
		}
	}
	return nil
}

// Get retrieves a cached device by its Connect device ID.
func (r *DeviceRepository) Get(deviceID string) (*models.KnownDevice, error) {
	query := `
		SELECT id, sequence, device_id, name, kind, is_active, last_seen_at
		FROM devices
		WHERE device_id = ?
	`

	device, err := scanDevice(r.db.QueryRow(query, deviceID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", shared.ErrDeviceNotFound, deviceID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query device: %w", err)
	}

	return device, nil
}

// List retrieves all cached devices, most recently seen first.
func (r *DeviceRepository) List() ([]*models.KnownDevice, error) {
	query := `
		SELECT id, sequence, device_id, name, kind, is_active, last_seen_at
		FROM devices
		ORDER BY last_seen_at DESC, sequence ASC
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []*models.KnownDevice
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return devices, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*models.KnownDevice, error) {
	var (
		device   models.KnownDevice
		isActive int
	)

	err := row.Scan(&device.ID, &device.Sequence, &device.DeviceID, &device.Name, &device.Kind, &isActive, &device.LastSeenAt)
	if err != nil {
		return nil, err
	}

	device.IsActive = isActive != 0
	return &device, nil
}

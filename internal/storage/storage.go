// Package storage reads print content from named disks.
package storage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/orrn/remoteprint/internal/config"
)

var (
	ErrNotFound    = errors.New("file not found")
	ErrUnknownDisk = errors.New("unknown disk")
)

type Disk interface {
	Read(ctx context.Context, path string) ([]byte, error)
}

// Disks routes reads to a disk by name.
type Disks struct {
	disks map[string]Disk
}

func NewDisks() *Disks {
	return &Disks{disks: make(map[string]Disk)}
}

// FromConfig builds every disk declared in the storage config.
func FromConfig(cfg config.StorageConfig, logger *zap.Logger) (*Disks, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := NewDisks()
	for name, diskCfg := range cfg.Disks {
		switch diskCfg.Driver {
		case "local":
			d.Register(name, NewLocalDisk(diskCfg.Root))
		case "s3":
			disk, err := NewS3Disk(diskCfg, WithLogger(logger.Named("s3").With(zap.String("disk", name))))
			if err != nil {
				return nil, fmt.Errorf("failed to create disk %s: %w", name, err)
			}
			d.Register(name, disk)
		default:
			return nil, fmt.Errorf("disk %s: unsupported driver %q", name, diskCfg.Driver)
		}
	}
	return d, nil
}

func (d *Disks) Register(name string, disk Disk) {
	d.disks[name] = disk
}

func (d *Disks) Read(ctx context.Context, disk, path string) ([]byte, error) {
	target, ok := d.disks[disk]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDisk, disk)
	}
	return target.Read(ctx, path)
}

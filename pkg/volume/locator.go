package volume

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/opencore-vm/ocpatch/pkg/diskutil"
)

// EFI system partition type GUID, reported by some diskutil versions in
// place of the short "EFI" type label.
const efiTypeGUID = "C12A7328-F81F-11D2-BA4B-00A0C93EC93B"

// Volume names one storage partition. It is an identifier for a
// kernel-managed resource, not a handle owned by this process.
type Volume struct {
	Identifier string
	Disk       string
	TypeName   string
	Name       string
}

func (v Volume) String() string {
	return v.Identifier
}

// Locator discovers partitions matching the EFI type signature.
type Locator struct {
	du *diskutil.Client
}

func NewLocator(du *diskutil.Client) *Locator {
	return &Locator{du: du}
}

// EFIPartitions returns every partition whose type label, type GUID, or
// volume name marks it as an EFI system partition.
func (l *Locator) EFIPartitions(ctx context.Context) ([]Volume, error) {
	parts, err := l.du.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list partitions")
	}

	var vols []Volume
	for _, p := range parts {
		if !isEFI(p) {
			continue
		}
		vols = append(vols, Volume{
			Identifier: p.Identifier,
			Disk:       p.Disk,
			TypeName:   p.TypeName,
			Name:       p.Name,
		})
	}
	return vols, nil
}

func isEFI(p diskutil.Partition) bool {
	return p.TypeName == "EFI" ||
		strings.EqualFold(p.TypeName, efiTypeGUID) ||
		p.Name == "EFI"
}

package occonfig_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/opencore-vm/ocpatch/pkg/occonfig"
)

func touch(t *testing.T, root string, rel string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("<plist/>"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFindStandardLayout(t *testing.T) {
	g := NewWithT(t)

	root := t.TempDir()
	want := touch(t, root, "EFI/OC/config.plist")
	touch(t, root, "EFI/BOOT/BOOTx64.efi")

	got, err := occonfig.Find(root)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(got).To(Equal(want))
}

func TestFindPrefersCandidateOrder(t *testing.T) {
	g := NewWithT(t)

	root := t.TempDir()
	want := touch(t, root, "EFI/OC/config.plist")
	touch(t, root, "OC/config.plist")
	touch(t, root, "EFI/BOOT/config.plist")

	got, err := occonfig.Find(root)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(got).To(Equal(want))
}

func TestFindBareOCLayout(t *testing.T) {
	g := NewWithT(t)

	root := t.TempDir()
	want := touch(t, root, "OC/config.plist")

	got, err := occonfig.Find(root)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(got).To(Equal(want))
}

func TestFindFallsBackToRecursiveSearch(t *testing.T) {
	g := NewWithT(t)

	root := t.TempDir()
	want := touch(t, root, "System/Custom/config.plist")

	got, err := occonfig.Find(root)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(got).To(Equal(want))
}

func TestFindIsCaseInsensitiveInRecursiveSearch(t *testing.T) {
	g := NewWithT(t)

	root := t.TempDir()
	want := touch(t, root, "EFI/Custom/Config.PLIST")

	got, err := occonfig.Find(root)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(got).To(Equal(want))
}

func TestFindSkipsHiddenDirectories(t *testing.T) {
	g := NewWithT(t)

	root := t.TempDir()
	touch(t, root, ".Trashes/config.plist")
	touch(t, root, ".Spotlight-V100/config.plist")

	_, err := occonfig.Find(root)
	g.Expect(errors.Is(err, occonfig.ErrNotFound)).To(BeTrue())
}

func TestFindNothing(t *testing.T) {
	g := NewWithT(t)

	root := t.TempDir()
	touch(t, root, "EFI/BOOT/BOOTx64.efi")

	_, err := occonfig.Find(root)
	g.Expect(errors.Is(err, occonfig.ErrNotFound)).To(BeTrue())
}

func TestFindIgnoresDirectoryNamedConfig(t *testing.T) {
	g := NewWithT(t)

	root := t.TempDir()
	g.Expect(os.MkdirAll(filepath.Join(root, "EFI", "OC", "config.plist"), 0o755)).To(Succeed())
	want := touch(t, root, "EFI/BOOT/config.plist")

	got, err := occonfig.Find(root)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(got).To(Equal(want))
}

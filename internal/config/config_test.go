package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.ConfigFS.Mountpoint != "/sys/kernel/config" {
		t.Errorf("unexpected mountpoint: %s", cfg.ConfigFS.Mountpoint)
	}
	if cfg.ConfigFS.Module != "libcomposite" {
		t.Errorf("unexpected module: %s", cfg.ConfigFS.Module)
	}
	if cfg.UDC != "auto" {
		t.Errorf("unexpected udc: %s", cfg.UDC)
	}
	if cfg.Gadget.MassStorage.BackingFile != "/root/support_image/support.img" {
		t.Errorf("unexpected backing file: %s", cfg.Gadget.MassStorage.BackingFile)
	}
	if cfg.Gadget.VendorID != "0x1d6b" || cfg.Gadget.ProductID != "0x0104" {
		t.Errorf("unexpected IDs: %s/%s", cfg.Gadget.VendorID, cfg.Gadget.ProductID)
	}
	if cfg.Gadget.Config.MaxPower != 250 {
		t.Errorf("unexpected MaxPower: %d", cfg.Gadget.Config.MaxPower)
	}
	if cfg.Gadget.HID.Protocol != 1 || cfg.Gadget.HID.Subclass != 1 || cfg.Gadget.HID.ReportLength != 8 {
		t.Errorf("unexpected HID settings: %+v", cfg.Gadget.HID)
	}
}

func TestFunctionNamesOrder(t *testing.T) {
	cfg := Default()

	names := cfg.FunctionNames()
	want := []string{"mass_storage.0", "hid.usb0", "ecm.usb0"}
	if len(names) != len(want) {
		t.Fatalf("expected %d functions, got %d", len(want), len(names))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("function %d: expected %s, got %s", i, want[i], names[i])
		}
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
gadget:
  mass_storage:
    backing_file: /mnt/img/store.img
udc: musb-hdrc.0.auto
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Gadget.MassStorage.BackingFile != "/mnt/img/store.img" {
		t.Errorf("override not applied: %s", cfg.Gadget.MassStorage.BackingFile)
	}
	if cfg.UDC != "musb-hdrc.0.auto" {
		t.Errorf("override not applied: %s", cfg.UDC)
	}
	// Untouched fields keep their defaults.
	if cfg.Gadget.Name != "g1" {
		t.Errorf("default lost: %s", cfg.Gadget.Name)
	}
	if cfg.Gadget.MassStorage.Name != "mass_storage.0" {
		t.Errorf("default lost: %s", cfg.Gadget.MassStorage.Name)
	}
	if cfg.Gadget.HID.ReportLength != 8 {
		t.Errorf("default lost: %d", cfg.Gadget.HID.ReportLength)
	}
}

func TestLoadRejectsBadYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("gadget: [not: a: mapping"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config path")
	}
}

func TestResolveBackingFile(t *testing.T) {
	cfg := Default()

	if got := cfg.ResolveBackingFile("/mnt/img/store.img"); got != "/mnt/img/store.img" {
		t.Errorf("argument should win: %s", got)
	}
	if got := cfg.ResolveBackingFile(""); got != "/root/support_image/support.img" {
		t.Errorf("empty argument should fall back to default: %s", got)
	}
}

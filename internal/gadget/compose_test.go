package gadget

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/sigreer/gadgetgod/internal/config"
	"github.com/sigreer/gadgetgod/internal/configfs"
)

// fakeHost satisfies the Host interface without touching kernel state.
type fakeHost struct {
	modules   []string
	mounts    []string
	moduleErr error
	mountErr  error
}

func (h *fakeHost) EnsureModule(name string) error {
	if h.moduleErr != nil {
		return h.moduleErr
	}
	h.modules = append(h.modules, name)
	return nil
}

func (h *fakeHost) EnsureMounted(mountpoint string) error {
	if h.mountErr != nil {
		return h.mountErr
	}
	h.mounts = append(h.mounts, mountpoint)
	return nil
}

// newTestComposer roots a composer at a temp directory and points UDC
// discovery at a fake class directory holding a single controller.
func newTestComposer(t *testing.T) (*Composer, *configfs.Tree, *fakeHost) {
	t.Helper()

	cfg := config.Default()
	tree := configfs.NewTree(t.TempDir())
	host := &fakeHost{}

	udcDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(udcDir, "musb-hdrc.0.auto"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	c := NewComposer(cfg, tree, host)
	c.UDCClassDir = udcDir
	return c, tree, host
}

func readAttr(t *testing.T, tree *configfs.Tree, rel string) string {
	t.Helper()
	got, err := tree.ReadAttr(rel)
	if err != nil {
		t.Fatalf("ReadAttr %s failed: %v", rel, err)
	}
	return got
}

func TestComposeBuildsTree(t *testing.T) {
	c, tree, host := newTestComposer(t)

	if err := c.Compose("/mnt/img/store.img"); err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if c.State() != Bound {
		t.Errorf("expected state bound, got %s", c.State())
	}
	if len(host.modules) != 1 || host.modules[0] != "libcomposite" {
		t.Errorf("expected libcomposite load, got %v", host.modules)
	}
	if len(host.mounts) != 1 || host.mounts[0] != "/sys/kernel/config" {
		t.Errorf("expected configfs mount, got %v", host.mounts)
	}

	attrs := map[string]string{
		"usb_gadget/g1/idVendor":                                  "0x1d6b",
		"usb_gadget/g1/idProduct":                                 "0x0104",
		"usb_gadget/g1/strings/0x409/serialnumber":                "0123456789",
		"usb_gadget/g1/strings/0x409/manufacturer":                "Intel",
		"usb_gadget/g1/strings/0x409/product":                     "DAFT support gadget",
		"usb_gadget/g1/configs/c.1/MaxPower":                      "250",
		"usb_gadget/g1/configs/c.1/strings/0x409/configuration":   "Conf 1",
		"usb_gadget/g1/functions/mass_storage.0/lun.0/file":       "/mnt/img/store.img",
		"usb_gadget/g1/functions/hid.usb0/protocol":               "1",
		"usb_gadget/g1/functions/hid.usb0/subclass":               "1",
		"usb_gadget/g1/functions/hid.usb0/report_length":          "8",
		"usb_gadget/g1/UDC":                                       "musb-hdrc.0.auto",
	}
	for rel, want := range attrs {
		if got := readAttr(t, tree, rel); got != want {
			t.Errorf("%s: expected %q, got %q", rel, want, got)
		}
	}

	desc, err := os.ReadFile(tree.Abs("usb_gadget/g1/functions/hid.usb0/report_desc"))
	if err != nil {
		t.Fatalf("report_desc missing: %v", err)
	}
	if len(desc) != len(BootKeyboardReportDescriptor) {
		t.Errorf("report_desc: expected %d bytes, got %d", len(BootKeyboardReportDescriptor), len(desc))
	}
}

func TestComposeLinksAllFunctions(t *testing.T) {
	c, tree, _ := newTestComposer(t)

	if err := c.Compose(""); err != nil {
		t.Fatalf("Compose failed: %v", err)
	}

	for _, fn := range []string{"mass_storage.0", "hid.usb0", "ecm.usb0"} {
		link := tree.Abs("usb_gadget/g1/configs/c.1/" + fn)
		dest, err := os.Readlink(link)
		if err != nil {
			t.Errorf("function %s not linked: %v", fn, err)
			continue
		}
		if dest != tree.Abs("usb_gadget/g1/functions/"+fn) {
			t.Errorf("function %s links to %s", fn, dest)
		}
	}
}

func TestComposeDefaultBackingFile(t *testing.T) {
	c, tree, _ := newTestComposer(t)

	if err := c.Compose(""); err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	got := readAttr(t, tree, "usb_gadget/g1/functions/mass_storage.0/lun.0/file")
	if got != "/root/support_image/support.img" {
		t.Errorf("expected default backing file, got %q", got)
	}
}

func TestComposeBindsLast(t *testing.T) {
	c, tree, _ := newTestComposer(t)

	var ops []configfs.Op
	tree.Trace = func(op configfs.Op) { ops = append(ops, op) }

	if err := c.Compose(""); err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if len(ops) == 0 {
		t.Fatal("no operations traced")
	}
	last := ops[len(ops)-1]
	if last.Kind != configfs.OpWriteAttr || last.Path != "usb_gadget/g1/UDC" {
		t.Errorf("expected the UDC write to be the final operation, got %+v", last)
	}
}

func TestComposeNoLinksBeforeLinkStep(t *testing.T) {
	c, tree, _ := newTestComposer(t)

	c.OnTransition = func(s State) {
		if s != NodesCreated {
			return
		}
		entries, err := tree.List("usb_gadget/g1/configs/c.1")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		for _, e := range entries {
			for _, fn := range c.cfg.FunctionNames() {
				if e == fn {
					t.Errorf("function %s linked before link step", fn)
				}
			}
		}
	}

	if err := c.Compose(""); err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
}

func TestComposeTransitionOrder(t *testing.T) {
	c, _, _ := newTestComposer(t)

	var states []State
	c.OnTransition = func(s State) { states = append(states, s) }

	if err := c.Compose(""); err != nil {
		t.Fatalf("Compose failed: %v", err)
	}

	want := []State{ModuleLoaded, NodesCreated, FunctionsLinked, Bound}
	if len(states) != len(want) {
		t.Fatalf("expected %d transitions, got %d: %v", len(want), len(states), states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], states[i])
		}
	}
}

func TestComposeSecondRunFailsAtNodeCreation(t *testing.T) {
	c, tree, host := newTestComposer(t)

	if err := c.Compose(""); err != nil {
		t.Fatalf("first Compose failed: %v", err)
	}

	c2 := NewComposer(c.cfg, tree, host)
	c2.UDCClassDir = c.UDCClassDir
	err := c2.Compose("")
	if err == nil {
		t.Fatal("expected second Compose to fail")
	}
	if !errors.Is(err, fs.ErrExist) {
		t.Errorf("expected fs.ErrExist, got: %v", err)
	}
	if c2.State() != ModuleLoaded {
		t.Errorf("expected state module_loaded after failure, got %s", c2.State())
	}
}

func TestComposeModuleLoadFailureIsFatal(t *testing.T) {
	c, tree, host := newTestComposer(t)
	host.moduleErr = errors.New("modprobe: module libcomposite not found")

	err := c.Compose("")
	if err == nil {
		t.Fatal("expected Compose to fail")
	}
	if c.State() != Unconfigured {
		t.Errorf("expected state unconfigured, got %s", c.State())
	}
	if tree.Exists("usb_gadget/g1") {
		t.Error("gadget node created despite module load failure")
	}
}

func TestComposeMountFailureIsFatal(t *testing.T) {
	c, tree, host := newTestComposer(t)
	host.mountErr = errors.New("mount: permission denied")

	if err := c.Compose(""); err == nil {
		t.Fatal("expected Compose to fail")
	}
	if tree.Exists("usb_gadget/g1") {
		t.Error("gadget node created despite mount failure")
	}
}

func TestComposeFailsWithoutController(t *testing.T) {
	c, _, _ := newTestComposer(t)
	c.UDCClassDir = t.TempDir() // no controllers

	err := c.Compose("")
	if err == nil {
		t.Fatal("expected Compose to fail")
	}
	if !errors.Is(err, ErrNoUDC) {
		t.Errorf("expected ErrNoUDC, got: %v", err)
	}
	// Everything up to the binding succeeded.
	if c.State() != FunctionsLinked {
		t.Errorf("expected state functions_linked, got %s", c.State())
	}
}

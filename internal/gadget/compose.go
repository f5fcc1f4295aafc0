// Package gadget assembles a USB composite gadget (mass storage, HID
// keyboard, ECM ethernet) through configfs and binds it to a USB device
// controller.
package gadget

import (
	"fmt"
	"path"
	"strconv"

	"github.com/sigreer/gadgetgod/internal/config"
	"github.com/sigreer/gadgetgod/internal/configfs"
)

// Host abstracts the host-global preparation steps: loading the
// composite-gadget kernel module and mounting configfs. Both must be
// idempotent; they mutate state shared by the whole machine.
type Host interface {
	EnsureModule(name string) error
	EnsureMounted(mountpoint string) error
}

// Composer runs the composition sequence as a one-way state machine:
// Unconfigured -> ModuleLoaded -> NodesCreated -> FunctionsLinked -> Bound.
// Every step is fail-fast; a failed run leaves the tree at the last
// completed state and Teardown is the only way back.
type Composer struct {
	cfg  *config.Config
	tree *configfs.Tree
	host Host

	// UDCClassDir is where device controllers are enumerated.
	// Defaults to /sys/class/udc.
	UDCClassDir string

	// OnTransition, if set, is called after each state transition.
	OnTransition func(State)

	state State
}

// NewComposer returns a composer operating on the given tree, which must
// be rooted at the configfs mountpoint from cfg.
func NewComposer(cfg *config.Config, tree *configfs.Tree, host Host) *Composer {
	return &Composer{
		cfg:         cfg,
		tree:        tree,
		host:        host,
		UDCClassDir: DefaultUDCClassDir,
		state:       Unconfigured,
	}
}

// State returns the last state the composer reached.
func (c *Composer) State() State {
	return c.state
}

func (c *Composer) transition(s State) {
	c.state = s
	if c.OnTransition != nil {
		c.OnTransition(s)
	}
}

// Path helpers, all relative to the configfs mountpoint.

func (c *Composer) gadgetDir() string {
	return path.Join("usb_gadget", c.cfg.Gadget.Name)
}

func (c *Composer) stringsDir() string {
	return path.Join(c.gadgetDir(), "strings", c.cfg.Gadget.Lang)
}

func (c *Composer) configDir() string {
	return path.Join(c.gadgetDir(), "configs", c.cfg.Gadget.Config.Name)
}

func (c *Composer) configStringsDir() string {
	return path.Join(c.configDir(), "strings", c.cfg.Gadget.Lang)
}

func (c *Composer) functionDir(name string) string {
	return path.Join(c.gadgetDir(), "functions", name)
}

// Compose runs the full sequence. backingArg, if non-empty, overrides the
// configured mass-storage backing file. The controller binding is the last
// filesystem write of a successful run; after it the connected host
// enumerates the composite device.
func (c *Composer) Compose(backingArg string) error {
	backing := c.cfg.ResolveBackingFile(backingArg)

	if err := c.host.EnsureModule(c.cfg.ConfigFS.Module); err != nil {
		return fmt.Errorf("module load: %w", err)
	}
	if err := c.host.EnsureMounted(c.cfg.ConfigFS.Mountpoint); err != nil {
		return fmt.Errorf("configfs mount: %w", err)
	}
	c.transition(ModuleLoaded)

	if err := c.createNodes(backing); err != nil {
		return err
	}
	c.transition(NodesCreated)

	if err := c.linkFunctions(); err != nil {
		return err
	}
	c.transition(FunctionsLinked)

	if err := c.bind(); err != nil {
		return err
	}
	c.transition(Bound)

	return nil
}

// createNodes builds the gadget, configuration and function nodes and
// writes their attributes. The gadget root already existing is fatal:
// composition is single-use per boot and a leftover tree needs an explicit
// teardown first.
func (c *Composer) createNodes(backing string) error {
	g := c.cfg.Gadget

	if err := c.tree.Mkdir(c.gadgetDir()); err != nil {
		return fmt.Errorf("gadget node: %w", err)
	}

	// The strings, configs and functions groups appear on their own under
	// a live configfs gadget; EnsureDir keeps the same sequence valid on
	// an ordinary filesystem.
	if err := c.tree.EnsureDir(path.Join(c.gadgetDir(), "strings")); err != nil {
		return fmt.Errorf("gadget node: %w", err)
	}
	if err := c.tree.Mkdir(c.stringsDir()); err != nil {
		return fmt.Errorf("gadget node: %w", err)
	}

	gadgetAttrs := []struct{ name, value string }{
		{"idVendor", g.VendorID},
		{"idProduct", g.ProductID},
	}
	for _, a := range gadgetAttrs {
		if err := c.tree.WriteAttr(path.Join(c.gadgetDir(), a.name), a.value); err != nil {
			return fmt.Errorf("gadget attributes: %w", err)
		}
	}
	stringAttrs := []struct{ name, value string }{
		{"serialnumber", g.Serial},
		{"manufacturer", g.Manufacturer},
		{"product", g.Product},
	}
	for _, a := range stringAttrs {
		if err := c.tree.WriteAttr(path.Join(c.stringsDir(), a.name), a.value); err != nil {
			return fmt.Errorf("gadget attributes: %w", err)
		}
	}

	if err := c.createConfiguration(); err != nil {
		return err
	}
	if err := c.createFunctions(backing); err != nil {
		return err
	}

	return nil
}

func (c *Composer) createConfiguration() error {
	if err := c.tree.EnsureDir(path.Join(c.gadgetDir(), "configs")); err != nil {
		return fmt.Errorf("configuration node: %w", err)
	}
	if err := c.tree.Mkdir(c.configDir()); err != nil {
		return fmt.Errorf("configuration node: %w", err)
	}
	if err := c.tree.EnsureDir(path.Join(c.configDir(), "strings")); err != nil {
		return fmt.Errorf("configuration node: %w", err)
	}
	if err := c.tree.Mkdir(c.configStringsDir()); err != nil {
		return fmt.Errorf("configuration node: %w", err)
	}

	usbCfg := c.cfg.Gadget.Config
	if err := c.tree.WriteAttr(path.Join(c.configDir(), "MaxPower"), strconv.Itoa(usbCfg.MaxPower)); err != nil {
		return fmt.Errorf("configuration attributes: %w", err)
	}
	if err := c.tree.WriteAttr(path.Join(c.configStringsDir(), "configuration"), usbCfg.Label); err != nil {
		return fmt.Errorf("configuration attributes: %w", err)
	}
	return nil
}

func (c *Composer) createFunctions(backing string) error {
	if err := c.tree.EnsureDir(path.Join(c.gadgetDir(), "functions")); err != nil {
		return fmt.Errorf("function nodes: %w", err)
	}
	for _, fn := range c.cfg.FunctionNames() {
		if err := c.tree.Mkdir(c.functionDir(fn)); err != nil {
			return fmt.Errorf("function nodes: %w", err)
		}
	}

	// Mass storage: point the default LUN at the backing image. configfs
	// pre-creates lun.0 with the function.
	ms := c.functionDir(c.cfg.Gadget.MassStorage.Name)
	if err := c.tree.EnsureDir(path.Join(ms, "lun.0")); err != nil {
		return fmt.Errorf("mass storage attributes: %w", err)
	}
	if err := c.tree.WriteAttr(path.Join(ms, "lun.0", "file"), backing); err != nil {
		return fmt.Errorf("mass storage attributes: %w", err)
	}

	// HID boot keyboard.
	hid := c.functionDir(c.cfg.Gadget.HID.Name)
	hidAttrs := []struct{ name, value string }{
		{"protocol", strconv.Itoa(c.cfg.Gadget.HID.Protocol)},
		{"subclass", strconv.Itoa(c.cfg.Gadget.HID.Subclass)},
		{"report_length", strconv.Itoa(c.cfg.Gadget.HID.ReportLength)},
	}
	for _, a := range hidAttrs {
		if err := c.tree.WriteAttr(path.Join(hid, a.name), a.value); err != nil {
			return fmt.Errorf("hid attributes: %w", err)
		}
	}
	if err := c.tree.WriteAttrBytes(path.Join(hid, "report_desc"), BootKeyboardReportDescriptor); err != nil {
		return fmt.Errorf("hid attributes: %w", err)
	}

	// Ethernet (ECM) needs nothing beyond its node; host and device MAC
	// addresses are left for the kernel to pick.
	return nil
}

// linkFunctions aliases each function node into the configuration. The
// function subtree is shared between both namespaces, not copied.
func (c *Composer) linkFunctions() error {
	for _, fn := range c.cfg.FunctionNames() {
		if err := c.tree.Symlink(c.functionDir(fn), path.Join(c.configDir(), fn)); err != nil {
			return fmt.Errorf("function link: %w", err)
		}
	}
	return nil
}

// bind writes the controller name into the gadget's UDC attribute. This is
// the activation step and must be the last write of the sequence.
func (c *Composer) bind() error {
	name, err := ResolveUDC(c.cfg.UDC, c.UDCClassDir)
	if err != nil {
		return fmt.Errorf("controller binding: %w", err)
	}
	if err := c.tree.WriteAttr(path.Join(c.gadgetDir(), "UDC"), name); err != nil {
		return fmt.Errorf("controller binding: %w", err)
	}
	return nil
}

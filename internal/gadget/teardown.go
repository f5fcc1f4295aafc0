package gadget

import (
	"fmt"
	"path"
)

// Teardown reverses the composition in reverse transition order: unbind
// the controller, unlink the functions, then remove configuration,
// function and gadget nodes. Pieces a partial run never created are
// skipped, so teardown is safe after a failure at any step. The kernel
// module and the configfs mount are host-global and left alone.
func (c *Composer) Teardown() error {
	g := c.gadgetDir()
	if !c.tree.Exists(g) {
		return nil
	}

	// Unbind. Writing the empty string detaches the gadget from the
	// controller; if it was never bound the attribute is already empty.
	udcAttr := path.Join(g, "UDC")
	if c.tree.Exists(udcAttr) {
		if bound, err := c.tree.ReadAttr(udcAttr); err == nil && bound != "" {
			if err := c.tree.WriteAttr(udcAttr, ""); err != nil {
				return fmt.Errorf("unbind: %w", err)
			}
		}
	}

	// Unlink functions from the configuration, newest first.
	fns := c.cfg.FunctionNames()
	for i := len(fns) - 1; i >= 0; i-- {
		if err := c.tree.Remove(path.Join(c.configDir(), fns[i])); err != nil {
			return fmt.Errorf("function unlink: %w", err)
		}
	}

	// Configuration node and its strings.
	if err := c.tree.RemoveDir(c.configStringsDir()); err != nil {
		return fmt.Errorf("configuration node: %w", err)
	}
	if err := c.tree.RemoveDir(c.configDir()); err != nil {
		return fmt.Errorf("configuration node: %w", err)
	}

	// Function nodes.
	for i := len(fns) - 1; i >= 0; i-- {
		if err := c.tree.RemoveDir(c.functionDir(fns[i])); err != nil {
			return fmt.Errorf("function nodes: %w", err)
		}
	}

	// Gadget strings and the gadget root itself.
	if err := c.tree.RemoveDir(c.stringsDir()); err != nil {
		return fmt.Errorf("gadget node: %w", err)
	}
	if err := c.tree.RemoveDir(g); err != nil {
		return fmt.Errorf("gadget node: %w", err)
	}

	c.state = Unconfigured
	return nil
}

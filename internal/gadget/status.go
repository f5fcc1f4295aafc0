package gadget

import (
	"os"
	"path"
	"slices"

	"github.com/sigreer/gadgetgod/internal/config"
	"github.com/sigreer/gadgetgod/internal/configfs"
)

// Status describes what a gadget tree currently holds.
type Status struct {
	Present bool `json:"present"`
	// State is inferred from the tree: which nodes exist, how many
	// functions are linked, whether the UDC attribute is non-empty.
	State       string   `json:"state"`
	Functions   []string `json:"functions"`
	UDC         string   `json:"udc,omitempty"`
	BackingFile string   `json:"backing_file,omitempty"`
	BackingSize *int64   `json:"backing_size,omitempty"`
}

// Inspect reads the gadget tree without mutating it and reports how far
// composition got.
func Inspect(cfg *config.Config, tree *configfs.Tree) (*Status, error) {
	c := NewComposer(cfg, tree, nil)
	st := &Status{State: Unconfigured.String()}

	if !tree.Exists(c.gadgetDir()) {
		return st, nil
	}
	st.Present = true
	st.State = NodesCreated.String()

	// Linked functions are the configuration entries that name a function
	// node; the strings group and attribute files are skipped.
	entries, err := tree.List(c.configDir())
	if err != nil {
		return nil, err
	}
	for _, fn := range cfg.FunctionNames() {
		if slices.Contains(entries, fn) {
			st.Functions = append(st.Functions, fn)
		}
	}
	if len(st.Functions) == len(cfg.FunctionNames()) {
		st.State = FunctionsLinked.String()
	}

	if tree.Exists(path.Join(c.gadgetDir(), "UDC")) {
		udc, err := tree.ReadAttr(path.Join(c.gadgetDir(), "UDC"))
		if err == nil && udc != "" {
			st.UDC = udc
			st.State = Bound.String()
		}
	}

	backingAttr := path.Join(c.functionDir(cfg.Gadget.MassStorage.Name), "lun.0", "file")
	if tree.Exists(backingAttr) {
		backing, err := tree.ReadAttr(backingAttr)
		if err == nil && backing != "" {
			st.BackingFile = backing
			if info, err := os.Stat(backing); err == nil {
				size := info.Size()
				st.BackingSize = &size
			}
		}
	}

	return st, nil
}

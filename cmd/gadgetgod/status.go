package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sigreer/gadgetgod/internal/config"
	"github.com/sigreer/gadgetgod/internal/configfs"
	"github.com/sigreer/gadgetgod/internal/gadget"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the gadget tree state",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().Bool("json", false, "Output as JSON")
}

func runStatus(cmd *cobra.Command, args []string) {
	jsonOut, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	tree := configfs.NewTree(cfg.ConfigFS.Mountpoint)
	st, err := gadget.Inspect(cfg, tree)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error inspecting gadget: %v\n", err)
		os.Exit(1)
	}

	if jsonOut {
		b, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding status: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(b))
		return
	}

	fmt.Printf("Gadget:    %s\n", cfg.Gadget.Name)
	fmt.Printf("State:     %s\n", st.State)
	if len(st.Functions) > 0 {
		fmt.Printf("Functions: %s\n", strings.Join(st.Functions, ", "))
	}
	if st.UDC != "" {
		fmt.Printf("UDC:       %s\n", st.UDC)
	}
	if st.BackingFile != "" {
		size := "missing"
		if st.BackingSize != nil {
			size = humanize.Bytes(uint64(*st.BackingSize))
		}
		fmt.Printf("Backing:   %s (%s)\n", st.BackingFile, size)
	}
}

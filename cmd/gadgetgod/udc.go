package main

import (
	"fmt"
	"os"

	"github.com/sigreer/gadgetgod/internal/gadget"
	"github.com/spf13/cobra"
)

var udcCmd = &cobra.Command{
	Use:   "udc",
	Short: "List USB device controllers",
	Long: `Lists the controllers the kernel enumerates under /sys/class/udc.
With udc set to "auto" in the config, compose binds to the sole entry
and refuses to guess when there is more than one.`,
	Run: runUDC,
}

func runUDC(cmd *cobra.Command, args []string) {
	names, err := gadget.ListUDCs(gadget.DefaultUDCClassDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing controllers: %v\n", err)
		os.Exit(1)
	}
	if len(names) == 0 {
		fmt.Println("No USB device controllers found")
		return
	}
	for _, n := range names {
		fmt.Println(n)
	}
}

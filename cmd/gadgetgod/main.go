package main

import (
	"fmt"
	"os"

	"github.com/sigreer/gadgetgod/internal/config"
	"github.com/sigreer/gadgetgod/internal/configfs"
	"github.com/sigreer/gadgetgod/internal/gadget"
	"github.com/sigreer/gadgetgod/internal/journal"
	"github.com/sigreer/gadgetgod/internal/version"
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "gadgetgod",
	Short: "USB composite gadget provisioning tool",
	Long: `gadgetgod provisions the USB composite gadget of a test-automation
host: a mass-storage function exposing the support image, a HID boot
keyboard for driving the device under test, and an ECM ethernet link.
It builds the gadget through configfs and binds it to the USB device
controller.`,
	Version: version.Version,
}

var composeCmd = &cobra.Command{
	Use:   "compose [backing-file]",
	Short: "Compose the USB gadget and bind it to the controller",
	Long: `Runs the full composition sequence: load the composite-gadget kernel
module, mount configfs, create the gadget, configuration and function
nodes, link the functions into the configuration and bind the gadget to
the USB device controller. Binding is the last step; once it completes
the attached host enumerates the composite device.

The optional argument overrides the configured mass-storage backing
file. Composition is single-use: run teardown before composing again.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runCompose,
}

var teardownCmd = &cobra.Command{
	Use:   "teardown",
	Short: "Unbind and remove the gadget",
	Long: `Reverses composition in reverse order: unbinds the controller, unlinks
the functions and removes the configuration, function and gadget nodes.
Safe to run after a partial compose. The kernel module and the configfs
mount are left in place.`,
	Run: runTeardown,
}

func runCompose(cmd *cobra.Command, args []string) {
	var backing string
	if len(args) == 1 {
		backing = args[0]
	}
	noJournal, _ := cmd.Flags().GetBool("no-journal")

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	tree := configfs.NewTree(cfg.ConfigFS.Mountpoint)
	composer := gadget.NewComposer(cfg, tree, configfs.LinuxHost{})

	var run *journal.Run
	if !noJournal {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: journal unavailable: %v\n", err)
		} else {
			defer j.Close()
			run, err = j.BeginRun(cfg.ResolveBackingFile(backing))
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: journal unavailable: %v\n", err)
			}
		}
	}
	if run != nil {
		composer.OnTransition = func(s gadget.State) {
			run.Transition(s.String())
		}
	}

	err = composer.Compose(backing)
	if run != nil {
		run.Finish(composer.State().String(), err)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Compose failed after %s: %v\n", composer.State(), err)
		os.Exit(1)
	}
	fmt.Printf("Gadget %s composed and bound\n", cfg.Gadget.Name)
}

func runTeardown(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	tree := configfs.NewTree(cfg.ConfigFS.Mountpoint)
	composer := gadget.NewComposer(cfg, tree, configfs.LinuxHost{})
	if err := composer.Teardown(); err != nil {
		fmt.Fprintf(os.Stderr, "Teardown failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Gadget %s removed\n", cfg.Gadget.Name)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/gadgetgod/config.yaml)")

	composeCmd.Flags().Bool("no-journal", false, "skip journaling this run")

	rootCmd.AddCommand(composeCmd)
	rootCmd.AddCommand(teardownCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(udcCmd)
	rootCmd.AddCommand(runsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

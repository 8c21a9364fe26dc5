// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/mcbridge/pkg/midiport"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI ports",
	Long: `List the MIDI input and output ports known to the system.

Use the names with 'mcbridge host --surface-in/--surface-out'. A device
unit's virtual ports show up here once enumeration has completed.`,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	drv, err := midiport.Open()
	if err != nil {
		return err
	}
	defer drv.Close()

	ins, outs, err := drv.Ports()
	if err != nil {
		return err
	}

	fmt.Printf("Inputs:\n")
	printPortList(ins)
	fmt.Printf("\nOutputs:\n")
	printPortList(outs)
	return nil
}

func printPortList(names []string) {
	if len(names) == 0 {
		fmt.Printf("  (none)\n")
		return
	}
	for i, name := range names {
		fmt.Printf("  %2d  %s\n", i, name)
	}
}

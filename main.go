// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// mcbridge - Mackie Control USB bridge
//
// Runs either unit of a bridge that carries a Mackie Control surface over
// a framed command channel, plus tools for inspecting that channel.

package main

import (
	"os"

	"github.com/Thermoquad/mcbridge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

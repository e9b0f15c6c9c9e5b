// SPDX-License-Identifier: MIT
package main

import (
	"os"

	"genre/cmd"
	applog "genre/internal/log"
	"genre/pkg/build"
)

func main() {
	if err := build.Initialize(); err != nil {
		applog.Fatal(err)
	}
	if err := cmd.Execute(os.Args[1:]); err != nil {
		applog.Fatal(err)
	}
}

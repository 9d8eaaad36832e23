package main

import (
	"github.com/opencore-vm/ocpatch/cmd"
)

func main() {
	cmd.Execute()
}

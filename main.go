package main

import (
	"github.com/luma/argus/cmd"
)

func main() {
	cmd.Execute()
}

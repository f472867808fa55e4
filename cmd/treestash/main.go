package main

import (
	"github.com/treestash/treestash/cmd/treestash/cmd"
)

func main() {
	cmd.Execute()
}

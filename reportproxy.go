package main

import (
	"github.com/reportproxy/reportproxy/client/cmd"
)

func main() {
	cmd.Execute()
}

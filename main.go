package main

import (
	"vcc-fulfillment/cmd"

	_ "go.uber.org/automaxprocs"
)

func main() {
	cmd.Start()
}

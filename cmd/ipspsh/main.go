package main

import (
	"github.com/robotalks/ipsp.go/pkg/cli/sh"
	"github.com/robotalks/ipsp.go/pkg/env"
)

//go-build: CGO_ENABLED=0

func init() {
	env.SetupFlags()
}

func main() {
	sh.Main()
}

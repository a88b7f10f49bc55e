package main

//go-build: CGO_ENABLED=0

import (
	"flag"

	"github.com/robotalks/ipsp.go/pkg/env"
	fx "github.com/robotalks/ipsp.go/pkg/framework"
)

func init() {
	env.SetupFlags()
}

func main() {
	flag.Parse()

	e := env.NewConfig().MustNewEnv()
	runner := fx.NewRunner().HandleSignals()
	e.Loop.Add(e)
	e.Loop.RunOrFail(runner.Context)
}

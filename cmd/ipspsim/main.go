package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"log"
	"net"

	"github.com/golang/glog"

	fx "github.com/robotalks/ipsp.go/pkg/framework"
	"github.com/robotalks/ipsp.go/pkg/sim"
)

var (
	listenAddr = "localhost:7722"
)

func init() {
	flag.StringVar(&listenAddr, "listen", listenAddr, "TCP address serving hosts.")
	sim.SetupFlags()
}

func main() {
	flag.Parse()

	peer, err := sim.NewConfig().NewPeer()
	if err != nil {
		log.Fatalln(err)
	}
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		log.Fatalln(err)
	}
	glog.Infof("simulating %s on %s", peer.Addr, ln.Addr())

	runner := fx.NewRunner().HandleSignals()
	if err := sim.Serve(runner.Context, ln, *peer); err != nil && err != runner.Context.Err() {
		log.Fatalln(err)
	}
}

package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/ipsp.go/pkg/bridge/mqtt"
	"github.com/robotalks/ipsp.go/pkg/env"
	"github.com/robotalks/ipsp.go/pkg/msgs"
)

var (
	mqttURL = "mqtt://localhost:1883/ipsp/"
)

func init() {
	if val := os.Getenv("IPSP_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	opts, prefix, err := mqtt.ClientOptionsFromURL(mqttURL, env.DefaultClientID("mon"))
	if err != nil {
		log.Fatalln(err)
	}
	q := mqtt.NewQueue(opts, prefix)
	q.Sub("#", mqtt.Handler(func(topic string, payload []byte) {
		var msg proto.Message
		switch {
		case strings.HasSuffix(topic, "/"+mqtt.TopicStatus):
			msg = &msgs.LinkStatus{}
		case strings.HasSuffix(topic, "/"+mqtt.TopicFailure):
			msg = &msgs.LinkFailure{}
		default:
			log.Printf("%s: %q", topic, payload)
			return
		}
		if err := proto.Unmarshal(payload, msg); err != nil {
			log.Printf("%s: bad message: %v", topic, err)
			return
		}
		log.Printf("%s: %s", topic, msg.String())
	}))
	token := q.Connect()
	if token.Wait(); token.Error() != nil {
		log.Fatalln(token.Error())
	}
	<-(chan struct{})(nil)
}

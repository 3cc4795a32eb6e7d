package main

import (
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// newMQTTClient connects a simulated device to the broker.
func newMQTTClient(broker, clientID string) (paho.Client, error) {
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID(clientID)
	opts.AutoReconnect = true
	opts.SetConnectTimeout(5 * time.Second)
	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return cli, nil
}

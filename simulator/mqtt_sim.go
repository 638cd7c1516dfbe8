package simulator

import (
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

func newMQTTClient(cfg Config) (paho.Client, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID).
		SetKeepAlive(60 * time.Second).
		SetOrderMatters(false)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return cli, nil
}

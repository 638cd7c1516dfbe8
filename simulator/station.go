// Package simulator emulates the ESP32 irrigation station firmware: it
// answers read requests with noisy sensor readings and applies irrigation
// commands to its simulated soil.
package simulator

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kilianp07/irrigo/core/model"
	coremqtt "github.com/kilianp07/irrigo/core/mqtt"
	"github.com/kilianp07/irrigo/infra/logger"
)

// Station is a simulated irrigation station.
type Station struct {
	cfg Config
	log logger.Logger

	mu       sync.Mutex
	soil     float64
	commands []float64
	client   paho.Client
	ready    chan struct{}
}

// New creates a Station. cfg is completed with defaults.
func New(cfg Config, log logger.Logger) *Station {
	cfg.SetDefaults()
	if log == nil {
		log = logger.New("simulator")
	}
	return &Station{cfg: cfg, log: log, soil: cfg.SoilMoisture.Mean, ready: make(chan struct{})}
}

// Sample draws one value per measurement kind. Kinds dropped by DropRate are
// absent from the snapshot.
func (s *Station) Sample() model.SensorSnapshot {
	s.mu.Lock()
	soilMean := s.soil
	s.soil = clamp(s.soil - s.cfg.DryingPerRead)
	s.mu.Unlock()

	draw := map[model.MeasurementKind]float64{
		model.SoilMoisture: clamp(normal(soilMean, s.cfg.SoilMoisture.StdDev)),
		model.AirHumidity:  clamp(normal(s.cfg.AirHumidity.Mean, s.cfg.AirHumidity.StdDev)),
		model.Temperature:  normal(s.cfg.Temperature.Mean, s.cfg.Temperature.StdDev),
	}
	drop := distuv.Bernoulli{P: s.cfg.DropRate}
	var snap model.SensorSnapshot
	for _, k := range model.Kinds() {
		if s.cfg.DropRate > 0 && drop.Rand() == 1 {
			continue
		}
		snap = snap.With(k, math.Round(draw[k]*10)/10)
	}
	return snap
}

// Irrigate applies amount millimetres to the simulated soil.
func (s *Station) Irrigate(amount float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, amount)
	s.soil = clamp(s.soil + amount*s.cfg.IrrigationGain)
}

// Commands returns the irrigation amounts received so far.
func (s *Station) Commands() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.commands...)
}

// Ready is closed once Run is subscribed to the request topic.
func (s *Station) Ready() <-chan struct{} { return s.ready }

// Run connects to the broker and serves requests until ctx is done.
func (s *Station) Run(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	cli, err := newMQTTClient(s.cfg)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.client = cli
	s.mu.Unlock()
	if token := cli.Subscribe(s.cfg.Topics.Request, 1, s.onRequest(ctx)); token.Wait() && token.Error() != nil {
		cli.Disconnect(250)
		return token.Error()
	}
	close(s.ready)
	s.log.Infof("station simulator listening on %s at %s", s.cfg.Topics.Request, s.cfg.Broker)
	<-ctx.Done()
	cli.Disconnect(250)
	return nil
}

func (s *Station) onRequest(ctx context.Context) paho.MessageHandler {
	return func(c paho.Client, msg paho.Message) {
		payload := string(msg.Payload())
		switch {
		case payload == coremqtt.ReadRequestPayload:
			go s.reply(ctx, c)
		default:
			amount, err := coremqtt.ParseIrrigationCommand(payload)
			if err != nil {
				s.log.Debugf("ignoring %q", payload)
				return
			}
			s.log.Infof("irrigating %v mm", amount)
			s.Irrigate(amount)
		}
	}
}

func (s *Station) reply(ctx context.Context, c paho.Client) {
	if d := s.cfg.replyDelay(); d > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(d):
		}
	}
	snap := s.Sample()
	for _, k := range model.Kinds() {
		v, ok := snap.Get(k)
		if !ok {
			continue
		}
		topic := s.cfg.Topics.Topic(k)
		token := c.Publish(topic, 1, false, strconv.FormatFloat(v, 'f', -1, 64))
		if token.Wait() && token.Error() != nil {
			s.log.Errorf("publish %s: %v", topic, token.Error())
		}
	}
	s.log.Debugw("readings sent", snap.Fields())
}

func normal(mean, stddev float64) float64 {
	if stddev == 0 {
		return mean
	}
	return distuv.Normal{Mu: mean, Sigma: stddev}.Rand()
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

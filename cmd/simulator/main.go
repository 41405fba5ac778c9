package main

import (
	"context"
	"flag"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/campus-carbon/carbon-portal/internal/config"
	"github.com/campus-carbon/carbon-portal/internal/logging"
	"github.com/campus-carbon/carbon-portal/internal/telemetry"
)

type reading struct {
	BuildingName string  `json:"building_name"`
	Year         int     `json:"year"`
	Month        int     `json:"month"`
	Electricity  float64 `json:"electricity"`
	Gas          float64 `json:"gas"`
	Water        float64 `json:"water"`
}

func main() {
	rounds := flag.Int("rounds", 20, "number of publish rounds")
	interval := flag.Duration("interval", 500*time.Millisecond, "pause between rounds")
	flag.Parse()

	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	logging.Setup(config.LogLevel(), config.LogFormat())

	client := mqtt.NewClient(mqtt.NewClientOptions().AddBroker(config.MQTTBroker()).SetClientID("carbon-simulator"))
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatal().Err(token.Error()).Msg("mqtt connect")
	}
	defer client.Disconnect(250)

	gen := telemetry.NewSynthetic(0)
	topic := config.MQTTTopic()
	for i := 0; i < *rounds; i++ {
		now := time.Now().In(config.Location())
		buildings, _ := gen.FetchBuildings(context.Background(), now.Year(), int(now.Month()))
		for _, b := range buildings {
			payload, err := json.Marshal(reading{
				BuildingName: b.Name,
				Year:         now.Year(),
				Month:        int(now.Month()),
				Electricity:  b.Electricity,
				Gas:          b.Gas,
				Water:        b.Water,
			})
			if err != nil {
				log.Fatal().Err(err).Msg("encode reading")
			}
			token := client.Publish(topic, 1, false, payload)
			token.Wait()
			if err := token.Error(); err != nil {
				log.Error().Err(err).Str("building", b.Name).Msg("publish failed")
			}
		}
		time.Sleep(*interval)
	}
	log.Info().Int("rounds", *rounds).Msg("simulation done")
}

package source

import (
	"net/http"

	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/config"
	"go.uber.org/zap"
)

// NewAdapters builds one adapter per enabled device. Devices missing their
// token or read key are skipped with a warning.
func NewAdapters(devices []config.DeviceConfig, poll config.PollConfig, client *http.Client, logger *zap.Logger) []Adapter {
	adapters := make([]Adapter, 0, len(devices))

	for _, d := range devices {
		if d.Disabled {
			logger.Info("device disabled", zap.String("device", d.Name))
			continue
		}
		if d.Secret() == "" {
			logger.Warn("skipping device without credentials",
				zap.String("device", d.Name),
				zap.String("source", d.Source),
				zap.String("env", secretEnv(d)),
			)
			continue
		}

		device := Device{Name: d.Name, Source: d.Source, Location: d.Location}

		switch d.Source {
		case config.SourceWio:
			device.Token = d.Token
			adapters = append(adapters, NewWioAdapter(WioConfig{
				Device:  device,
				BaseURL: poll.WioBaseURL,
				Sensors: d.Sensors,
			}, client, logger))
		case config.SourceThingSpeak:
			adapters = append(adapters, NewThingSpeakAdapter(ThingSpeakConfig{
				Device:        device,
				BaseURL:       poll.ThingSpeakBaseURL,
				ChannelID:     d.ChannelID,
				ReadKey:       d.ReadKey,
				Fields:        d.Fields,
				Results:       d.Results,
				Window:        d.Window,
				RequireTrue:   d.RequireTrue,
				IncludeLatest: d.IncludeLatest,
			}, client, logger))
		default:
			logger.Warn("skipping device with unknown source",
				zap.String("device", d.Name),
				zap.String("source", d.Source),
			)
		}
	}

	return adapters
}

func secretEnv(d config.DeviceConfig) string {
	if d.Source == config.SourceThingSpeak {
		return "THINGSPEAK_READ_KEY_" + config.EnvName(d.Name)
	}
	return "WIO_TOKEN_" + config.EnvName(d.Name)
}

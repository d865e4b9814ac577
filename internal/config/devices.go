package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Device sources understood by the adapters
const (
	SourceWio        = "wio"
	SourceThingSpeak = "thingspeak"
)

// DeviceConfig describes one polled device. Wio devices use Token and
// Sensors (metric key to sensor path); ThingSpeak devices use ChannelID,
// ReadKey and Fields (feed field to metric key). IncludeLatest keeps the
// newest feed entry of a Window-filtered channel.
type DeviceConfig struct {
	Name          string            `mapstructure:"name"`
	Source        string            `mapstructure:"source"`
	Location      string            `mapstructure:"location"`
	Token         string            `mapstructure:"token"`
	Sensors       map[string]string `mapstructure:"sensors"`
	ChannelID     string            `mapstructure:"channel_id"`
	ReadKey       string            `mapstructure:"read_key"`
	Fields        map[string]string `mapstructure:"fields"`
	Results       int               `mapstructure:"results"`
	Window        time.Duration     `mapstructure:"window"`
	RequireTrue   string            `mapstructure:"require_true"`
	IncludeLatest bool              `mapstructure:"include_latest"`
	Disabled      bool              `mapstructure:"disabled"`
}

// Secret returns the credential the device needs for its source
func (d DeviceConfig) Secret() string {
	if d.Source == SourceThingSpeak {
		return d.ReadKey
	}
	return d.Token
}

// WioSensors is the Grove module path table shared by the Wio Link boards
var WioSensors = map[string]string{
	"light_intensity": "/GroveDigitalLightI2C0/lux",
	"motion_detected": "/GrovePIRMotionD1/approach",
	"dust":            "/GroveDustD0/dust",
	"celsius_degree":  "/GroveTempHumD2/temperature",
	"humidity":        "/GroveTempHumD2/humidity",
	"mag_approach":    "/GroveMagneticSwitchD0/approach",
}

// DefaultDevices returns the built-in device catalog without secrets
func DefaultDevices() []DeviceConfig {
	return []DeviceConfig{
		{Name: "604_door", Source: SourceWio, Location: "604", Sensors: copyMap(WioSensors)},
		{Name: "604_wall", Source: SourceWio, Location: "604", Sensors: copyMap(WioSensors)},
		{
			Name: "604_center", Source: SourceThingSpeak, Location: "604", ChannelID: "3022873",
			Fields: map[string]string{"field1": "celsius_degree", "field2": "humidity"},
		},
		{
			Name: "604_window", Source: SourceThingSpeak, Location: "604", ChannelID: "3027253",
			Fields: map[string]string{
				"field1": "celsius_degree",
				"field2": "humidity",
				"field4": "pm1_0_atm",
				"field5": "pm2_5_atm",
				"field6": "pm10_atm",
			},
		},
		{
			Name: "604_outdoor", Source: SourceThingSpeak, Location: "604", ChannelID: "3031639",
			Fields: map[string]string{
				"field1": "celsius_degree",
				"field2": "humidity",
				"field3": "pm1_0_atm",
				"field4": "pm2_5_atm",
				"field5": "pm10_atm",
			},
		},
		{
			// touch events are short-lived, so the last five minutes of the
			// feed are scanned for touch == 1; the newest entry is kept as well
			// so temperature, humidity and light keep flowing between touches
			Name: "604_aircondition", Source: SourceThingSpeak, Location: "604", ChannelID: "3026055",
			Fields: map[string]string{
				"field1": "celsius_degree",
				"field2": "humidity",
				"field3": "light_intensity",
				"field4": "touch",
			},
			Results:       100,
			Window:        5 * time.Minute,
			RequireTrue:   "touch",
			IncludeLatest: true,
		},
	}
}

// LoadDevices reads a device list from a YAML, JSON or TOML file under the
// top-level "devices" key
func LoadDevices(path string) ([]DeviceConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read devices file %s: %w", path, err)
	}

	var devices []DeviceConfig
	if err := v.UnmarshalKey("devices", &devices); err != nil {
		return nil, fmt.Errorf("failed to decode devices file %s: %w", path, err)
	}

	for i, d := range devices {
		if d.Name == "" {
			return nil, fmt.Errorf("devices[%d]: name is required", i)
		}
		if d.Source != SourceWio && d.Source != SourceThingSpeak {
			return nil, fmt.Errorf("device %s: unknown source %q", d.Name, d.Source)
		}
		if d.Source == SourceWio && len(d.Sensors) == 0 {
			devices[i].Sensors = copyMap(WioSensors)
		}
		if d.Source == SourceThingSpeak && (d.ChannelID == "" || len(d.Fields) == 0) {
			return nil, fmt.Errorf("device %s: channel_id and fields are required", d.Name)
		}
	}

	return devices, nil
}

// ResolveSecrets fills missing tokens and read keys from the environment:
// WIO_TOKEN_<NAME> for Wio boards, THINGSPEAK_READ_KEY_<NAME> for channels
func ResolveSecrets(devices []DeviceConfig, getenv func(string) string) []DeviceConfig {
	out := make([]DeviceConfig, len(devices))
	for i, d := range devices {
		switch d.Source {
		case SourceWio:
			if d.Token == "" {
				d.Token = getenv("WIO_TOKEN_" + EnvName(d.Name))
			}
		case SourceThingSpeak:
			if d.ReadKey == "" {
				d.ReadKey = getenv("THINGSPEAK_READ_KEY_" + EnvName(d.Name))
			}
		}
		out[i] = d
	}
	return out
}

// EnvName upper-cases a device name and replaces anything that is not a
// letter or digit with an underscore
func EnvName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, name)
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

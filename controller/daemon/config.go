package daemon

import (
	"os"

	"gopkg.in/yaml.v2"

	"github.com/garden-pi/garden-pi/controller/drivers/shiftreg"
	"github.com/garden-pi/garden-pi/controller/modules/balance"
	"github.com/garden-pi/garden-pi/controller/modules/zone"
	"github.com/garden-pi/garden-pi/controller/telemetry"
)

type Config struct {
	Database  string           `yaml:"database"`
	Address   string           `yaml:"address"`
	DevMode   bool             `yaml:"dev_mode"`
	GPIOChip  string           `yaml:"gpio_chip"`
	Relay     shiftreg.Config  `yaml:"relay"`
	Zones     zone.Config      `yaml:"zones"`
	Balance   balance.Config   `yaml:"balance"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

func DefaultConfig() Config {
	return Config{
		Database: "/var/lib/garden-pi/garden-pi.db",
		Address:  "localhost:8080",
		GPIOChip: "gpiochip0",
		Relay: shiftreg.Config{
			Bits:   8,
			Data:   17,
			Clock:  27,
			Latch:  22,
			Enable: 23,
		},
		Zones: zone.Config{
			MasterValve:     "master",
			FertilizerValve: "fertilizer",
		},
		Balance: balance.Config{
			TriggerTime: "05:30",
		},
		Telemetry: telemetry.Config{
			Prefix: "garden-pi",
		},
	}
}

func ParseConfig(fname string) (Config, error) {
	conf := DefaultConfig()
	data, err := os.ReadFile(fname)
	if err != nil {
		return conf, err
	}
	if err := yaml.Unmarshal(data, &conf); err != nil {
		return conf, err
	}
	return conf, nil
}

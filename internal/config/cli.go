// Package config is the root of the command line and config file schema.
package config

import (
	"github.com/Alia5/joybridge/internal/cmd"
	"github.com/Alia5/joybridge/internal/log"
)

type CLI struct {
	ConfigFile string     `name:"config" help:"Configuration file (json, yaml or toml)" type:"path" env:"JOYBRIDGE_CONFIG"`
	Log        log.Config `embed:"" prefix:"log."`

	Run       cmd.Bridge        `cmd:"" default:"withargs" help:"Bridge controllers to virtual pads and the DSU motion server"`
	List      cmd.List          `cmd:"" help:"List connected controllers"`
	Calibrate cmd.Calibrate     `cmd:"" help:"Recenter the sticks of a controller"`
	Config    cmd.ConfigCommand `cmd:"" help:"Manage configuration files"`
	Install   cmd.Install       `cmd:"" help:"Install joybridge as a system service"`
	Uninstall cmd.Uninstall     `cmd:"" help:"Remove the joybridge system service"`
}

package fileserver

import (
	"os"

	E "github.com/sagernet/sing/common/exceptions"
	"gopkg.in/yaml.v3"
)

// Options is the layout of the configuration file. JSON files are read as well.
type Options struct {
	Config   `yaml:",inline"`
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic"`
}

func DefaultOptions() Options {
	return Options{
		Config:   DefaultConfig(),
		LogLevel: "info",
	}
}

func ReadOptions(path string) (*Options, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, E.Cause(err, "read config file")
	}
	options := DefaultOptions()
	err = yaml.Unmarshal(content, &options)
	if err != nil {
		return nil, E.Cause(err, "decode config file")
	}
	err = options.Validate()
	if err != nil {
		return nil, err
	}
	return &options, nil
}

func (o *Options) Validate() error {
	err := validate.Struct(o)
	if err != nil {
		return E.Cause(err, "invalid config")
	}
	return o.Config.Validate()
}

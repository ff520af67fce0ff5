// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package natscore

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// envConfig mirrors the subset of Options that a deployed service typically
// wants to source from the environment rather than hard-code, using the same
// caarlos0/env struct-tag pattern the rest of the ecosystem's NATS-consuming
// services use for configuration.
type envConfig struct {
	Server         string        `env:"NATS_SERVER" envDefault:"localhost:4222"`
	Name           string        `env:"NATS_NAME"`
	User           string        `env:"NATS_USER"`
	Pass           string        `env:"NATS_PASS"`
	AuthToken      string        `env:"NATS_AUTH_TOKEN"`
	ReconnectDelay time.Duration `env:"NATS_RECONNECT_DELAY" envDefault:"1s"`
	MaxPayloadSize int64         `env:"NATS_MAX_PAYLOAD_SIZE" envDefault:"67108864"`
	Verbose        bool          `env:"NATS_VERBOSE" envDefault:"false"`
	Echo           bool          `env:"NATS_ECHO" envDefault:"true"`
}

// OptionsFromEnv builds Options from the process environment, applying extra
// as overrides on top of the parsed values so callers can still layer
// programmatic options (serializer, logger, registerer) that have no sane
// textual representation.
func OptionsFromEnv(extra ...Option) (Options, error) {
	var cfg envConfig
	if err := env.Parse(&cfg); err != nil {
		return Options{}, err
	}

	o := defaultOptions
	o.Server = cfg.Server
	o.Name = cfg.Name
	o.User = cfg.User
	o.Pass = cfg.Pass
	o.AuthToken = cfg.AuthToken
	o.ReconnectDelay = cfg.ReconnectDelay
	o.MaxPayloadSize = cfg.MaxPayloadSize
	o.Verbose = cfg.Verbose
	o.Echo = cfg.Echo

	for _, fn := range extra {
		fn(&o)
	}
	return o, nil
}

// Copyright (c) 2026 Tigera, Inc. All rights reserved.

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package daemon

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/projectcalico/breadcrumbs/pkg/breadcrumbs"
)

type Config struct {
	// LogLevel is the log level to use.
	LogLevel string `json:"log_level" envconfig:"LOG_LEVEL" default:"info"`

	// BucketDuration is the width of each breadcrumb window, and FlushInterval the time between
	// flushes of completed windows.
	BucketDuration time.Duration `json:"bucket_duration" envconfig:"BUCKET_DURATION" default:"1m"`
	FlushInterval  time.Duration `json:"flush_interval" envconfig:"FLUSH_INTERVAL" default:"10s"`

	// PreAllocatedInterval is how far ahead buckets are created at startup. Zero disables it.
	PreAllocatedInterval time.Duration `json:"preallocated_interval" envconfig:"PREALLOCATED_INTERVAL" default:"24h"`

	// Identity stamped on every breadcrumb. The producer and consumer append "_tx" and "_rx" to
	// the source so their trails can be told apart.
	Application string `json:"application" envconfig:"APPLICATION" default:"breadcrumbs"`
	Source      string `json:"source" envconfig:"SOURCE" default:"synthetic"`
	Tier        string `json:"tier" envconfig:"TIER" default:"default"`
	Datacenter  string `json:"datacenter" envconfig:"DATACENTER" default:"local"`

	// Handler selects where breadcrumbs go: none, log, http or kafka. Codec selects how they are
	// encoded: json or cbor.
	Handler     string        `json:"handler" envconfig:"HANDLER" default:"log"`
	Codec       string        `json:"codec" envconfig:"CODEC" default:"json"`
	SendTimeout time.Duration `json:"send_timeout" envconfig:"SEND_TIMEOUT" default:"30s"`

	// PushURL is where breadcrumbs are POSTed when the http handler is selected.
	PushURL    string `json:"push_url" envconfig:"PUSH_URL"`
	CACertPath string `json:"ca_cert_path" envconfig:"CA_CERT_PATH"`
	ServerName string `json:"server_name" envconfig:"SERVER_NAME"`

	// KafkaBrokers is a comma separated list of brokers used when the kafka handler is selected.
	KafkaBrokers []string `json:"kafka_brokers" envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `json:"kafka_topic" envconfig:"KAFKA_TOPIC" default:"breadcrumbs"`

	// ToggleFilePath, if set, names a file holding {"enabled": true|false}. It is watched, and
	// breadcrumbs are only handed to the handler while it says enabled.
	ToggleFilePath string `json:"toggle_file_path" envconfig:"TOGGLE_FILE"`

	// DatumsPerSecond is the rate at which synthetic datums are generated.
	DatumsPerSecond int `json:"datums_per_second" envconfig:"DATUMS_PER_SECOND" default:"10"`

	// PrometheusPort is the port to listen on for serving Prometheus metrics.
	PrometheusPort int `json:"prometheus_port" envconfig:"PROMETHEUS_PORT" default:"0"`
}

// ConfigFromEnv loads configuration from the environment. If envFile is set, variables it defines
// are added to the environment first. Variables already set in the environment take precedence.
func ConfigFromEnv(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("error loading %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("error loading configuration from environment: %w", err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.DatumsPerSecond <= 0 || c.DatumsPerSecond > 1_000_000 {
		return fmt.Errorf("%w: DATUMS_PER_SECOND must be between 1 and 1000000, got %d", breadcrumbs.ErrInvalidConfig, c.DatumsPerSecond)
	}
	return c.breadcrumbsConfig("").Validate()
}

func (c Config) breadcrumbsConfig(suffix string) breadcrumbs.Config {
	return breadcrumbs.Config{
		BucketDuration: c.BucketDuration,
		FlushInterval:  c.FlushInterval,
		Application:    c.Application,
		Source:         c.Source + suffix,
		Tier:           c.Tier,
		Datacenter:     c.Datacenter,
	}
}

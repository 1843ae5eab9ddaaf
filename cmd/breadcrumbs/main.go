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

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/projectcalico/breadcrumbs/internal/utils"
	"github.com/projectcalico/breadcrumbs/pkg/daemon"
)

func main() {
	envFile := flag.String("env-file", "", "Path to a .env file to load before reading the environment")
	logLevel := flag.String("log-level", "", "Log level, overriding LOG_LEVEL")
	flag.Parse()

	cfg, err := daemon.ConfigFromEnv(*envFile)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	utils.ConfigureLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := daemon.Run(ctx, cfg); err != nil {
		logrus.WithError(err).Fatal("Breadcrumbs daemon failed")
	}
}

/*
Copyright 2026 jr42.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package dhcp6

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

// NewProductionLogger builds the engine's default logr.Logger from a
// JSON zap.Logger, for hosts that don't already carry their own
// structured logger to set as EngineConfig.Log.
func NewProductionLogger() (logr.Logger, error) {
	zl, err := zap.NewProduction()
	if err != nil {
		return logr.Logger{}, err
	}
	return zapr.NewLogger(zl), nil
}

// NewDevelopmentLogger builds a console-friendly logr.Logger for local
// runs and tests that want readable output instead of JSON.
func NewDevelopmentLogger() (logr.Logger, error) {
	zl, err := zap.NewDevelopment()
	if err != nil {
		return logr.Logger{}, err
	}
	return zapr.NewLogger(zl), nil
}

// Copyright 2025 Tom Barlow
//
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

package shared

import (
	"io"
	"log/slog"

	"github.com/tombee/apiscenario/internal/config"
	"github.com/tombee/apiscenario/internal/log"
)

// LoadConfig loads the file named by --config, or the default file.
func LoadConfig() (*config.Config, error) {
	return config.Load(GetConfigPath())
}

// NewLogger builds the CLI logger. --verbose lowers the configured level
// to debug and --quiet raises it to error.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	lc := &log.Config{
		Level:  cfg.Log.Level,
		Format: log.Format(cfg.Log.Format),
		Output: w,
	}
	switch {
	case GetQuiet():
		lc.Level = "error"
	case GetVerbose() && log.ParseLevel(lc.Level) > slog.LevelDebug:
		lc.Level = "debug"
	}
	return log.New(lc)
}

package transcription

import (
	"fmt"

	"github.com/nijaru/autoclip/config"
	"github.com/sirupsen/logrus"
)

// NewEngine creates the engine selected by configuration
func NewEngine(cfg config.TranscriptionConfig, logger *logrus.Logger) (Engine, error) {
	switch cfg.Engine {
	case config.EngineServer:
		return NewServerEngine(cfg, logger), nil
	case config.EngineCLI:
		return NewCLIEngine(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown transcription engine %q", cfg.Engine)
	}
}

// Ensure both implementations satisfy the interface
var _ Engine = (*ServerEngine)(nil)
var _ Engine = (*CLIEngine)(nil)

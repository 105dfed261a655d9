package initialization

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"

	"talkbot/internal/ai"
	"talkbot/internal/ai/tools"
	"talkbot/internal/archive"
	"talkbot/internal/config"
	"talkbot/internal/conversation"
	"talkbot/internal/dispatch"
	"talkbot/internal/logger"
)

// App holds everything a transport needs to run conversations.
type App struct {
	Config     *config.Config
	Provider   ai.Provider
	Registry   *tools.ToolRegistry
	Dispatcher *dispatch.Dispatcher
	Archive    *archive.Store
}

// LoadConfig reads .env and the config file and sets up log files.
func LoadConfig(configPath string) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	if configPath == "" {
		configPath = config.GetConfigPath()
	}

	logger.Infof("Loading configuration from %s", configPath)
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	if err := logger.Setup(cfg.DataDir); err != nil {
		return nil, err
	}
	logger.SetDebug(cfg.Debug)
	return cfg, nil
}

// Initialize builds the provider, tool registry, archive and dispatcher.
// source tags archived sessions with the transport name.
func Initialize(configPath, source string) (*App, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	provider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return nil, err
	}

	registry, err := tools.NewTalkRegistry(cfg.Dialogue.Schema)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, Provider: provider, Registry: registry}

	var opts []dispatch.Option
	if cfg.Archive.Enabled {
		store, err := archive.Open(cfg.ArchivePath())
		if err != nil {
			logger.Warnf("Session archive disabled: %v", err)
		} else {
			app.Archive = store
			opts = append(opts, dispatch.WithArchiver(store.For(source)))
		}
	}
	app.Dispatcher = dispatch.New(opts...)

	logger.Successf("Using %s (manager: %s, worker: %s, schema: %s)",
		provider.Name(), cfg.AI.ManagerModel, cfg.AI.WorkerModel, cfg.Dialogue.Schema)
	return app, nil
}

func (a *App) Runner() *conversation.Runner {
	return conversation.NewRunner(a.Config, a.Dispatcher, a.Provider, a.Registry)
}

func (a *App) Close() {
	if a.Archive != nil {
		if err := a.Archive.Close(); err != nil {
			logger.Errorf("Error closing session archive: %v", err)
		}
	}
	logger.CloseLogFile()
}

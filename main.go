package vodpack

import (
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"vodpack/internal/api"
	"vodpack/internal/asset"
	"vodpack/internal/config"
	"vodpack/internal/http"
	"vodpack/internal/media"
	"vodpack/internal/pipeline"
)

var Service *Main

func init() {
	Service = &Main{
		ServerConfig: &config.Server{},
	}
}

type Main struct {
	ServerConfig *config.Server

	logger     zerolog.Logger
	store      *asset.StoreCtx
	pipeline   *pipeline.ManagerCtx
	apiManager *api.ApiManagerCtx
	server     *http.HttpManagerCtx
}

func (main *Main) Preflight() {
	main.logger = log.With().Str("service", "main").Logger()
}

func (main *Main) Start() {
	conf := main.ServerConfig

	main.store = asset.NewStore(conf.MediaDir)
	main.pipeline = pipeline.New(main.store, media.NewFFmpeg(conf.FFmpegBinary, conf.FFprobeBinary))
	main.apiManager = api.New(conf, main.store, main.pipeline)

	main.server = http.New(conf)
	main.server.Mount(main.apiManager.Mount)
	main.server.Start()
}

func (main *Main) Shutdown() {
	if err := main.server.Shutdown(); err != nil {
		main.logger.Err(err).Msg("server shutdown with an error")
	} else {
		main.logger.Debug().Msg("server shutdown")
	}
}

func (main *Main) ServeCommand(cmd *cobra.Command, args []string) {
	main.logger.Info().Msg("starting main server")
	main.Start()
	main.logger.Info().Msg("main ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	sig := <-quit

	main.logger.Warn().Msgf("received %s, attempting graceful shutdown", sig)
	main.Shutdown()
	main.logger.Info().Msg("shutdown complete")
}

package cmd

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"vodpack"
	"vodpack/internal/asset"
	"vodpack/internal/media"
	"vodpack/internal/pipeline"
)

func init() {
	command := &cobra.Command{
		Use:   "process [file]",
		Short: "process a local video file",
		Long:  `run the full transcode, segment and manifest pipeline over a local file`,
		Args:  cobra.ExactArgs(1),
		Run:   processCommand,
	}

	command.Flags().IntSlice("resolutions", nil, "target heights to produce")
	_ = viper.BindPFlag("process.resolutions", command.Flags().Lookup("resolutions"))

	command.Flags().Int("duration", 30, "segment duration in seconds")
	_ = viper.BindPFlag("process.duration", command.Flags().Lookup("duration"))

	root.AddCommand(command)
}

func processCommand(cmd *cobra.Command, args []string) {
	conf := vodpack.Service.ServerConfig

	file, err := os.Open(args[0])
	if err != nil {
		log.Fatal().Err(err).Msg("unable to open source file")
	}
	defer file.Close()

	resolutions := viper.GetIntSlice("process.resolutions")
	if len(resolutions) == 0 {
		resolutions = conf.Resolutions
	}

	store := asset.NewStore(conf.MediaDir)
	pipe := pipeline.New(store, media.NewFFmpeg(conf.FFmpegBinary, conf.FFprobeBinary))

	manifest, err := pipe.Process(context.Background(), pipeline.Request{
		Source:          file,
		Filename:        filepath.Base(args[0]),
		Resolutions:     resolutions,
		SegmentDuration: viper.GetInt("process.duration"),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("processing failed")
	}

	out, _ := json.MarshalIndent(manifest, "", "  ")
	//nolint
	os.Stdout.Write(append(out, '\n'))
}

package config

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// resolution presets offered to uploads
var DefaultResolutions = []int{2160, 1440, 1080, 720, 480, 360}

type Server struct {
	Cert  string
	Key   string
	Bind  string
	Proxy bool

	MediaDir      string
	FFmpegBinary  string
	FFprobeBinary string

	Resolutions     []int
	SegmentDuration int
	MaxUploadMB     int64
}

func (Server) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().String("bind", "127.0.0.1:8080", "address/port/socket to serve the server on")
	if err := viper.BindPFlag("bind", cmd.PersistentFlags().Lookup("bind")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("cert", "", "path to the SSL cert used to secure the server")
	if err := viper.BindPFlag("cert", cmd.PersistentFlags().Lookup("cert")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("key", "", "path to the SSL key used to secure the server")
	if err := viper.BindPFlag("key", cmd.PersistentFlags().Lookup("key")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("proxy", false, "allow reverse proxies")
	if err := viper.BindPFlag("proxy", cmd.PersistentFlags().Lookup("proxy")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("media-dir", "", "directory for uploaded and processed assets")
	if err := viper.BindPFlag("media-dir", cmd.PersistentFlags().Lookup("media-dir")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("ffmpeg-binary", "", "path to the ffmpeg binary")
	if err := viper.BindPFlag("ffmpeg-binary", cmd.PersistentFlags().Lookup("ffmpeg-binary")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("ffprobe-binary", "", "path to the ffprobe binary")
	if err := viper.BindPFlag("ffprobe-binary", cmd.PersistentFlags().Lookup("ffprobe-binary")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("segment-duration", 30, "default segment duration in seconds")
	if err := viper.BindPFlag("segment-duration", cmd.PersistentFlags().Lookup("segment-duration")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int64("max-upload-mb", 20480, "maximum upload size in megabytes")
	if err := viper.BindPFlag("max-upload-mb", cmd.PersistentFlags().Lookup("max-upload-mb")); err != nil {
		return err
	}

	return nil
}

func (s *Server) Set() {
	s.Cert = viper.GetString("cert")
	s.Key = viper.GetString("key")
	s.Bind = viper.GetString("bind")
	s.Proxy = viper.GetBool("proxy")

	s.MediaDir = viper.GetString("media-dir")
	if s.MediaDir == "" {
		cwd, _ := os.Getwd()
		s.MediaDir = cwd + "/media"
	}
	if err := os.MkdirAll(s.MediaDir, 0755); err != nil {
		panic(err)
	}

	s.FFmpegBinary = viper.GetString("ffmpeg-binary")
	if s.FFmpegBinary == "" {
		s.FFmpegBinary = "ffmpeg"
	}

	s.FFprobeBinary = viper.GetString("ffprobe-binary")
	if s.FFprobeBinary == "" {
		s.FFprobeBinary = "ffprobe"
	}

	s.Resolutions = viper.GetIntSlice("resolutions")
	if len(s.Resolutions) == 0 {
		s.Resolutions = DefaultResolutions
	}

	s.SegmentDuration = viper.GetInt("segment-duration")
	if s.SegmentDuration == 0 {
		s.SegmentDuration = 30
	}

	s.MaxUploadMB = viper.GetInt64("max-upload-mb")
	if s.MaxUploadMB == 0 {
		s.MaxUploadMB = 20480
	}
}

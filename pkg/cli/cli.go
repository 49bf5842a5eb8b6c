package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/peterbourgon/ff/ffyaml"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/igolaizola/lyricvid/pkg/cmd/align"
	"github.com/igolaizola/lyricvid/pkg/cmd/common"
	"github.com/igolaizola/lyricvid/pkg/cmd/credits"
	"github.com/igolaizola/lyricvid/pkg/cmd/download"
	"github.com/igolaizola/lyricvid/pkg/cmd/generate"
	"github.com/igolaizola/lyricvid/pkg/cmd/migrate"
	"github.com/igolaizola/lyricvid/pkg/cmd/remove"
	"github.com/igolaizola/lyricvid/pkg/cmd/video"
	"github.com/igolaizola/lyricvid/pkg/cmd/web"
	"github.com/igolaizola/lyricvid/pkg/overlay"
	"github.com/igolaizola/lyricvid/pkg/suno"
)

func New(version, commit, date string) *ffcli.Command {
	fs := flag.NewFlagSet("lyricvid", flag.ExitOnError)

	return &ffcli.Command{
		ShortUsage: "lyricvid [flags] <subcommand>",
		FlagSet:    fs,
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
		Subcommands: []*ffcli.Command{
			newVersionCommand(version, commit, date),
			newMigrateCommand(),
			newCreditsCommand(),
			newGenerateCommand(),
			newDownloadCommand(),
			newDeleteCommand(),
			newAlignCommand(),
			newVideoCommand(),
			newRemoteVideoCommand(),
			newServeCommand(),
		},
	}
}

func newVersionCommand(version, commit, date string) *ffcli.Command {
	return &ffcli.Command{
		Name:       "version",
		ShortUsage: "lyricvid version",
		ShortHelp:  "print version",
		Exec: func(ctx context.Context, args []string) error {
			v := version
			if v == "" {
				if buildInfo, ok := debug.ReadBuildInfo(); ok {
					v = buildInfo.Main.Version
				}
			}
			if v == "" {
				v = "dev"
			}
			versionFields := []string{v}
			if commit != "" {
				versionFields = append(versionFields, commit)
			}
			if date != "" {
				versionFields = append(versionFields, date)
			}
			fmt.Println(strings.Join(versionFields, " "))
			return nil
		},
	}
}

func options() []ff.Option {
	return []ff.Option{
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ffyaml.Parser),
		ff.WithEnvVarPrefix("LYRICVID"),
	}
}

func dbFlags(fs *flag.FlagSet, dbg *bool, dbType, dbConn *string) {
	fs.BoolVar(dbg, "debug", false, "debug mode")
	fs.StringVar(dbType, "db-type", "json", "db type (json, sqlite, mysql, postgres)")
	fs.StringVar(dbConn, "db-conn", "savedData.json", "path for json or sqlite, dsn for mysql or postgres")
}

func apiFlags(fs *flag.FlagSet, proxy, key, baseURL *string) {
	fs.StringVar(proxy, "proxy", "", "proxy to use")
	fs.StringVar(key, "api-key", "", "music api key")
	fs.StringVar(baseURL, "api-url", suno.DefaultBaseURL, "music api base url")
}

// commonFlags registers the flags of common.Config.
func commonFlags(fs *flag.FlagSet, cfg *common.Config) {
	dbFlags(fs, &cfg.Debug, &cfg.DBType, &cfg.DBConn)
	apiFlags(fs, &cfg.Proxy, &cfg.APIKey, &cfg.BaseURL)
	fs.StringVar(&cfg.Redis, "redis", "", "redis url to cache timestamps (optional) Example: redis://localhost:6379/0")
	fs.DurationVar(&cfg.RedisTTL, "redis-ttl", 0, "expiration of cached timestamps in redis (0 means no expiration)")
	fs.StringVar(&cfg.FSType, "fs-type", "", "fs type to upload files (local, s3, telegram)")
	fs.StringVar(&cfg.FSConn, "fs-conn", "", "path for local, key:secret@bucket.region for s3, token@chat for telegram")
	fs.StringVar(&cfg.Output, "output", "output", "output folder")

	fs.DurationVar(&cfg.Wait, "wait", 1*time.Second, "minimum wait time between api requests")
	fs.DurationVar(&cfg.Poll, "poll", 5*time.Second, "poll interval for api tasks")
	fs.StringVar(&cfg.CallbackURL, "callback-url", "", "callback url sent to the api (optional)")

	fs.StringVar(&cfg.Timing, "timing", "suno", "timestamps source (suno, whisper, none)")
	fs.StringVar(&cfg.WhisperToken, "whisper-token", "", "openai token for whisper timing")
	fs.StringVar(&cfg.WhisperURL, "whisper-url", "", "openai compatible api url for whisper timing (optional)")
	fs.StringVar(&cfg.WhisperModel, "whisper-model", "", "whisper model (optional)")
	fs.StringVar(&cfg.Markers, "markers", "", "section keywords that aren't displayed (comma separated, optional)")
	fs.IntVar(&cfg.Window, "window", 3, "words to look ahead when resynchronizing lyrics")
	fs.Float64Var(&cfg.Gap, "gap", 0.05, "seconds between the end of a line and the start of the next")

	fs.StringVar(&cfg.FFmpeg, "ffmpeg", "ffmpeg", "ffmpeg binary")
	fs.BoolVar(&cfg.GPU, "gpu", false, "try nvidia gpu encoding first")
	fs.BoolVar(&cfg.Thumbnail, "thumbnail", true, "create a thumbnail with the title")
	fs.StringVar(&cfg.StyleFile, "style-file", "", "yaml file with text style (optional)")
	def := overlay.DefaultStyle()
	fs.StringVar(&cfg.Style.Font, "font", def.Font, "font file (optional)")
	fs.Float64Var(&cfg.Style.FontSize, "font-size", def.FontSize, "font size for a 1080p frame")
	fs.StringVar(&cfg.Style.Color, "font-color", def.Color, "font color")
	fs.StringVar(&cfg.Style.BorderColor, "border-color", def.BorderColor, "text border color")
	fs.IntVar(&cfg.Style.BorderWidth, "border-width", def.BorderWidth, "text border width")
	fs.Float64Var(&cfg.Style.Position, "position", def.Position, "vertical text position (0 top, 1 bottom)")
	fs.Float64Var(&cfg.Style.Fade, "fade", def.Fade, "fade in and out seconds")
	fs.IntVar(&cfg.Style.MaxChars, "max-chars", def.MaxChars, "maximum characters per text row")
}

func newMigrateCommand() *ffcli.Command {
	cmd := "migrate"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &migrate.Config{}
	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.DBType, "db-type", "sqlite", "db type (sqlite, mysql, postgres)")
	fs.StringVar(&cfg.DBConn, "db-conn", "lyricvid.db", "path for sqlite, dsn for mysql or postgres")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("lyricvid %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  "run database migrations",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return migrate.Run(ctx, cfg)
		},
	}
}

func newCreditsCommand() *ffcli.Command {
	cmd := "credits"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &credits.Config{}
	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	apiFlags(fs, &cfg.Proxy, &cfg.APIKey, &cfg.BaseURL)

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("lyricvid %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  "print remaining api credits",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return credits.Run(ctx, cfg)
		},
	}
}

func newGenerateCommand() *ffcli.Command {
	cmd := "generate"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &generate.Config{}
	commonFlags(fs, &cfg.Config)
	fs.StringVar(&cfg.Input, "input", "", "csv or json file with songs (fields: name,title,lyrics,style,model,instrumental)")
	fs.IntVar(&cfg.Concurrency, "concurrency", 1, "number of concurrent generations")
	fs.BoolVar(&cfg.Video, "video", false, "render the video of every generated track")
	fs.StringVar(&cfg.Name, "name", "", "base name of the generated files")
	fs.StringVar(&cfg.Title, "title", "", "song title")
	fs.StringVar(&cfg.Lyrics, "lyrics", "", "song lyrics")
	fs.StringVar(&cfg.LyricsFile, "lyrics-file", "", "file with the song lyrics")
	fs.StringVar(&cfg.MusicStyle, "style", "", "music style")
	fs.StringVar(&cfg.Model, "model", suno.DefaultModel, "music model")
	fs.BoolVar(&cfg.Instrumental, "instrumental", false, "instrumental song")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("lyricvid %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  "generate songs",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return generate.Run(ctx, cfg)
		},
	}
}

func newDownloadCommand() *ffcli.Command {
	cmd := "download"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &download.Config{}
	commonFlags(fs, &cfg.Config)

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("lyricvid %s [flags] <track...>", cmd),
		Options:    options(),
		ShortHelp:  "download again the audio and cover of tracks",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			cfg.Tracks = args
			return download.Run(ctx, cfg)
		},
	}
}

func newDeleteCommand() *ffcli.Command {
	cmd := "delete"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &remove.Config{}
	commonFlags(fs, &cfg.Config)

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("lyricvid %s [flags] <track...>", cmd),
		Options:    options(),
		ShortHelp:  "delete tracks with their media and timing data",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			cfg.Tracks = args
			return remove.Run(ctx, cfg)
		},
	}
}

func newAlignCommand() *ffcli.Command {
	cmd := "align"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &align.Config{}
	commonFlags(fs, &cfg.Config)
	fs.StringVar(&cfg.Format, "format", "text", "output format (text, json, yaml, csv)")
	fs.StringVar(&cfg.File, "file", "", "output file (default stdout)")
	fs.BoolVar(&cfg.Refresh, "refresh", false, "fetch timestamps again ignoring the cache")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("lyricvid %s [flags] <track>", cmd),
		Options:    options(),
		ShortHelp:  "print the time interval of every lyric line",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return errors.New("align: one track id required")
			}
			cfg.Track = args[0]
			return align.Run(ctx, cfg)
		},
	}
}

func newVideoCommand() *ffcli.Command {
	cmd := "video"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &video.Config{}
	commonFlags(fs, &cfg.Config)
	fs.BoolVar(&cfg.All, "all", false, "render every stored track")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("lyricvid %s [flags] <track...>", cmd),
		Options:    options(),
		ShortHelp:  "render lyric videos",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			cfg.Tracks = args
			return video.Run(ctx, cfg)
		},
	}
}

func newRemoteVideoCommand() *ffcli.Command {
	cmd := "remote-video"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &video.Config{}
	commonFlags(fs, &cfg.Config)
	fs.BoolVar(&cfg.All, "all", false, "request videos of every stored track")
	fs.StringVar(&cfg.Author, "author", "", "author shown in the video")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("lyricvid %s [flags] <track...>", cmd),
		Options:    options(),
		ShortHelp:  "request videos from the music provider",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			cfg.Tracks = args
			return video.RunRemote(ctx, cfg)
		},
	}
}

func newServeCommand() *ffcli.Command {
	cmd := "serve"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &web.Config{}
	commonFlags(fs, &cfg.Config)
	fs.StringVar(&cfg.Addr, "addr", "localhost:5000", "address to listen on")
	fsMapVar(fs, &cfg.Credentials, "creds", nil, "credentials to use (semicolon separated) Example: user1:pass1;user2:pass2")
	fs.BoolVar(&cfg.Open, "open", false, "open the browser")
	fs.StringVar(&cfg.Author, "author", "", "author shown in provider videos")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("lyricvid %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  "serve the web ui",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return web.Serve(ctx, cfg)
		},
	}
}

type mapValue struct {
	v *map[string]string
}

func (m *mapValue) String() string {
	if m.v == nil {
		return ""
	}
	return fmt.Sprintf("%v", map[string]string(*m.v))
}

func (m *mapValue) Set(value string) error {
	if m.v == nil {
		return errors.New("nil map reference")
	}
	pairs := strings.Split(value, ";")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid map entry: %s", pair)
		}
		(*m.v)[parts[0]] = parts[1]
	}
	return nil
}

func fsMapVar(fs *flag.FlagSet, p *map[string]string, name string, value map[string]string, usage string) {
	if value == nil {
		value = make(map[string]string)
	}
	*p = value
	fs.Var(&mapValue{p}, name, usage)
}

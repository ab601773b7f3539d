package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/spf13/pflag"

	"github.com/sevketarisu/quic-streaming/pkg/logging"
)

// ClientConfig is the immutable, fully-resolved configuration for one run,
// layered from defaults, environment variables, and command-line flags.
type ClientConfig struct {
	MPD          string `json:"mpd"`
	Playback     string `json:"playback"`
	SegmentLimit int    `json:"segmentlimit"`
	Download     bool   `json:"download"`
	Quic         bool   `json:"quic"`
	Curl         bool   `json:"curl"`
	Host         string `json:"host"`
	Jump         bool   `json:"jump"`
	JumpScenario string `json:"jumpscenario"`
	List         bool   `json:"list"`
	OutDir       string `json:"outdir"`
	AutoOutDir   bool   `json:"auto"`
	ReportPath   string `json:"report"`
	MetricsAddr  string `json:"metricsaddr"`
	LogFormat    string `json:"logformat"`
	LogLevel     string `json:"loglevel"`
	CurlBinary   string `json:"curlbinary"`
	QuicBinary   string `json:"quicbinary"`
}

// DefaultConfig is a struct of sane defaults loaded into koanf before flags
// or env vars are applied.
var DefaultConfig = ClientConfig{
	Playback:    "basic",
	OutDir:      "./downloads",
	MetricsAddr: "",
	LogFormat:   "text",
	LogLevel:    "INFO",
	CurlBinary:  "curl_client",
	QuicBinary:  "quic_client",
}

// LoadConfig layers DefaultConfig, then CLI flags, then environment
// variables prefixed DASHCLIENT_, into a ClientConfig, following
// livesim2/app/config.go's koanf provider order.
func LoadConfig(args []string) (*ClientConfig, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(DefaultConfig, "json"), nil); err != nil {
		return nil, err
	}

	f := pflag.NewFlagSet("dashclient", pflag.ContinueOnError)
	f.Usage = func() {
		fmt.Fprintf(os.Stderr, "Run as dashclient --MPD <url> [options]:\n")
		f.PrintDefaults()
	}
	f.String("MPD", k.String("mpd"), "MPD URL to play (required)")
	f.String("PLAYBACK", k.String("playback"), "adaptation policy [basic|sara|netflix]")
	f.Int("SEGMENT_LIMIT", k.Int("segmentlimit"), "stop after this many segments (0 = unbounded)")
	f.Bool("DOWNLOAD", k.Bool("download"), "retain downloaded segments instead of deleting the run directory")
	f.Bool("QUIC", k.Bool("quic"), "use the QUIC helper-process transport")
	f.Bool("CURL", k.Bool("curl"), "use the generic HTTP helper-process transport")
	f.String("HOST", k.String("host"), "origin authority used for QUIC URL rewriting")
	f.Bool("JUMP", k.Bool("jump"), "enable the jump scenario given by --JUMP_SCENARIO")
	f.String("JUMP_SCENARIO", k.String("jumpscenario"), `seek schedule, e.g. "40->10,100->150"`)
	f.Bool("LIST", k.Bool("list"), "print the available bitrates and exit")
	f.String("outdir", k.String("outdir"), "run directory for downloaded segments")
	f.Bool("auto", k.Bool("auto"), "derive the run directory from the MPD URL path")
	f.String("report", k.String("report"), "path to write the per-run JSON report (empty disables)")
	f.String("metricsaddr", k.String("metricsaddr"), "bind address for the Prometheus/loglevel server (empty disables)")
	lf := strings.Join(logging.LogFormats, ", ")
	f.String("logformat", k.String("logformat"), fmt.Sprintf("log format [%s]", lf))
	ll := strings.Join(logging.LogLevels, ", ")
	f.String("loglevel", k.String("loglevel"), fmt.Sprintf("log level [%s]", ll))
	f.String("curlbinary", k.String("curlbinary"), "CURL helper binary to run (also the process-name substring matched when killing it)")
	f.String("quicbinary", k.String("quicbinary"), "QUIC helper binary to run (processes are killed by the name quic_client)")

	if err := f.Parse(args[1:]); err != nil {
		return nil, fmt.Errorf("command line parse: %w", err)
	}

	// The CLI flags are SHOUT_CASE per spec.md §6 (--SEGMENT_LIMIT,
	// --JUMP_SCENARIO, ...) but ClientConfig's koanf/json keys are the
	// all-lowercase, no-underscore form the struct tags declare
	// (segmentlimit, jumpscenario, ...). posflag.Provider alone stores
	// values under the verbatim flag name, and mapstructure's case-insensitive
	// match does not also ignore underscores, so every multi-word flag would
	// silently fail to reach the config. normalizeKey folds both sides onto
	// the same key so every flag (and every DASHCLIENT_ env var) lands on its
	// ClientConfig field.
	if err := k.Load(posflag.ProviderWithValue(f, ".", k, func(key string, value string) (string, interface{}) {
		return normalizeKey(key), value
	}), nil); err != nil {
		return nil, fmt.Errorf("parsing cli: %w", err)
	}

	if err := k.Load(env.Provider("DASHCLIENT_", ".", func(s string) string {
		return normalizeKey(strings.TrimPrefix(s, "DASHCLIENT_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg ClientConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.MPD == "" {
		return nil, fmt.Errorf("--MPD is required")
	}
	return &cfg, nil
}

// normalizeKey folds a SHOUT_CASE or mixed-case flag/env key onto the
// lowercase, underscore-free form used by ClientConfig's json tags
// (SEGMENT_LIMIT -> segmentlimit, JUMP_SCENARIO -> jumpscenario).
func normalizeKey(key string) string {
	return strings.ToLower(strings.ReplaceAll(key, "_", ""))
}


package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"fswatch/internal/cli"
	"fswatch/internal/logging"
	"fswatch/internal/runner"
)

// Config is the fully merged runtime configuration. Precedence per
// setting is defaults, then the config file, then FSWATCH_* environment
// variables, then CLI flags; Sources records which layer won.
type Config struct {
	Targets     []string
	Command     []string
	Exclude     string
	Debounce    time.Duration
	Grace       time.Duration
	Policy      runner.Policy
	PTY         bool
	InitialRun  bool
	ReloadAddr  string
	LogLevel    logging.Level
	ConfigFile  string
	ShowVersion bool
	Sources     map[string]configSource
}

type configSource string

const (
	sourceDefault configSource = "default"
	sourceFile    configSource = "file"
	sourceEnv     configSource = "env"
	sourceFlag    configSource = "flag"
	sourceArgs    configSource = "args"
)

type configDefaults struct {
	Debounce   time.Duration
	Grace      time.Duration
	Policy     runner.Policy
	LogLevel   logging.Level
	ReloadAddr string
}

type flagValues struct {
	ConfigFile string
	Exclude    string
	Debounce   time.Duration
	Grace      time.Duration
	Policy     string
	PTY        bool
	InitialRun bool
	ReloadAddr string
	LogLevel   string
	Verbose    bool
	Quiet      bool
	Help       bool
	Version    bool
	Targets    []string
	Set        map[string]bool
}

// Load builds the configuration from CLI arguments. Everything after
// the first "--" is the command to run; what precedes it is flags and
// watch targets.
func Load(args []string) (Config, error) {
	flagArgs, commandArgs := splitCommand(args)

	defaults := defaultConfigValues()
	flags, err := parseFlags(flagArgs, defaults)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Sources:     make(map[string]configSource),
		ShowVersion: flags.Version,
	}

	configFile := ""
	configFileSource := sourceDefault
	if rawPath := strings.TrimSpace(os.Getenv("FSWATCH_CONFIG")); rawPath != "" {
		configFile = rawPath
		configFileSource = sourceEnv
	}
	if flags.Set["config"] {
		trimmed := strings.TrimSpace(flags.ConfigFile)
		if trimmed == "" {
			return Config{}, fmt.Errorf("invalid --config: value cannot be empty")
		}
		configFile = trimmed
		configFileSource = sourceFlag
	}
	cfg.ConfigFile = configFile
	cfg.Sources["config"] = configFileSource

	file := fileConfig{}
	if configFile != "" {
		loaded, err := loadFile(configFile)
		if err != nil {
			return Config{}, err
		}
		file = loaded
	}

	exclude := ""
	excludeSource := sourceDefault
	if file.Exclude != nil {
		exclude = *file.Exclude
		excludeSource = sourceFile
	}
	if rawExclude := os.Getenv("FSWATCH_EXCLUDE"); rawExclude != "" {
		exclude = rawExclude
		excludeSource = sourceEnv
	}
	if flags.Set["exclude"] {
		exclude = flags.Exclude
		excludeSource = sourceFlag
	}
	cfg.Exclude = exclude
	cfg.Sources["exclude"] = excludeSource

	debounce := defaults.Debounce
	debounceSource := sourceDefault
	if file.Debounce != nil {
		parsed, err := parseFileDuration("debounce", *file.Debounce)
		if err != nil {
			return Config{}, err
		}
		debounce = parsed
		debounceSource = sourceFile
	}
	if rawDebounce := strings.TrimSpace(os.Getenv("FSWATCH_DEBOUNCE")); rawDebounce != "" {
		if parsed, err := time.ParseDuration(rawDebounce); err == nil && parsed >= 0 {
			debounce = parsed
			debounceSource = sourceEnv
		}
	}
	if flags.Set["debounce"] {
		if flags.Debounce < 0 {
			return Config{}, fmt.Errorf("invalid --debounce: must be >= 0")
		}
		debounce = flags.Debounce
		debounceSource = sourceFlag
	}
	cfg.Debounce = debounce
	cfg.Sources["debounce"] = debounceSource

	grace := defaults.Grace
	graceSource := sourceDefault
	if file.KillTimeout != nil {
		parsed, err := parseFileDuration("kill_timeout", *file.KillTimeout)
		if err != nil {
			return Config{}, err
		}
		grace = parsed
		graceSource = sourceFile
	}
	if rawGrace := strings.TrimSpace(os.Getenv("FSWATCH_KILL_TIMEOUT")); rawGrace != "" {
		if parsed, err := time.ParseDuration(rawGrace); err == nil && parsed > 0 {
			grace = parsed
			graceSource = sourceEnv
		}
	}
	if flags.Set["kill-timeout"] {
		if flags.Grace <= 0 {
			return Config{}, fmt.Errorf("invalid --kill-timeout: must be > 0")
		}
		grace = flags.Grace
		graceSource = sourceFlag
	}
	cfg.Grace = grace
	cfg.Sources["kill-timeout"] = graceSource

	policy := defaults.Policy
	policySource := sourceDefault
	if file.OnBusy != nil {
		parsed, ok := runner.ParsePolicy(*file.OnBusy)
		if !ok {
			return Config{}, fmt.Errorf("config file: invalid on_busy %q (queue or restart)", *file.OnBusy)
		}
		policy = parsed
		policySource = sourceFile
	}
	if rawPolicy := strings.TrimSpace(os.Getenv("FSWATCH_ON_BUSY")); rawPolicy != "" {
		if parsed, ok := runner.ParsePolicy(rawPolicy); ok {
			policy = parsed
			policySource = sourceEnv
		}
	}
	if flags.Set["on-busy"] {
		parsed, ok := runner.ParsePolicy(flags.Policy)
		if !ok {
			return Config{}, fmt.Errorf("invalid --on-busy: %q (queue or restart)", flags.Policy)
		}
		policy = parsed
		policySource = sourceFlag
	}
	cfg.Policy = policy
	cfg.Sources["on-busy"] = policySource

	pty := false
	ptySource := sourceDefault
	if file.PTY != nil {
		pty = *file.PTY
		ptySource = sourceFile
	}
	if flags.Set["pty"] {
		pty = flags.PTY
		ptySource = sourceFlag
	}
	cfg.PTY = pty
	cfg.Sources["pty"] = ptySource

	initialRun := false
	initialRunSource := sourceDefault
	if file.Init != nil {
		initialRun = *file.Init
		initialRunSource = sourceFile
	}
	if flags.Set["init"] {
		initialRun = flags.InitialRun
		initialRunSource = sourceFlag
	}
	cfg.InitialRun = initialRun
	cfg.Sources["init"] = initialRunSource

	reloadAddr := defaults.ReloadAddr
	reloadAddrSource := sourceDefault
	if file.ReloadAddr != nil {
		reloadAddr = strings.TrimSpace(*file.ReloadAddr)
		reloadAddrSource = sourceFile
	}
	if rawAddr := strings.TrimSpace(os.Getenv("FSWATCH_RELOAD_ADDR")); rawAddr != "" {
		reloadAddr = rawAddr
		reloadAddrSource = sourceEnv
	}
	if flags.Set["reload-addr"] {
		reloadAddr = strings.TrimSpace(flags.ReloadAddr)
		reloadAddrSource = sourceFlag
	}
	cfg.ReloadAddr = reloadAddr
	cfg.Sources["reload-addr"] = reloadAddrSource

	logLevel := defaults.LogLevel
	logLevelSource := sourceDefault
	if file.LogLevel != nil {
		parsed, ok := logging.ParseLevel(*file.LogLevel)
		if !ok {
			return Config{}, fmt.Errorf("config file: invalid log_level %q", *file.LogLevel)
		}
		logLevel = parsed
		logLevelSource = sourceFile
	}
	if rawLevel := strings.TrimSpace(os.Getenv("FSWATCH_LOG_LEVEL")); rawLevel != "" {
		if parsed, ok := logging.ParseLevel(rawLevel); ok {
			logLevel = parsed
			logLevelSource = sourceEnv
		}
	}
	if flags.Set["log-level"] {
		parsed, ok := logging.ParseLevel(flags.LogLevel)
		if !ok {
			return Config{}, fmt.Errorf("invalid --log-level: %q", flags.LogLevel)
		}
		logLevel = parsed
		logLevelSource = sourceFlag
	} else if flags.Verbose {
		logLevel = logging.LevelDebug
		logLevelSource = sourceFlag
	} else if flags.Quiet {
		logLevel = logging.LevelWarning
		logLevelSource = sourceFlag
	}
	cfg.LogLevel = logLevel
	cfg.Sources["log-level"] = logLevelSource

	targets := flags.Targets
	targetsSource := sourceArgs
	if len(targets) == 0 && len(file.Targets) > 0 {
		targets = file.Targets
		targetsSource = sourceFile
	}
	cfg.Targets = targets
	cfg.Sources["targets"] = targetsSource

	command := commandArgs
	commandSource := sourceArgs
	if len(command) == 0 && len(file.Command.argv) > 0 {
		command = file.Command.argv
		commandSource = sourceFile
	}
	cfg.Command = command
	cfg.Sources["command"] = commandSource

	if cfg.ShowVersion {
		return cfg, nil
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// splitCommand separates the command argv from the flag and target
// arguments at the first "--".
func splitCommand(args []string) ([]string, []string) {
	for index, arg := range args {
		if arg == "--" {
			return args[:index], args[index+1:]
		}
	}
	return args, nil
}

func validate(cfg Config) error {
	if len(cfg.Targets) == 0 {
		return fmt.Errorf("at least one watch path is required")
	}
	if len(cfg.Command) == 0 {
		return fmt.Errorf("no command given; put it after \"--\" or in the config file")
	}
	if strings.TrimSpace(cfg.Command[0]) == "" {
		return fmt.Errorf("command cannot be empty")
	}
	if cfg.Exclude != "" {
		if _, err := regexp.Compile(cfg.Exclude); err != nil {
			return fmt.Errorf("invalid exclude pattern: %w", err)
		}
	}
	return nil
}

func defaultConfigValues() configDefaults {
	return configDefaults{
		Debounce:   500 * time.Millisecond,
		Grace:      5 * time.Second,
		Policy:     runner.PolicySerialize,
		LogLevel:   logging.LevelInfo,
		ReloadAddr: "",
	}
}

func parseFlags(args []string, defaults configDefaults) (flagValues, error) {
	if args == nil {
		args = []string{}
	}
	fs := flag.NewFlagSet("fswatch", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFile := fs.String("config", "", "YAML config file")
	exclude := fs.String("exclude", "", "Regex for paths to ignore")
	debounce := fs.Duration("debounce", defaults.Debounce, "Quiet interval before a run")
	grace := fs.Duration("kill-timeout", defaults.Grace, "Grace period before SIGKILL")
	policy := fs.String("on-busy", string(defaults.Policy), "Settle policy while a run is active")
	pty := fs.Bool("pty", false, "Run the command under a pseudo-terminal")
	initialRun := fs.Bool("init", false, "Run the command once on startup")
	reloadAddr := fs.String("reload-addr", defaults.ReloadAddr, "Live-reload server address")
	logLevel := fs.String("log-level", string(defaults.LogLevel), "Log level")
	verbose := fs.Bool("verbose", false, "Enable verbose logging")
	quiet := fs.Bool("quiet", false, "Reduce logging to warnings")
	helpVersion := cli.AddHelpVersionFlags(fs, "", "")

	fs.Usage = func() {
		printHelp(fs.Output(), defaults)
	}

	if err := fs.Parse(args); err != nil {
		return flagValues{}, err
	}

	set := make(map[string]bool)
	fs.Visit(func(flagValue *flag.Flag) {
		set[flagValue.Name] = true
	})

	flags := flagValues{
		ConfigFile: *configFile,
		Exclude:    *exclude,
		Debounce:   *debounce,
		Grace:      *grace,
		Policy:     *policy,
		PTY:        *pty,
		InitialRun: *initialRun,
		ReloadAddr: *reloadAddr,
		LogLevel:   *logLevel,
		Verbose:    *verbose,
		Quiet:      *quiet,
		Help:       helpVersion.Help,
		Version:    helpVersion.Version,
		Targets:    fs.Args(),
		Set:        set,
	}

	if flags.Help {
		set["help"] = true
		fs.SetOutput(os.Stdout)
		fs.Usage()
		return flags, flag.ErrHelp
	}

	if flags.Version {
		set["version"] = true
	}

	return flags, nil
}

func printHelp(out io.Writer, defaults configDefaults) {
	fmt.Fprintln(out, "Usage: fswatch [options] PATH... -- COMMAND [ARG...]")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Watch files or directories and run a command when they change")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")

	cli.WriteOptionGroup(out, "Watching", []cli.Option{
		{
			Name: "--exclude REGEX",
			Desc: "Ignore paths matching REGEX (env: FSWATCH_EXCLUDE, default: none)",
		},
		{
			Name: "--debounce DUR",
			Desc: fmt.Sprintf("Quiet interval before a run (env: FSWATCH_DEBOUNCE, default: %s)", defaults.Debounce),
		},
	})

	cli.WriteOptionGroup(out, "Execution", []cli.Option{
		{
			Name: "--on-busy POLICY",
			Desc: "queue or restart when a change settles mid-run (env: FSWATCH_ON_BUSY, default: queue)",
		},
		{
			Name: "--kill-timeout DUR",
			Desc: fmt.Sprintf("Grace period before SIGKILL (env: FSWATCH_KILL_TIMEOUT, default: %s)", defaults.Grace),
		},
		{
			Name: "--pty",
			Desc: "Run the command under a pseudo-terminal (default: false)",
		},
		{
			Name: "--init",
			Desc: "Run the command once on startup (default: false)",
		},
	})

	cli.WriteOptionGroup(out, "Server", []cli.Option{
		{
			Name: "--reload-addr ADDR",
			Desc: "Serve live-reload and status on ADDR (env: FSWATCH_RELOAD_ADDR, default: disabled)",
		},
	})

	cli.WriteOptionGroup(out, "Common", []cli.Option{
		{
			Name: "--config FILE",
			Desc: "YAML config file (env: FSWATCH_CONFIG)",
		},
		{
			Name: "--log-level LEVEL",
			Desc: fmt.Sprintf("debug, info, warning or error (env: FSWATCH_LOG_LEVEL, default: %s)", defaults.LogLevel),
		},
		{
			Name: "--verbose",
			Desc: "Enable verbose logging (default: false)",
		},
		{
			Name: "--quiet",
			Desc: "Reduce logging to warnings (default: false)",
		},
		{
			Name: "--help",
			Desc: "Show this help message",
		},
		{
			Name: "--version",
			Desc: "Print version and exit",
		},
	})

	fmt.Fprintln(out, "Examples:")
	fmt.Fprintln(out, "  fswatch src/ -- make build")
	fmt.Fprintln(out, "  fswatch --exclude '\\.swp$' --debounce 200ms . -- go test ./...")
	fmt.Fprintln(out, "  fswatch --config fswatch.yaml")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Environment variables override defaults; CLI flags override environment variables.")
}

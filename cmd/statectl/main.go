// Command statectl inspects and edits persisted state envelopes on any
// configured storage backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/coachpo/statekit/config"
	"github.com/coachpo/statekit/lib/telemetry"
	"github.com/coachpo/statekit/storage"
	"github.com/coachpo/statekit/storage/factory"
)

const defaultTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "Path to a YAML settings file")
		key        = flag.String("key", "", "Override the envelope key from configuration")
		version    = flag.Int("version", -1, "Override the envelope version written by set")
		timeout    = flag.Duration("timeout", defaultTimeout, "Maximum time to wait for the backend")
	)
	flag.Parse()

	settings, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	settings = config.FromEnv(settings)
	if strings.TrimSpace(*key) != "" {
		settings.Persistence.Key = strings.TrimSpace(*key)
	}
	if *version >= 0 {
		settings.Persistence.Version = *version
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	args := flag.Args()
	if len(args) == 0 {
		return errors.New("command required (get|set|delete|version)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	_, shutdownTelemetry, err := telemetry.Init(ctx, settings.Telemetry)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	raw, closer, err := factory.Open(ctx, settings.Storage)
	if err != nil {
		return err
	}
	defer closer.Close()
	codec := storage.NewCodec(raw)

	switch args[0] {
	case "get":
		return printEnvelope(ctx, codec, settings.Persistence.Key)
	case "set":
		return writeEnvelope(ctx, codec, settings.Persistence, args[1:])
	case "delete":
		return codec.Delete(ctx, settings.Persistence.Key)
	case "version":
		return printVersion(ctx, codec, settings.Persistence.Key)
	default:
		return fmt.Errorf("unknown command %q (expected get, set, delete, or version)", args[0])
	}
}

func printEnvelope(ctx context.Context, codec *storage.Codec, key string) error {
	env, err := codec.Load(ctx, key)
	if err != nil {
		return err
	}
	if env == nil {
		return fmt.Errorf("no envelope stored under %q", key)
	}
	out, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("render envelope: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func printVersion(ctx context.Context, codec *storage.Codec, key string) error {
	env, err := codec.Load(ctx, key)
	if err != nil {
		return err
	}
	if env == nil {
		return fmt.Errorf("no envelope stored under %q", key)
	}
	fmt.Println(env.Version)
	return nil
}

// writeEnvelope stores the state payload given as the first argument, or read
// from stdin when the argument is absent or "-".
func writeEnvelope(ctx context.Context, codec *storage.Codec, p config.PersistenceSettings, args []string) error {
	var payload []byte
	if len(args) > 0 && args[0] != "-" {
		payload = []byte(args[0])
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read state from stdin: %w", err)
		}
		payload = data
	}

	var state map[string]any
	if err := json.Unmarshal(payload, &state); err != nil {
		return fmt.Errorf("state must be a JSON object: %w", err)
	}
	return codec.Store(ctx, p.Key, state, p.Version)
}

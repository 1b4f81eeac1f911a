package cmd

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/achilleasa/accel/bvh"
	"github.com/achilleasa/accel/registry"
	"github.com/achilleasa/accel/types"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli"
)

// Config holds the tunables that can be loaded from a TOML file. A sample
// file looks like:
//
//	log_level = "info"
//
//	[registry]
//	continuous_refit = true
//
//	[registry.build]
//	leaf_triangles = 2
//	split = "midpoint"
//
//	[sweep]
//	recursive_steps = 20
type Config struct {
	LogLevel string            `toml:"log_level"`
	Registry registry.Options  `toml:"registry"`
	Sweep    bvh.SweepSettings `toml:"sweep"`
}

// DefaultConfig returns the configuration used when no config file is given.
func DefaultConfig() Config {
	return Config{
		LogLevel: "notice",
		Registry: registry.Options{Build: bvh.DefaultOptions()},
		Sweep:    bvh.DefaultSweepSettings(),
	}
}

// LoadConfig layers the contents of a TOML file over the defaults. Unknown
// keys are reported as errors.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}

	return decodeConfig(data, cfg)
}

func decodeConfig(data []byte, cfg Config) (Config, error) {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}

	if _, err := cfg.Registry.Build.Strategy(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Load the config file selected by the global flags, apply flag overrides
// and set up logging.
func setup(ctx *cli.Context) (Config, error) {
	cfg, err := LoadConfig(ctx.GlobalString("config"))
	if err != nil {
		return cfg, err
	}

	if ctx.GlobalIsSet("split") {
		cfg.Registry.Build.Split = ctx.GlobalString("split")
		if _, err = cfg.Registry.Build.Strategy(); err != nil {
			return cfg, err
		}
	}
	if ctx.GlobalIsSet("leaf-triangles") {
		cfg.Registry.Build.LeafTriangles = ctx.GlobalInt("leaf-triangles")
	}
	if ctx.GlobalIsSet("workers") {
		cfg.Registry.Build.Workers = ctx.GlobalInt("workers")
	}

	return cfg, setupLogging(ctx, cfg)
}

// Parse a vector argument in "x,y,z" format.
func parseVec3(value string) (types.Vec3, error) {
	var v types.Vec3

	tokens := strings.Split(value, ",")
	if len(tokens) != 3 {
		return v, fmt.Errorf(`expected vector in "x,y,z" format; got %q`, value)
	}

	for index, token := range tokens {
		coord, err := strconv.ParseFloat(strings.TrimSpace(token), 32)
		if err != nil {
			return v, fmt.Errorf("could not parse component %d of vector %q: %w", index, value, err)
		}
		v[index] = float32(coord)
	}
	return v, nil
}

// Parse a vector flag of the current command.
func vec3Flag(ctx *cli.Context, name string) (types.Vec3, error) {
	if !ctx.IsSet(name) {
		return types.Vec3{}, fmt.Errorf("missing required flag --%s", name)
	}

	v, err := parseVec3(ctx.String(name))
	if err != nil {
		return v, fmt.Errorf("--%s: %w", name, err)
	}
	return v, nil
}

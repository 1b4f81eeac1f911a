package main

import (
	"fmt"
	"os"

	"github.com/achilleasa/accel/cmd"
	"github.com/urfave/cli"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "accel"
	app.Usage = "build and query two-level bounding volume hierarchies"
	app.Version = "0.0.1"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
		cli.StringFlag{
			Name:  "config, c",
			Usage: "load tunables from a TOML file",
		},
		cli.StringFlag{
			Name:  "split",
			Usage: `mesh hierarchy split policy ("sah" or "midpoint")`,
		},
		cli.IntFlag{
			Name:  "leaf-triangles",
			Usage: "max number of triangles per mesh hierarchy leaf",
		},
		cli.IntFlag{
			Name:  "workers",
			Usage: "max number of meshes built or refitted concurrently",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "compile",
			Usage: "compile text scene representation into a binary compressed format",
			Description: `
Parse a scene definition from a wavefront obj file, build a hierarchy for each
mesh and a hierarchy over the mesh instances and package them in a flat
layout.

The flattened scene is then written to a zip archive which can be supplied
as an argument to the other commands.`,
			ArgsUsage: "scene_file1.obj scene_file2.obj ...",
			Action:    cmd.CompileScene,
		},
		{
			Name:      "info",
			Usage:     "display scene and hierarchy statistics",
			ArgsUsage: "scene_file.obj|scene_file.zip",
			Action:    cmd.ShowSceneInfo,
		},
		{
			Name:      "raycast",
			Usage:     "cast a ray into the scene",
			ArgsUsage: "scene_file.obj|scene_file.zip",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "origin",
					Usage: "ray origin (x,y,z)",
				},
				cli.StringFlag{
					Name:  "dir",
					Usage: "ray direction (x,y,z)",
				},
				cli.Float64Flag{
					Name:  "tmax",
					Usage: "max hit distance; unbounded if not positive",
				},
				cli.BoolFlag{
					Name:  "any",
					Usage: "only check whether the ray is occluded",
				},
			},
			Action: cmd.Raycast,
		},
		{
			Name:      "sweep",
			Usage:     "sweep a sphere through the scene",
			ArgsUsage: "scene_file.obj|scene_file.zip",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "from",
					Usage: "initial sphere center (x,y,z)",
				},
				cli.StringFlag{
					Name:  "to",
					Usage: "target sphere center (x,y,z)",
				},
				cli.Float64Flag{
					Name:  "radius",
					Value: 0.5,
					Usage: "sphere radius",
				},
			},
			Action: cmd.Sweep,
		},
		{
			Name:      "query-box",
			Usage:     "list triangles overlapping a box",
			ArgsUsage: "scene_file.obj|scene_file.zip",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "min",
					Usage: "box min corner (x,y,z)",
				},
				cli.StringFlag{
					Name:  "max",
					Usage: "box max corner (x,y,z)",
				},
				cli.BoolFlag{
					Name:  "exact",
					Usage: "drop triangles that only overlap the box in mesh local space",
				},
			},
			Action: cmd.QueryBox,
		},
		{
			Name:      "bench",
			Usage:     "benchmark ray queries and refits",
			ArgsUsage: "scene_file.obj|scene_file.zip",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "rays",
					Value: 100000,
					Usage: "number of random rays to trace",
				},
				cli.Int64Flag{
					Name:  "seed",
					Value: 1,
					Usage: "random ray generator seed",
				},
				cli.IntFlag{
					Name:  "refits",
					Value: 0,
					Usage: "number of vertex animation and refit iterations",
				},
			},
			Action: cmd.Bench,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/achilleasa/accel/asset/scene"
	"github.com/achilleasa/accel/asset/scene/reader"
	"github.com/achilleasa/accel/asset/scene/writer"
	"github.com/achilleasa/accel/bvh"
	"github.com/achilleasa/accel/registry"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// Compile scene to binary format.
func CompileScene(ctx *cli.Context) error {
	cfg, err := setup(ctx)
	if err != nil {
		return err
	}

	if ctx.NArg() == 0 {
		return errors.New("missing scene file argument")
	}

	for idx := 0; idx < ctx.NArg(); idx++ {
		sceneFile := ctx.Args().Get(idx)
		if strings.ToLower(filepath.Ext(sceneFile)) != ".obj" {
			logger.Warningf("skipping unsupported file %s", sceneFile)
			continue
		}

		logger.Noticef("parsing and compiling scene: %s", sceneFile)
		reg, err := reader.ReadScene(context.Background(), sceneFile, cfg.Registry)
		if err != nil {
			return err
		}

		sc, err := flatten(reg)
		if err != nil {
			return err
		}

		// Display compiled scene info
		logger.Noticef("scene information:\n%s", sc.Stats())

		zipFile := strings.TrimSuffix(sceneFile, filepath.Ext(sceneFile)) + ".zip"
		err = writer.WriteScene(sc, zipFile)
		if err != nil {
			return err
		}
	}

	return nil
}

// Display scene info.
func ShowSceneInfo(ctx *cli.Context) error {
	cfg, err := setup(ctx)
	if err != nil {
		return err
	}

	if ctx.NArg() != 1 {
		return errors.New("missing scene file argument")
	}

	reg, err := loadScene(ctx, cfg)
	if err != nil {
		return err
	}

	sc, err := flatten(reg)
	if err != nil {
		return err
	}

	// Display scene info
	logger.Noticef("scene information:\n%s", sc.Stats())

	var hierarchyInfo string
	reg.View(func(tlas *bvh.Tlas, _ []*bvh.Geometry) {
		hierarchyInfo = hierarchyStats(tlas)
	})
	logger.Noticef("hierarchy information:\n%s", hierarchyInfo)
	return nil
}

// Load the scene passed as the first command argument.
func loadScene(ctx *cli.Context, cfg Config) (*registry.Registry, error) {
	sceneFile := ctx.Args().First()
	if sceneFile == "" {
		return nil, errors.New("missing scene file argument")
	}
	return reader.ReadScene(context.Background(), sceneFile, cfg.Registry)
}

// Copy the registry hierarchies into the flat layout.
func flatten(reg *registry.Registry) (*scene.Scene, error) {
	var (
		sc  *scene.Scene
		err error
	)
	reg.View(func(tlas *bvh.Tlas, geoms []*bvh.Geometry) {
		sc, err = scene.Flatten(tlas, geoms)
	})
	return sc, err
}

// Build a table with the tree statistics of each mesh hierarchy and the
// instance hierarchy.
func hierarchyStats(tlas *bvh.Tlas) string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Hierarchy", "Primitives", "Nodes", "Leaves", "Depth", "Max leaf size", "SAH cost"})

	appendStats := func(name string, stats bvh.TreeStats) {
		table.Append([]string{
			name,
			strconv.Itoa(stats.Primitives),
			strconv.Itoa(stats.Nodes),
			strconv.Itoa(stats.Leaves),
			strconv.Itoa(stats.MaxDepth),
			strconv.Itoa(stats.MaxLeafSize),
			fmt.Sprintf("%.2f", stats.SAHCost),
		})
	}

	for _, blas := range tlas.Blases {
		appendStats(blas.Name, blas.Stats())
	}
	appendStats("(instances)", tlas.Stats())

	table.Render()
	return buf.String()
}

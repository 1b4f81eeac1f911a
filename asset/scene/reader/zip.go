package reader

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"time"

	"github.com/achilleasa/accel/asset"
	"github.com/achilleasa/accel/asset/scene"
	"github.com/achilleasa/accel/bvh"
	"github.com/achilleasa/accel/log"
	"github.com/achilleasa/accel/registry"
)

type zipSceneReader struct {
	logger log.Logger
}

// Create a new zip scene reader
func newZipSceneReader() *zipSceneReader {
	return &zipSceneReader{
		logger: log.New("zip reader"),
	}
}

// Read a compressed scene and restore its hierarchies.
func (p *zipSceneReader) Read(_ context.Context, sceneRes *asset.Resource, opts registry.Options) (*registry.Registry, error) {
	sc, err := p.Decode(sceneRes)
	if err != nil {
		return nil, err
	}

	tlas, geoms, err := sc.Unflatten(opts.Build)
	if err != nil {
		return nil, err
	}
	return registry.NewFromTlas(geoms, tlas, opts)
}

// Decode the flat scene stored in a zip archive.
func (p *zipSceneReader) Decode(sceneRes *asset.Resource) (*scene.Scene, error) {
	p.logger.Noticef(`parsing compiled scene from "%s"`, sceneRes.Path())
	start := time.Now()

	// zip package requires a reader implementing ReaderAt. To work around
	// this requirement we read the entire zip file into memory and create
	// a reader from the bytes package that implements ReaderAt
	data, err := io.ReadAll(sceneRes)
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	sc := &scene.Scene{}
	var nodes []bvh.Node
	foundData := false
	for _, f := range zr.File {
		switch f.Name {
		case scene.DataFile, scene.NodeFile:
		default:
			p.logger.Warningf("unknown file %s in scene zip file; skipping", f.Name)
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		if f.Name == scene.DataFile {
			err = gob.NewDecoder(rc).Decode(sc)
			foundData = true
		} else {
			var raw []byte
			if raw, err = io.ReadAll(rc); err == nil {
				nodes, err = bvh.DecodeNodes(raw)
			}
		}
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("zipSceneReader: failed to load %s: %w", f.Name, err)
		}
	}

	if !foundData {
		return nil, fmt.Errorf("zipSceneReader: missing %s", scene.DataFile)
	}
	sc.BvhNodeList = nodes

	p.logger.Noticef("loaded scene in %d ms", time.Since(start).Milliseconds())
	return sc, nil
}

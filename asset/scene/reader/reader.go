package reader

import (
	"context"
	"errors"
	"fmt"

	"github.com/achilleasa/accel/asset"
	"github.com/achilleasa/accel/asset/compiler/input"
	"github.com/achilleasa/accel/asset/scene"
	"github.com/achilleasa/accel/registry"
)

var ErrUnsupportedFormat = errors.New("reader: unsupported file format")

// The Reader interface is implemented by all scene readers.
type Reader interface {
	// Read scene definition from a resource and build its hierarchies.
	Read(context.Context, *asset.Resource, registry.Options) (*registry.Registry, error)
}

// Read scene from file. Wavefront (.obj) scenes are parsed and compiled;
// compressed (.zip) scenes are loaded as is.
func ReadScene(ctx context.Context, filename string, opts registry.Options) (*registry.Registry, error) {
	res, err := asset.NewResource(filename, nil)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	reader, err := readerFor(res)
	if err != nil {
		return nil, err
	}
	return reader.Read(ctx, res, opts)
}

// Select reader based on file extension
func readerFor(res *asset.Resource) (Reader, error) {
	switch res.Ext() {
	case ".obj":
		return newWavefrontReader(), nil
	case ".zip":
		return newZipSceneReader(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, res.Path())
}

// ParseWavefront parses a wavefront scene without building hierarchies.
func ParseWavefront(res *asset.Resource) (*input.Scene, error) {
	return newWavefrontReader().Parse(res)
}

// DecodeCompressed loads the flat scene stored in a compressed archive.
func DecodeCompressed(res *asset.Resource) (*scene.Scene, error) {
	return newZipSceneReader().Decode(res)
}

package writer

import (
	"archive/zip"
	"encoding/gob"
	"fmt"
	"io"
	"time"

	"github.com/achilleasa/accel/asset/scene"
	"github.com/achilleasa/accel/bvh"
	"github.com/achilleasa/accel/log"
)

type zipSceneWriter struct {
	logger log.Logger
	out    io.Writer
	name   string
}

// Create a new zip scene writer
func newZipSceneWriter(out io.Writer, name string) *zipSceneWriter {
	return &zipSceneWriter{
		logger: log.New("zip writer"),
		out:    out,
		name:   name,
	}
}

// Write scene definition to a zip archive. The node list is stored using the
// 32-byte node encoding; everything else is gob encoded.
func (w *zipSceneWriter) Write(sc *scene.Scene) error {
	w.logger.Noticef(`writing compressed scene to "%s"`, w.name)
	start := time.Now()

	zw := zip.NewWriter(w.out)

	nw, err := zw.Create(scene.NodeFile)
	if err != nil {
		return err
	}
	if _, err = nw.Write(bvh.EncodeNodes(sc.BvhNodeList)); err != nil {
		return fmt.Errorf("zipSceneWriter: failed to write %s: %w", scene.NodeFile, err)
	}

	dw, err := zw.Create(scene.DataFile)
	if err != nil {
		return err
	}
	data := *sc
	data.BvhNodeList = nil
	if err = gob.NewEncoder(dw).Encode(&data); err != nil {
		return fmt.Errorf("zipSceneWriter: failed to write %s: %w", scene.DataFile, err)
	}

	if err = zw.Close(); err != nil {
		return err
	}

	w.logger.Noticef("compressed scene in %d ms", time.Since(start).Milliseconds())
	return nil
}

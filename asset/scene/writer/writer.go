package writer

import (
	"io"
	"os"

	"github.com/achilleasa/accel/asset/scene"
)

// The Writer interface is implemented by all scene writers.
type Writer interface {
	// Write scene definition
	Write(*scene.Scene) error
}

// Write scene to a compressed archive.
func WriteScene(sc *scene.Scene, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}

	if err = Encode(f, filename, sc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Encode writes a compressed scene archive to out. The name is only used
// for logging.
func Encode(out io.Writer, name string, sc *scene.Scene) error {
	return newZipSceneWriter(out, name).Write(sc)
}

// Package gallery stores enrolled reference images and the transient verification probe
// on the local disk:
//
//	<root>/faces/<identity>/<pose>.jpg
//	<root>/tmp/probe.jpg
package gallery

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/andresmejia3/facegate/internal/utils"
)

const (
	facesDir   = "faces"
	scratchDir = "tmp"
	probeName  = "probe.jpg"
	refExt     = ".jpg"

	jpegQuality = 95
)

// Identity is one enrolled subject and its reference images, in file name order.
type Identity struct {
	Name       string
	References []string
}

// Gallery is the on-disk identity store. It assumes a single writer.
type Gallery struct {
	Root string

	dirs      map[string]bool
	dirsMutex sync.Mutex
}

// New opens (and creates if needed) a gallery rooted at root.
func New(root string) (*Gallery, error) {
	g := &Gallery{Root: root, dirs: make(map[string]bool, 8)}
	for _, dir := range []string{g.FacesDir(), g.ScratchDir()} {
		if err := g.createDir(dir); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return g, nil
}

func (g *Gallery) FacesDir() string   { return filepath.Join(g.Root, facesDir) }
func (g *Gallery) ScratchDir() string { return filepath.Join(g.Root, scratchDir) }
func (g *Gallery) ProbePath() string  { return filepath.Join(g.ScratchDir(), probeName) }

// IdentityDir returns the directory of a (normalized) identity name.
func (g *Gallery) IdentityDir(name string) string {
	return filepath.Join(g.FacesDir(), name)
}

func (g *Gallery) createDir(dir string) error {
	g.dirsMutex.Lock()
	defer g.dirsMutex.Unlock()

	if ok := g.dirs[dir]; ok {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	g.dirs[dir] = true
	return nil
}

func (g *Gallery) forgetDir(dir string) {
	g.dirsMutex.Lock()
	defer g.dirsMutex.Unlock()
	delete(g.dirs, dir)
}

// save encodes img as JPEG at path, replacing any existing file.
func (g *Gallery) save(path string, img image.Image) error {
	if err := g.createDir(filepath.Dir(path)); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(file, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Identities lists every identity directory in lexical order. Files directly under
// faces/ are ignored, and only *.jpg files count as references.
func (g *Gallery) Identities() ([]Identity, error) {
	entries, err := os.ReadDir(g.FacesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []Identity
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		refs, err := g.references(e.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, Identity{Name: e.Name(), References: refs})
	}
	return out, nil
}

func (g *Gallery) references(name string) ([]string, error) {
	dir := g.IdentityDir(name)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var refs []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), refExt) {
			continue
		}
		refs = append(refs, filepath.Join(dir, e.Name()))
	}
	return refs, nil
}

// WriteProbe stores the verification probe in the single reused scratch slot.
func (g *Gallery) WriteProbe(img image.Image) (string, error) {
	path := g.ProbePath()
	if err := g.save(path, img); err != nil {
		return "", fmt.Errorf("failed to write probe: %w", err)
	}
	return path, nil
}

// RemoveProbe deletes the probe; a missing probe is not an error.
func (g *Gallery) RemoveProbe() error {
	if err := os.Remove(g.ProbePath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// CleanScratch removes everything under tmp/ (stale probes and abandoned staging
// directories) and returns the number of entries removed.
func (g *Gallery) CleanScratch() (int, error) {
	entries, err := os.ReadDir(g.ScratchDir())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		path := filepath.Join(g.ScratchDir(), e.Name())
		if err := os.RemoveAll(path); err != nil {
			return removed, err
		}
		g.forgetDir(path)
		removed++
	}
	return removed, nil
}

// Enrollment receives the poses of one enrollment run.
//
// A direct enrollment writes straight into the identity directory, so poses saved
// before an abort stay on disk. A staged enrollment writes to tmp/enroll-<uuid>/ and
// only moves the files into place on Commit.
type Enrollment struct {
	Name string

	g      *Gallery
	dir    string
	staged bool
	poses  []string
}

// Begin starts an enrollment for name, which must already be normalized.
func (g *Gallery) Begin(name string, staged bool) (*Enrollment, error) {
	if n, err := utils.NormalizeIdentityName(name); err != nil || n != name {
		return nil, fmt.Errorf("%w: %q", utils.ErrInvalidName, name)
	}

	dir := g.IdentityDir(name)
	if staged {
		dir = filepath.Join(g.ScratchDir(), "enroll-"+uuid.NewString())
	}
	if err := g.createDir(dir); err != nil {
		return nil, err
	}
	return &Enrollment{Name: name, g: g, dir: dir, staged: staged}, nil
}

// SavePose writes one accepted pose, overwriting an earlier image for the same pose.
func (e *Enrollment) SavePose(pose string, img image.Image) (string, error) {
	path := filepath.Join(e.dir, pose+refExt)
	if err := e.g.save(path, img); err != nil {
		return "", fmt.Errorf("failed to save pose %s: %w", pose, err)
	}
	e.poses = append(e.poses, pose)
	return path, nil
}

// Commit publishes the saved poses. It is a no-op for direct enrollments.
func (e *Enrollment) Commit() error {
	if !e.staged {
		return nil
	}
	final := e.g.IdentityDir(e.Name)
	if err := e.g.createDir(final); err != nil {
		return err
	}
	for _, pose := range e.poses {
		src := filepath.Join(e.dir, pose+refExt)
		if err := os.Rename(src, filepath.Join(final, pose+refExt)); err != nil {
			return fmt.Errorf("failed to commit pose %s: %w", pose, err)
		}
	}
	return e.discard()
}

// Abort drops a staged enrollment. Files of a direct enrollment are left in place.
func (e *Enrollment) Abort() error {
	if !e.staged {
		return nil
	}
	return e.discard()
}

func (e *Enrollment) discard() error {
	e.g.forgetDir(e.dir)
	return os.RemoveAll(e.dir)
}

package assets

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/anima-gpu/engine/assets/loaders"
	"github.com/spaghettifunk/anima-gpu/engine/core"
)

type AssetType uint8

const (
	AssetTypeNone AssetType = iota
	AssetTypeShaderModule
	AssetTypeShaderLayout
	AssetTypeImage
)

type AssetInfo struct {
	Path       string
	Type       AssetType
	LastLoaded time.Time
}

// changeBacklog bounds the program names waiting to be drained.
const changeBacklog = 64

// AssetManager indexes the shader directory and, when watching, reports
// programs whose binaries or layouts changed on disk.
type AssetManager struct {
	assets   map[string]AssetInfo
	shaders  *loaders.ShaderLoader
	textures *loaders.TextureLoader

	mutex sync.RWMutex

	done     chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
	changes  chan string
}

func NewAssetManager(shaderDir string) *AssetManager {
	return &AssetManager{
		assets:   make(map[string]AssetInfo),
		shaders:  &loaders.ShaderLoader{Dir: shaderDir},
		textures: &loaders.TextureLoader{},
		changes:  make(chan string, changeBacklog),
		done:     make(chan struct{}),
	}
}

// Initialize indexes the shader directory. With watch set it also
// starts the watcher goroutine.
func (am *AssetManager) Initialize(watch bool) error {
	if _, err := os.Stat(am.shaders.Dir); err != nil {
		core.LogError("shader directory %s: %s", am.shaders.Dir, err)
		return err
	}
	if !watch {
		return am.index(am.shaders.Dir)
	}

	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		core.LogError(err.Error())
		return err
	}
	am.fsnotify = fsWatch
	if err := am.addRecursive(am.shaders.Dir); err != nil {
		fsWatch.Close()
		am.fsnotify = nil
		return err
	}
	go am.start()

	core.LogInfo("watching %s for shader changes", am.shaders.Dir)
	return nil
}

// Changes delivers the names of programs to reload. It is closed by Shutdown.
func (am *AssetManager) Changes() <-chan string {
	return am.changes
}

func (am *AssetManager) Shutdown() {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	if am.isClosed {
		return
	}
	am.isClosed = true
	close(am.done)
	if am.fsnotify == nil {
		close(am.changes)
	}
}

// Assets returns the indexed files of the given type.
func (am *AssetManager) Assets(typ AssetType) []AssetInfo {
	am.mutex.RLock()
	defer am.mutex.RUnlock()

	var out []AssetInfo
	for _, a := range am.assets {
		if a.Type == typ {
			out = append(out, a)
		}
	}
	return out
}

// Programs lists the names of the programs found in the shader directory.
func (am *AssetManager) Programs() []string {
	seen := make(map[string]bool)
	var names []string
	for _, a := range am.Assets(AssetTypeShaderModule) {
		name := programName(a.Path)
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// AddRecursive starts watching the named directory and all sub-directories.
func (am *AssetManager) addRecursive(name string) error {
	if am.isClosed {
		return errors.New("asset watcher already closed")
	}
	return am.watchRecursive(name, false)
}

func (am *AssetManager) index(path string) error {
	return filepath.WalkDir(path, func(walkPath string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			am.handleFileEvent(walkPath)
		}
		return nil
	})
}

func (am *AssetManager) start() {
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := am.watchRecursive(e.Name, false); err != nil {
						core.LogWarn("failed to watch %s: %s", e.Name, err)
					}
				}
				continue
			}
			// Handle create or modify events. Editors often rename over
			// the file, which shows up as a create.
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				if am.handleFileEvent(e.Name) {
					am.notify(programName(e.Name))
				}
			}
			if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				am.removeAsset(e.Name)
			}

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(err.Error())

		case <-am.done:
			am.fsnotify.Close()
			close(am.changes)
			return
		}
	}
}

// notify queues a reload without blocking the watcher. A name already
// queued is dropped when the backlog is full.
func (am *AssetManager) notify(name string) {
	select {
	case am.changes <- name:
	default:
		core.LogWarn("shader change backlog full, dropping %q", name)
	}
}

// watchRecursive adds all directories under the given one to the watch list.
func (am *AssetManager) watchRecursive(path string, unWatch bool) error {
	return filepath.WalkDir(path, func(walkPath string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if unWatch {
				return am.fsnotify.Remove(walkPath)
			}
			return am.fsnotify.Add(walkPath)
		}
		am.handleFileEvent(walkPath)
		return nil
	})
}

// Handle the creation or modification of a file. It reports whether
// the file belongs to a program.
func (am *AssetManager) handleFileEvent(path string) bool {
	assetType := determineAssetType(path)
	if assetType == AssetTypeNone {
		return false
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.assets[path] = AssetInfo{
		Path:       path,
		Type:       assetType,
		LastLoaded: time.Now(),
	}
	return assetType == AssetTypeShaderModule || assetType == AssetTypeShaderLayout
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	delete(am.assets, path)
}

func determineAssetType(path string) AssetType {
	base := filepath.Base(path)
	switch {
	case strings.HasSuffix(base, ".layout.toml"):
		return AssetTypeShaderLayout
	case strings.HasSuffix(base, ".spv"):
		return AssetTypeShaderModule
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".png", ".jpg", ".jpeg", ".bmp", ".tiff", ".webp":
		return AssetTypeImage
	default:
		return AssetTypeNone
	}
}

// programName strips the stage and extension from a shader file name:
// "blur.frag.spv" and "blur.layout.toml" are both "blur".
func programName(path string) string {
	name, _, _ := strings.Cut(filepath.Base(path), ".")
	return name
}

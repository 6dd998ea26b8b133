package assets

import (
	"image"
	"time"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// LoadProgram reads the modules and the binding layout of a program.
func (am *AssetManager) LoadProgram(name string) (*metadata.ProgramDesc, error) {
	desc, err := am.shaders.Load(name)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	am.touch(am.shaders.LayoutPath(name))
	return desc, nil
}

// LoadImage decodes an image file.
func (am *AssetManager) LoadImage(path string) (image.Image, error) {
	img, err := am.textures.Load(path)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	am.touch(path)
	return img, nil
}

// touch updates the load time of an indexed asset.
func (am *AssetManager) touch(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	if asset, ok := am.assets[path]; ok {
		asset.LastLoaded = time.Now()
		am.assets[path] = asset
	}
}

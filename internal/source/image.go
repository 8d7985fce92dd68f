package source

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// NewImageSequence presents the images of a directory (sorted by name), or
// a single image file, each for frameDuration seconds.
func NewImageSequence(path string, frameDuration float64) (VideoSource, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	var paths []string
	if fi.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if !entry.IsDir() && isImageExt(strings.ToLower(filepath.Ext(entry.Name()))) {
				paths = append(paths, filepath.Join(path, entry.Name()))
			}
		}
		sort.Strings(paths)
	} else {
		paths = []string{path}
	}

	if len(paths) == 0 {
		return nil, notReady("no images in %s", path)
	}
	if frameDuration <= 0 {
		return nil, notReady("image duration must be positive, got %v", frameDuration)
	}

	w, h, err := imageSize(paths[0])
	if err != nil {
		return nil, err
	}

	return &stillSource{
		count:  len(paths),
		each:   frameDuration,
		width:  w,
		height: h,
		render: func(index int) (image.Image, error) {
			img, err := imaging.Open(paths[index], imaging.AutoOrientation(true))
			if err != nil {
				return nil, fmt.Errorf("failed to decode %s: %w", paths[index], err)
			}
			return img, nil
		},
	}, nil
}

func imageSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read image header %s: %w", path, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, notReady("empty image %s", path)
	}
	return cfg.Width, cfg.Height, nil
}

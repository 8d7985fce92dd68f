package compositor

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

const fallbackFamily = "sans-serif"

// builtin maps CSS-ish family names onto the bundled Go fonts.
var builtin = map[string][]byte{
	"sans-serif": goregular.TTF,
	"go":         goregular.TTF,
	"system-ui":  goregular.TTF,
	"arial":      goregular.TTF,
	"helvetica":  goregular.TTF,
	"inter":      goregular.TTF,
	"serif":      goregular.TTF,
	"bold":       gobold.TTF,
	"italic":     goitalic.TTF,
	"monospace":  gomono.TTF,
	"courier":    gomono.TTF,
	"go mono":    gomono.TTF,
}

// FontBook resolves font families to parsed fonts. Parsed fonts are shared;
// faces are not safe for concurrent use, so Face hands out a fresh one per call.
type FontBook struct {
	mu     sync.Mutex
	parsed map[string]*opentype.Font
	custom map[string][]byte
}

func NewFontBook() *FontBook {
	return &FontBook{
		parsed: make(map[string]*opentype.Font),
		custom: make(map[string][]byte),
	}
}

// RegisterFile makes a TTF/OTF file available under family.
func (b *FontBook) RegisterFile(family, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read font file: %w", err)
	}
	if _, err := opentype.Parse(data); err != nil {
		return fmt.Errorf("failed to parse font %s: %w", path, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	key := normalizeFamily(family)
	b.custom[key] = data
	delete(b.parsed, key)
	return nil
}

// Face returns a new face for the first known family in a comma-separated
// list, falling back to the bundled sans-serif. The caller closes it.
func (b *FontBook) Face(families string, size float64) (font.Face, error) {
	f, err := b.lookup(families)
	if err != nil {
		return nil, err
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	return face, nil
}

func (b *FontBook) lookup(families string) (*opentype.Font, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, name := range strings.Split(families, ",") {
		key := normalizeFamily(name)
		if f, ok := b.parsed[key]; ok {
			return f, nil
		}
		data, ok := b.custom[key]
		if !ok {
			data, ok = builtin[key]
		}
		if !ok {
			continue
		}
		return b.parse(key, data)
	}

	if f, ok := b.parsed[fallbackFamily]; ok {
		return f, nil
	}
	return b.parse(fallbackFamily, builtin[fallbackFamily])
}

func (b *FontBook) parse(key string, data []byte) (*opentype.Font, error) {
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font %q: %w", key, err)
	}
	b.parsed[key] = f
	return f, nil
}

func normalizeFamily(name string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(name), `"'`))
}

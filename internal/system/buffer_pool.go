package system

import (
	"image"
	"sync"
	"sync/atomic"
)

// ImagePool предоставляет повторное использование *image.RGBA одинакового размера
// для снижения нагрузки на Garbage Collector (GC) во время обработки батча.
type ImagePool struct {
	pools map[image.Rectangle]*sync.Pool
	mu    sync.RWMutex
	inUse atomic.Int64
	peak  atomic.Int64
}

func NewImagePool() *ImagePool {
	return &ImagePool{pools: make(map[image.Rectangle]*sync.Pool)}
}

// Get возвращает буфер с заданными границами из пула или создает новый.
// Содержимое буфера не определено.
func (p *ImagePool) Get(rect image.Rectangle) *image.RGBA {
	p.mu.RLock()
	pool, exists := p.pools[rect]
	p.mu.RUnlock()

	if !exists {
		p.mu.Lock()
		// Double check
		pool, exists = p.pools[rect]
		if !exists {
			pool = &sync.Pool{
				New: func() interface{} {
					return image.NewRGBA(rect)
				},
			}
			p.pools[rect] = pool
		}
		p.mu.Unlock()
	}

	n := p.inUse.Add(1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	return pool.Get().(*image.RGBA)
}

// Put возвращает img в пул для повторного использования.
func (p *ImagePool) Put(img *image.RGBA) {
	if img == nil {
		return
	}
	p.mu.RLock()
	pool, exists := p.pools[img.Rect]
	p.mu.RUnlock()

	if exists {
		p.inUse.Add(-1)
		pool.Put(img)
	}
}

// InUse возвращает число выданных и еще не возвращенных буферов.
func (p *ImagePool) InUse() int64 {
	return p.inUse.Load()
}

// Peak возвращает максимальное наблюдавшееся значение InUse.
func (p *ImagePool) Peak() int64 {
	return p.peak.Load()
}

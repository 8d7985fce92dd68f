package system

import (
	"os"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// memoryShare - доля доступной памяти, которую может занять один батч сырых кадров.
const memoryShare = 4

// BatchSizeFor уменьшает requested так, чтобы батч сырых кадров (вместе с
// буферами композиции) помещался в четверть доступной памяти.
// Если статистика памяти недоступна, requested возвращается без изменений.
func BatchSizeFor(requested int, frameBytes int64) int {
	if requested < 1 {
		requested = 1
	}
	if frameBytes <= 0 {
		return requested
	}
	vm, err := mem.VirtualMemory()
	if err != nil || vm.Available == 0 {
		return requested
	}
	// на каждый сэмпл приходится декодированный и скомпозированный кадр
	limit := int64(vm.Available/memoryShare) / (2 * frameBytes)
	if limit < 1 {
		return 1
	}
	if int64(requested) > limit {
		return int(limit)
	}
	return requested
}

// ProcessRSS возвращает RSS текущего процесса в байтах.
func ProcessRSS() (uint64, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	info, err := p.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return info.RSS, nil
}

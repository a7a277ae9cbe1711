//go:build unix

package control

import "golang.org/x/sys/unix"

// priorityTable maps classes to nice values. Raising priority above Normal
// usually needs CAP_SYS_NICE or root.
var priorityTable = map[PriorityClass]int{
	Realtime:    -20,
	High:        -10,
	AboveNormal: -5,
	Normal:      0,
	BelowNormal: 5,
	Low:         19,
}

func setOSPriority(pid int32, value int) error {
	return unix.Setpriority(unix.PRIO_PROCESS, int(pid), value)
}

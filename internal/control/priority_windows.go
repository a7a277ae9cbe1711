//go:build windows

package control

import "golang.org/x/sys/windows"

var priorityTable = map[PriorityClass]int{
	Realtime:    windows.REALTIME_PRIORITY_CLASS,
	High:        windows.HIGH_PRIORITY_CLASS,
	AboveNormal: windows.ABOVE_NORMAL_PRIORITY_CLASS,
	Normal:      windows.NORMAL_PRIORITY_CLASS,
	BelowNormal: windows.BELOW_NORMAL_PRIORITY_CLASS,
	Low:         windows.IDLE_PRIORITY_CLASS,
}

func setOSPriority(pid int32, value int) error {
	h, err := windows.OpenProcess(windows.PROCESS_SET_INFORMATION, false, uint32(pid))
	if err != nil {
		return err
	}
	defer windows.CloseHandle(h)
	return windows.SetPriorityClass(h, uint32(value))
}

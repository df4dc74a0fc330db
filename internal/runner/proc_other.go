//go:build !unix

package runner

import (
	"os"
	"os/exec"

	"github.com/shirou/gopsutil/v3/process"
)

func setProcAttr(cmd *exec.Cmd) {}

// terminate 先结束扫描器派生的子进程，再结束扫描器本身
func terminate(p *os.Process) error {
	proc, err := process.NewProcess(int32(p.Pid))
	if err != nil {
		return os.ErrProcessDone
	}
	if children, err := proc.Children(); err == nil {
		for _, child := range children {
			_ = child.Terminate()
		}
	}
	if err := proc.Terminate(); err != nil {
		return p.Kill()
	}
	return nil
}

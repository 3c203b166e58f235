package executor

import (
	"github.com/shirou/gopsutil/v3/process"
)

// descendants returns every live descendant of pid in breadth-first order,
// children before grandchildren.
func descendants(pid int) []int {
	root, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil
	}

	var tree []int
	next := []*process.Process{root}
	for len(next) > 0 {
		current := next[0]
		next = next[1:]

		children, err := current.Children()
		if err != nil {
			// Treat lookup failures as a leaf
			continue
		}
		for _, child := range children {
			tree = append(tree, int(child.Pid))
		}
		next = append(next, children...)
	}
	return tree
}

// killTree kills the descendants of pid deepest first, then pid itself,
// then whatever is left in its process group.
func (e *Executor) killTree(pid int) {
	tree := descendants(pid)
	for i := len(tree) - 1; i >= 0; i-- {
		if err := killPid(tree[i]); err != nil {
			e.logger.Debug("Failed to kill descendant", "pid", tree[i], "root", pid, "error", err)
		}
	}
	if err := killPid(pid); err != nil {
		e.logger.Debug("Failed to kill process", "pid", pid, "error", err)
	}
	killGroup(pid)
}

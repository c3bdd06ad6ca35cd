//go:build !unix

package process

import "os/exec"

func configureProcessGroup(cmd *exec.Cmd) {}

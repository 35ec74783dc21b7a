package deploy

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// Runner runs an external tool and streams its output line by line.
type Runner interface {
	Run(ctx context.Context, env []string, onLine func(string), name string, args ...string) error
}

// ExecRunner runs tools as child processes. Stdout and stderr are merged.
type ExecRunner struct {
	// Dir is the working directory of every tool, empty for the current one
	Dir string
}

/**
 * Run a tool and wait for it to finish
 * @param {context.Context} ctx - Killing the tool when cancelled
 * @param {[]string} env - Full environment of the tool, nil inherits the current one
 * @param {func(string)} onLine - Called for every output line, in order
 * @param {string} name - Tool name, looked up in PATH
 * @param {...string} args - Tool arguments
 * @returns {error} Start error or non-zero exit
 */
func (r ExecRunner) Run(ctx context.Context, env []string, onLine func(string), name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir
	cmd.Env = env

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			if onLine != nil {
				onLine(strings.TrimRight(scanner.Text(), "\r"))
			}
		}
		// 读端出错时继续排空，避免子进程阻塞在写管道上
		_, _ = io.Copy(io.Discard, pr)
	}()

	err := cmd.Run()
	pw.Close()
	wg.Wait()
	return err
}

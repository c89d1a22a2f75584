package tool

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/hupe1980/agentrelay/logging"
)

// File tool names.
const (
	ReadFileName       = "file_tools.read_file"
	WriteFileName      = "file_tools.write_file"
	ExecuteCommandName = "file_tools.execute_command"
)

// FileOptions configure the file tools.
type FileOptions struct {
	// WorkDir resolves relative paths; empty means the process directory.
	WorkDir string
	// Echo receives command output line by line while it runs.
	Echo   io.Writer
	Logger logging.Logger
}

// FileTools returns read_file, write_file and execute_command.
func FileTools(optFns ...func(o *FileOptions)) []Tool {
	opts := FileOptions{Echo: io.Discard, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	ft := &fileTools{opts: opts}
	return []Tool{
		NewFunctionTool(ReadFileName, "Reads a file from a given path and returns its contents.",
			[]Param{Required("path", TypeString, "Path to the file to read")},
			ft.readFile),
		NewFunctionTool(WriteFileName, "Writes data to an existing file at a given path.",
			[]Param{
				Required("path", TypeString, "Path to the file to write to"),
				Required("data", TypeString, "Data to write to the file"),
			},
			ft.writeFile),
		NewFunctionTool(ExecuteCommandName, "Executes a shell command and returns its combined output.",
			[]Param{
				Required("command", TypeString, "Command line to execute"),
				Optional("cwd", TypeString, ".", "Working directory"),
			},
			ft.executeCommand),
	}
}

type fileTools struct {
	opts FileOptions
}

func (f *fileTools) resolve(path string) string {
	if filepath.IsAbs(path) || f.opts.WorkDir == "" {
		return path
	}
	return filepath.Join(f.opts.WorkDir, path)
}

func (f *fileTools) readFile(_ context.Context, args Args) (string, error) {
	path := f.resolve(args.String("path"))
	f.opts.Logger.Info("reading file", "path", path)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", NewToolError(ReadFileName, "File not found", CodeNotFound)
	}
	if err != nil {
		return "", NewToolError(ReadFileName, err.Error(), "")
	}
	return string(data), nil
}

func (f *fileTools) writeFile(_ context.Context, args Args) (string, error) {
	path := f.resolve(args.String("path"))
	f.opts.Logger.Info("writing file", "path", path)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return "", NewToolError(WriteFileName, "File not found", CodeNotFound)
	}
	if err := os.WriteFile(path, []byte(args.String("data")), 0o644); err != nil {
		return "", NewToolError(WriteFileName, err.Error(), "")
	}
	return "File written successfully", nil
}

func (f *fileTools) executeCommand(ctx context.Context, args Args) (string, error) {
	command := args.String("command")
	dir := f.resolve(args.String("cwd"))
	f.opts.Logger.Info("executing command", "command", command, "cwd", dir)

	cmd := shellCommand(ctx, command)
	cmd.Dir = dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start command: %w", err)
	}

	var captured strings.Builder
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text() + "\n"
		_, _ = io.WriteString(f.opts.Echo, line)
		captured.WriteString(line)
	}
	scanErr := scanner.Err()
	waitErr := cmd.Wait()

	output := captured.String()
	if waitErr != nil {
		if ctx.Err() != nil {
			return output, ctx.Err()
		}
		return output, &ToolError{Tool: ExecuteCommandName, Message: output, Code: CodeExitStatus, Details: waitErr.Error()}
	}
	if scanErr != nil {
		return output, fmt.Errorf("read output: %w", scanErr)
	}
	return output, nil
}

func shellCommand(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", command)
	}
	return exec.CommandContext(ctx, "sh", "-c", command)
}

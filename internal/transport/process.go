package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

const (
	startedToken = "started"
	sizeStart    = "file_size_start:"
	sizeEnd      = ":file_size_end"
)

// processFetcher is the shared plumbing for helper-process backends that
// speak a tiny line protocol: the caller writes a URL followed by a newline
// to the child's stdin, and the child eventually writes either
// file_size_start:<N>:file_size_end or a fault token to its stdout.
//
// curlFetcher and quicFetcher differ only in which binary they spawn, how
// long they wait for a respawned process to settle, and whether the
// requested URL needs rewriting before being handed to the child.
type processFetcher struct {
	binaryPath   string
	args         []string
	processName  string
	reopenSettle time.Duration
	rewriteURL   func(string) string
	logger       *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	scanner *bufio.Scanner
}

func newProcessFetcher(binaryPath string, args []string, processName string, reopenSettle time.Duration, rewriteURL func(string) string, logger *slog.Logger) *processFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if rewriteURL == nil {
		rewriteURL = func(u string) string { return u }
	}
	return &processFetcher{
		binaryPath:   binaryPath,
		args:         args,
		processName:  processName,
		reopenSettle: reopenSettle,
		rewriteURL:   rewriteURL,
		logger:       logger,
	}
}

// Start spawns the helper process and blocks until it reports readiness on
// its first stdout line.
func (f *processFetcher) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.start(ctx)
}

func (f *processFetcher) start(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, f.binaryPath, f.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("helper process stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("helper process stdout: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start helper process %s: %w", f.binaryPath, err)
	}

	scanner := bufio.NewScanner(stdout)
	if !scanner.Scan() {
		return fmt.Errorf("helper process %s exited before reporting ready", f.binaryPath)
	}
	line := strings.TrimSpace(scanner.Text())
	if !strings.Contains(line, startedToken) {
		return fmt.Errorf("helper process %s did not report ready, got %q", f.binaryPath, line)
	}

	f.cmd = cmd
	f.stdin = stdin
	f.scanner = scanner
	f.logger.Debug("helper process ready", "binary", f.binaryPath, "pid", cmd.Process.Pid)
	return nil
}

// Fetch writes the rewritten URL to the child's stdin and waits for its
// size report. A fault token kills the process by name so the caller's
// Reopen starts from a clean process table.
func (f *processFetcher) Fetch(ctx context.Context, segURL, downloadDir string) (int64, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stdin == nil {
		return -1, "", &FaultError{URL: segURL, Reason: "helper process not started"}
	}

	target := f.rewriteURL(segURL)
	if _, err := io.WriteString(f.stdin, target+"\n"); err != nil {
		f.killByName()
		return -1, "", &FaultError{URL: segURL, Reason: "write to helper stdin: " + err.Error()}
	}

	for f.scanner.Scan() {
		line := strings.TrimSpace(f.scanner.Text())
		switch {
		case strings.Contains(line, "FATAL"), strings.Contains(line, "Failed to connect"), strings.Contains(line, "ERROR"):
			f.killByName()
			return -1, "", &FaultError{URL: segURL, Reason: line}
		case strings.Contains(line, sizeStart):
			size, err := parseSize(line)
			if err != nil {
				f.killByName()
				return -1, "", &FaultError{URL: segURL, Reason: err.Error()}
			}
			if err := os.MkdirAll(downloadDir, 0o755); err != nil {
				return -1, "", &FatalError{URL: segURL, Reason: err.Error()}
			}
			return size, path.Join(downloadDir, basename(segURL)), nil
		}
	}
	f.killByName()
	return -1, "", &FaultError{URL: segURL, Reason: "helper process closed stdout"}
}

func parseSize(line string) (int64, error) {
	start := strings.Index(line, sizeStart)
	end := strings.Index(line, sizeEnd)
	if start == -1 || end == -1 || end < start {
		return -1, fmt.Errorf("malformed size line %q", line)
	}
	raw := line[start+len(sizeStart) : end]
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return -1, fmt.Errorf("malformed size value %q: %w", raw, err)
	}
	return n, nil
}

// Reopen kills any surviving process by name, waits the backend's settle
// interval, and spawns a fresh one.
func (f *processFetcher) Reopen(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killByName()
	f.logger.Debug("reopening helper process", "binary", f.binaryPath, "settle", f.reopenSettle)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(f.reopenSettle):
	}
	return f.start(ctx)
}

func (f *processFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stdin != nil {
		_, _ = io.WriteString(f.stdin, "exit\n")
	}
	f.killByName()
	if f.stdin != nil {
		_ = f.stdin.Close()
	}
	if f.cmd != nil && f.cmd.Process != nil {
		_ = f.cmd.Wait()
	}
	return nil
}

// killByName finds every process whose name contains processName and kills
// it, mirroring the original client's "ps ax | grep <name>" and kill -9.
func (f *processFetcher) killByName() {
	procs, err := process.Processes()
	if err != nil {
		f.logger.Warn("could not enumerate processes for kill", "error", err)
		return
	}
	for _, p := range procs {
		name, err := p.Name()
		if err != nil || !strings.Contains(name, f.processName) {
			continue
		}
		if err := p.Kill(); err != nil {
			f.logger.Debug("kill process failed", "pid", p.Pid, "name", name, "error", err)
		}
	}
}

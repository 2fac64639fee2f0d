package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(stopCmd, restartCmd, statusCmd)
}

// readPID reads ohime.pid and checks the process is alive with signal 0.
func readPID(dataDir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, "ohime.pid"))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("no running daemon (PID file not found)")
		}
		return 0, fmt.Errorf("read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}
	if err := syscall.Kill(pid, syscall.Signal(0)); err != nil {
		return 0, fmt.Errorf("no running daemon (process %d not found)", pid)
	}
	return pid, nil
}

func signalDaemon(sig syscall.Signal) (int, error) {
	cfg := loadConfig()
	pid, err := readPID(cfg.DataDir)
	if err != nil {
		return 0, err
	}
	if err := syscall.Kill(pid, sig); err != nil {
		return 0, fmt.Errorf("send %s: %w", sig, err)
	}
	return pid, nil
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := signalDaemon(syscall.SIGTERM)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Sent SIGTERM to daemon (PID %d). Pending replies resume on next start.\n", pid)
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the running daemon in place",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := signalDaemon(syscall.SIGHUP)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Sent SIGHUP to daemon (PID %d) for restart.\n", pid)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and pending reply status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if pid, err := readPID(cfg.DataDir); err != nil {
			fmt.Fprintln(os.Stdout, "Daemon: stopped")
		} else {
			fmt.Fprintf(os.Stdout, "Daemon: running (PID %d)\n", pid)
		}

		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		store, closeStore, err := conversationStore(ctx, cfg, db)
		if err != nil {
			return fmt.Errorf("open conversation store: %w", err)
		}
		defer closeStore()

		alarms, err := store.PendingAlarms(ctx)
		if err != nil {
			return fmt.Errorf("list alarms: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Pending replies: %d (%s backend)\n", len(alarms), cfg.State.Backend)
		for _, a := range alarms {
			fmt.Fprintf(os.Stdout, "  chat %d due %s\n", a.ChatID, a.Due.Local().Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

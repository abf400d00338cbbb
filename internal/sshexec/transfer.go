package sshexec

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"golang.org/x/crypto/ssh"
)

// Transfer copies local files to other hosts over SSH. It implements the
// archive transfer collaborator of the migration coordinator.
type Transfer struct {
	User    string
	KeyFile string
	Port    int
}

// Copy streams the local file to destHost at remotePath, creating the remote
// directory first. The copy is a blocking, non-resumable stream.
func (t *Transfer) Copy(ctx context.Context, localPath, destHost, remotePath string) error {
	client, err := Connect(t.User, destHost, t.Port, t.KeyFile)
	if err != nil {
		return fmt.Errorf("connect to %q: %w", destHost, err)
	}
	defer client.Close()

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %q: %w", localPath, err)
	}
	defer f.Close()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer session.Close()
	session.Stdin = f

	// Remote paths use forward slashes regardless of the local OS.
	remoteDir := path.Dir(strings.ReplaceAll(remotePath, "\\", "/"))
	cmd := fmt.Sprintf("mkdir -p %s && cat > %s", shellQuote(remoteDir), shellQuote(remotePath))

	// Run in a goroutine so a canceled context can interrupt the stream.
	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	select {
	case err = <-done:
		if err != nil {
			return fmt.Errorf("copy %q to %s:%s: %w", localPath, destHost, remotePath, err)
		}
		return nil
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGINT)
		return fmt.Errorf("copy %q to %s:%s canceled: %w", localPath, destHost, remotePath, ctx.Err())
	}
}

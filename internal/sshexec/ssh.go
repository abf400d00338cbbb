// Package sshexec moves migration archives between hosts over SSH.
package sshexec

import (
	"fmt"
	"net"
	"os"
	osuser "os/user"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// Connect opens an SSH connection to host, trying the SSH agent first and
// falling back to the private key file.
func Connect(user, host string, port int, keyPath string) (*ssh.Client, error) {
	if user == "" {
		if u, err := osuser.Current(); err == nil {
			user = u.Username
		}
	}
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	agentAuth, agentClose, agentErr := sshAgentAuth()
	if agentErr == nil {
		defer agentClose()
		client, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
			User:            user,
			Auth:            []ssh.AuthMethod{agentAuth},
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Timeout:         5 * time.Second,
		})
		if err == nil {
			return client, nil
		}
		agentErr = err
	}

	if keyPath == "" {
		return nil, fmt.Errorf("connect using SSH agent: %w", agentErr)
	}
	keyAuth, err := privateKeyAuth(keyPath)
	if err != nil {
		return nil, err
	}
	client, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{keyAuth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("connect using private key %q: %w", keyPath, err)
	}
	return client, nil
}

func sshAgentAuth() (ssh.AuthMethod, func(), error) {
	conn, err := net.Dial("unix", os.Getenv("SSH_AUTH_SOCK"))
	if err != nil {
		return nil, func() {}, fmt.Errorf("connect to SSH agent: %w", err)
	}
	auth := ssh.PublicKeysCallback(agent.NewClient(conn).Signers)
	return auth, func() { _ = conn.Close() }, nil
}

func privateKeyAuth(path string) (ssh.AuthMethod, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key file %q: %w", path, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return ssh.PublicKeys(signer), nil
}

// shellQuote single-quotes a path for the remote shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

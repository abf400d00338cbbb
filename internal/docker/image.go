package docker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	dockercommand "github.com/docker/cli/cli/command"
	dockerconfig "github.com/docker/cli/cli/config"
	"github.com/distribution/reference"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
)

// InspectImage returns the image record for the given reference. Absence is
// returned as found=false, not an error.
func (cli *Client) InspectImage(ctx context.Context, ref string) (image.InspectResponse, bool, error) {
	resp, err := cli.ImageInspect(ctx, ref)
	if err != nil {
		if client.IsErrNotFound(err) {
			return resp, false, nil
		}
		return resp, false, err
	}
	return resp, true, nil
}

// TagImage tags the source image or ID with the target repository name.
func (cli *Client) TagImage(ctx context.Context, source, target string) error {
	if _, err := reference.ParseNormalizedNamed(target); err != nil {
		return fmt.Errorf("invalid image reference %q: %w", target, err)
	}
	return cli.ImageTag(ctx, source, target)
}

// CommitContainer commits a container's filesystem to an image tagged ref and
// returns the new image ID.
func (cli *Client) CommitContainer(ctx context.Context, containerID, ref string) (string, error) {
	resp, err := cli.ContainerCommit(ctx, containerID, container.CommitOptions{Reference: ref})
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// SaveImageToFile writes the image's filesystem archive to path.
func (cli *Client) SaveImageToFile(ctx context.Context, ref, path string) error {
	rc, err := cli.ImageSave(ctx, []string{ref})
	if err != nil {
		return fmt.Errorf("export image %q: %w", ref, err)
	}
	defer rc.Close()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create archive %q: %w", path, err)
	}
	defer f.Close()

	if _, err = io.Copy(f, rc); err != nil {
		return fmt.Errorf("write archive %q: %w", path, err)
	}
	return f.Close()
}

// LoadImageFromFile loads an image archive from path into the engine.
func (cli *Client) LoadImageFromFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive %q: %w", path, err)
	}
	defer f.Close()

	resp, err := cli.ImageLoad(ctx, f, client.ImageLoadWithQuiet(true))
	if err != nil {
		return fmt.Errorf("load archive %q: %w", path, err)
	}
	defer resp.Body.Close()

	// Drain the response to make sure the load completed.
	if _, err = io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("read load response for %q: %w", path, err)
	}
	return nil
}

// RemoveImage force-removes an image by reference or ID.
func (cli *Client) RemoveImage(ctx context.Context, ref string) error {
	_, err := cli.ImageRemove(ctx, ref, image.RemoveOptions{Force: true})
	return err
}

// PullImage pulls an image, resolving registry credentials from the local
// engine config file, and waits for the pull to complete.
func (cli *Client) PullImage(ctx context.Context, ref string) error {
	opts := image.PullOptions{}
	if encodedAuth, err := retrieveLocalRegistryAuth(ref); err == nil {
		opts.RegistryAuth = encodedAuth
	}

	respBody, err := cli.ImagePull(ctx, ref, opts)
	if err != nil {
		return err
	}
	defer respBody.Close()

	decoder := json.NewDecoder(respBody)
	for {
		var jm jsonmessage.JSONMessage
		if err = decoder.Decode(&jm); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode image pull message: %w", err)
		}
		if jm.Error != nil {
			return fmt.Errorf("pull image %q: %s", ref, jm.Error.Message)
		}
	}
}

// retrieveLocalRegistryAuth returns the encoded authentication token for the
// image from the local engine config file, or an empty string when the config
// holds no credentials for its registry.
func retrieveLocalRegistryAuth(ref string) (string, error) {
	cfg := dockerconfig.LoadDefaultConfigFile(os.Stderr)
	encodedAuth, err := dockercommand.RetrieveAuthTokenFromImage(cfg, ref)
	if err != nil {
		return "", err
	}
	auth, err := registry.DecodeAuthConfig(encodedAuth)
	if err != nil {
		return "", fmt.Errorf("decode auth config: %w", err)
	}

	if auth.Username == "" &&
		auth.Password == "" &&
		auth.Auth == "" &&
		auth.IdentityToken == "" &&
		auth.RegistryToken == "" {
		return "", nil
	}
	return encodedAuth, nil
}

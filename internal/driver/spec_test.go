package driver

import (
	"testing"

	"github.com/docker/docker/api/types/image"
	dockerspec "github.com/moby/docker-image-spec/specs-go/v1"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"

	"github.com/dockervirt/dockervirt/pkg/virt"
)

func TestInstanceCommand(t *testing.T) {
	t.Parallel()

	imgWithCmd := image.InspectResponse{
		Config: &dockerspec.DockerOCIImageConfig{
			ImageConfig: ocispec.ImageConfig{Cmd: []string{"/sbin/init"}},
		},
	}
	imgEmpty := image.InspectResponse{Config: &dockerspec.DockerOCIImageConfig{}}

	tests := []struct {
		name string
		meta *virt.ImageMeta
		img  image.InspectResponse
		want []string
	}{
		{
			name: "no image command falls back to keep-alive",
			meta: &virt.ImageMeta{},
			img:  imgEmpty,
			want: keepAliveCommand,
		},
		{
			name: "image command wins over keep-alive",
			meta: &virt.ImageMeta{},
			img:  imgWithCmd,
			want: nil,
		},
		{
			name: "command-line property wins over image command",
			meta: &virt.ImageMeta{
				Properties: map[string]string{virt.PropCommandLine: "/usr/sbin/sshd -D"},
			},
			img:  imgWithCmd,
			want: []string{"/usr/sbin/sshd", "-D"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, instanceCommand(tt.meta, tt.img))
		})
	}
}

func TestEngineImageID(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "111111112222", engineImageID("11111111-2222-3333-4444-555555555555"))
	assert.Equal(t, "abc", engineImageID("abc"))
}

func TestImageNameFor(t *testing.T) {
	t.Parallel()
	inst := &virt.Instance{Name: "vm1"}

	name, err := imageNameFor(inst, &virt.ImageMeta{Name: "cirros", ContainerFormat: "docker"})
	assert.NoError(t, err)
	assert.Equal(t, "cirros", name)

	_, err = imageNameFor(inst, &virt.ImageMeta{Name: "cirros", ContainerFormat: "ami"})
	var formatErr *virt.ImageFormatError
	assert.ErrorAs(t, err, &formatErr)

	_, err = imageNameFor(inst, nil)
	assert.Error(t, err)
}

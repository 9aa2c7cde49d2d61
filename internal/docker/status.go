package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

const projectLabel = "com.docker.compose.project"

// Status is the container state of one compose project.
type Status struct {
	Running int
	Total   int
}

func (s Status) String() string {
	switch {
	case s.Total == 0:
		return "down"
	case s.Running == s.Total:
		return "running"
	case s.Running == 0:
		return "stopped"
	default:
		return fmt.Sprintf("partial (%d/%d)", s.Running, s.Total)
	}
}

// StatusClient queries the docker daemon for compose project state.
type StatusClient struct {
	inner *client.Client
}

// NewStatusClient connects using DOCKER_HOST and the usual environment.
func NewStatusClient() (*StatusClient, error) {
	c, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &StatusClient{inner: c}, nil
}

// ProjectStatus counts the containers labelled with the compose project.
func (s *StatusClient) ProjectStatus(ctx context.Context, project string) (Status, error) {
	containers, err := s.inner.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", projectLabel+"="+project)),
	})
	if err != nil {
		return Status{}, fmt.Errorf("failed to list containers: %w", err)
	}

	var st Status
	for _, c := range containers {
		st.Total++
		if string(c.State) == "running" {
			st.Running++
		}
	}
	return st, nil
}

// Close releases the client's connections.
func (s *StatusClient) Close() error {
	return s.inner.Close()
}

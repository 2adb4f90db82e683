package r2s3

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ContainerStore keeps one object per container under <prefix>/containers/<name>.txt.
type ContainerStore struct {
	client *Client
	prefix string
}

func NewContainerStore(client *Client, prefix string) *ContainerStore {
	return &ContainerStore{client: client, prefix: strings.Trim(strings.ReplaceAll(prefix, "\\", "/"), "/")}
}

func (s *ContainerStore) key(container string) string {
	return path.Join(s.prefix, "containers", container+".txt")
}

func (s *ContainerStore) Load(ctx context.Context, container string) (string, bool, error) {
	if strings.TrimSpace(container) == "" || strings.Contains(container, "/") {
		return "", false, fmt.Errorf("invalid container name %q", container)
	}
	b, err := s.client.GetObject(ctx, s.key(container))
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(b), true, nil
}

func (s *ContainerStore) Save(ctx context.Context, container, text string) error {
	if strings.TrimSpace(container) == "" || strings.Contains(container, "/") {
		return fmt.Errorf("invalid container name %q", container)
	}
	return s.client.PutBytes(ctx, s.key(container), []byte(text))
}

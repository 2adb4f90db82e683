package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"ladderboard.ai/internal/board/model"
)

// ContainerStore treats each container name as the id of a message previously posted through
// the webhook. Messages are edited in place; they are never created here.
type ContainerStore struct {
	client *Client
	id     string
	token  string
}

func NewContainerStore(c *Client, webhookID, webhookToken string) (*ContainerStore, error) {
	webhookID = strings.TrimSpace(webhookID)
	webhookToken = strings.TrimSpace(webhookToken)
	if webhookID == "" || webhookToken == "" {
		return nil, fmt.Errorf("webhook id and token are required")
	}
	return &ContainerStore{client: c, id: webhookID, token: webhookToken}, nil
}

func (s *ContainerStore) path(container string) (string, error) {
	if !model.IsDigits(container) {
		return "", fmt.Errorf("container must be a message id: %q", container)
	}
	return "/webhooks/" + url.PathEscape(s.id) + "/" + url.PathEscape(s.token) + "/messages/" + container, nil
}

func (s *ContainerStore) Load(ctx context.Context, container string) (string, bool, error) {
	p, err := s.path(container)
	if err != nil {
		return "", false, err
	}
	var m apiMessage
	err = s.client.doJSON(ctx, http.MethodGet, p, false, nil, &m)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load container %s: %w", container, err)
	}
	return m.Content, true, nil
}

func (s *ContainerStore) Save(ctx context.Context, container, text string) error {
	p, err := s.path(container)
	if err != nil {
		return err
	}
	body := map[string]any{
		"content":          text,
		"allowed_mentions": map[string]any{"parse": []string{}},
	}
	if err := s.client.doJSON(ctx, http.MethodPatch, p, false, body, nil); err != nil {
		return fmt.Errorf("save container %s: %w", container, err)
	}
	return nil
}

// MemberResolver looks up guild nicknames, falling back to the global display name and username.
type MemberResolver struct {
	client *Client
	guild  string
}

func NewMemberResolver(c *Client, guildID string) *MemberResolver {
	return &MemberResolver{client: c, guild: strings.TrimSpace(guildID)}
}

func (r *MemberResolver) ResolveName(ctx context.Context, id string) (string, error) {
	if r.guild == "" {
		return "", fmt.Errorf("guild id not configured")
	}
	var m struct {
		Nick *string `json:"nick"`
		User struct {
			Username   string  `json:"username"`
			GlobalName *string `json:"global_name"`
		} `json:"user"`
	}
	p := "/guilds/" + url.PathEscape(r.guild) + "/members/" + url.PathEscape(id)
	if err := r.client.doJSON(ctx, http.MethodGet, p, true, nil, &m); err != nil {
		return "", fmt.Errorf("member %s: %w", id, err)
	}
	switch {
	case m.Nick != nil && *m.Nick != "":
		return *m.Nick, nil
	case m.User.GlobalName != nil && *m.User.GlobalName != "":
		return *m.User.GlobalName, nil
	default:
		return m.User.Username, nil
	}
}

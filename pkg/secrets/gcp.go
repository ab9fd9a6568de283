// Package secrets reads credentials from GCP Secret Manager.
package secrets

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"

	applogger "StockPulse/pkg/logger"
)

// Source returns the latest version of a named secret.
type Source interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

type GCPSecretManager struct {
	client    *secretmanager.Client
	projectID string
	l         *applogger.Logger
}

func NewGCPSecretManager(ctx context.Context, projectID string, l *applogger.Logger) (*GCPSecretManager, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("secretmanager client: %w", err)
	}
	return &GCPSecretManager{client: client, projectID: projectID, l: l}, nil
}

func (g *GCPSecretManager) GetSecret(ctx context.Context, name string) (string, error) {
	res, err := g.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/latest", g.projectID, name),
	})
	if err != nil {
		g.l.Error("access secret failed", applogger.String("secret", name), applogger.Error(err))
		return "", fmt.Errorf("access secret %s: %w", name, err)
	}
	g.l.Debug("secret loaded", applogger.String("secret", name))
	return strings.TrimSpace(string(res.Payload.Data)), nil
}

func (g *GCPSecretManager) Close() error {
	return g.client.Close()
}

// Resolve fills *dst from src when it is empty.
func Resolve(ctx context.Context, src Source, name string, dst *string) error {
	if *dst != "" {
		return nil
	}
	v, err := src.GetSecret(ctx, name)
	if err != nil {
		return err
	}
	if v == "" {
		return fmt.Errorf("secret %s is empty", name)
	}
	*dst = v
	return nil
}

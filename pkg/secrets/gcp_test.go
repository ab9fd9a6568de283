package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapSource map[string]string

func (m mapSource) GetSecret(_ context.Context, name string) (string, error) {
	v, ok := m[name]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func TestResolve(t *testing.T) {
	src := mapSource{"broker-app-secret": "s3cr3t", "blank": ""}
	ctx := context.Background()

	var v string
	require.NoError(t, Resolve(ctx, src, "broker-app-secret", &v))
	assert.Equal(t, "s3cr3t", v)

	kept := "from-env"
	require.NoError(t, Resolve(ctx, src, "missing", &kept))
	assert.Equal(t, "from-env", kept)

	var empty string
	assert.Error(t, Resolve(ctx, src, "missing", &empty))
	assert.Error(t, Resolve(ctx, src, "blank", &empty))
}

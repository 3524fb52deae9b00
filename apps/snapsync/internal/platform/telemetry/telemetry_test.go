package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tilsley/snapsync/apps/snapsync/internal/platform/telemetry"
)

func TestNew_DisabledIsNoop(t *testing.T) {
	tel, err := telemetry.New(context.Background(), telemetry.Options{})

	require.NoError(t, err)
	require.NoError(t, tel.Shutdown(context.Background()))
}

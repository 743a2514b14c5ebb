// shared/pkg/logger/logger_test.go
package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		wantLevel zapcore.Level
		wantErr   bool
	}{
		{name: "production default", opts: Options{Service: "svc", Environment: "production"}, wantLevel: zapcore.InfoLevel},
		{name: "development debug", opts: Options{Service: "svc", Environment: "development", Level: "debug"}, wantLevel: zapcore.DebugLevel},
		{name: "warn", opts: Options{Service: "svc", Level: "WARN"}, wantLevel: zapcore.WarnLevel},
		{name: "unknown level", opts: Options{Service: "svc", Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, log.Core().Enabled(tt.wantLevel))
			assert.False(t, log.Core().Enabled(tt.wantLevel-1))
		})
	}
}

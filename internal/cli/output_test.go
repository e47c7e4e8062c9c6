package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/streamcore/internal/protocol"
)

func decodeResponse(t *testing.T, buf *bytes.Buffer) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	return resp
}

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]string{"result": "success"}))

	resp := decodeResponse(t, buf)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	details := map[string]string{"stream": "10ab", "event": "0x01"}
	require.NoError(t, formatter.Error("BAD_EVENT", "bad event", details))

	resp := decodeResponse(t, buf)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "BAD_EVENT", resp.Error.Code)
	assert.Equal(t, "bad event", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_Text(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		write   func(f *OutputFormatter) error
		want    []string
		notWant []string
	}{
		{
			name:  "success",
			write: func(f *OutputFormatter) error { return f.Success("All streams consistent") },
			want:  []string{"All streams consistent"},
		},
		{
			name:    "error",
			write:   func(f *OutputFormatter) error { return f.Error("NOT_FOUND", "stream not found", "10ab") },
			want:    []string{"Error [NOT_FOUND]", "stream not found"},
			notWant: []string{"Details:"},
		},
		{
			name:    "error_verbose",
			verbose: true,
			write:   func(f *OutputFormatter) error { return f.Error("NOT_FOUND", "stream not found", "10ab") },
			want:    []string{"Error [NOT_FOUND]", "Details: 10ab"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			require.NoError(t, tt.write(&OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}))
			for _, s := range tt.want {
				assert.Contains(t, buf.String(), s)
			}
			for _, s := range tt.notWant {
				assert.NotContains(t, buf.String(), s)
			}
		})
	}
}

func TestOutputFormatter_ProtocolError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := fmt.Errorf("get stream: %w", protocol.NewError(protocol.CodeNotFound, "stream 10ab"))
	require.NoError(t, formatter.ProtocolError(err))

	resp := decodeResponse(t, buf)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)

	buf.Reset()
	require.NoError(t, formatter.ProtocolError(errors.New("boom")))
	assert.Equal(t, "INTERNAL", decodeResponse(t, buf).Error.Code)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))

	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "load config", errors.New("no such file")))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
	assert.Equal(t, "outer: load config: no such file", wrapped.Error())
}

func TestCLIError_JSON(t *testing.T) {
	cliErr := CLIError{
		Code:    "USAGE",
		Message: "bad stream id",
		Details: []string{"expected 64 hex chars"},
	}

	data, err := json.Marshal(cliErr)
	require.NoError(t, err)

	var decoded CLIError
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "USAGE", decoded.Code)
	assert.Equal(t, "bad stream id", decoded.Message)
}

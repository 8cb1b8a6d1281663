package emitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/certusage/pkg/usage"
)

// mockEmitter implements Emitter for testing.
type mockEmitter struct {
	emitCalls  int
	closeCalls int
	emitErr    error
	closeErr   error
	reports    []usage.Report
}

func (m *mockEmitter) Emit(_ context.Context, report usage.Report) error {
	m.emitCalls++
	m.reports = append(m.reports, report)
	return m.emitErr
}

func (m *mockEmitter) Close() error {
	m.closeCalls++
	return m.closeErr
}

func sampleReport() usage.Report {
	return usage.Report{
		Kind:        usage.KindELBV2,
		Resource:    "arn:lb/app",
		Detail:      "arn:listener/443",
		Location:    "listener arn:listener/443 (HTTPS:443) on load balancer app",
		Certificate: "arn:aws:acm:eu-west-1:589470546847:certificate/abc-123",
	}
}

func TestMultiEmitter_Emit(t *testing.T) {
	e1 := &mockEmitter{}
	e2 := &mockEmitter{}
	multi := NewMultiEmitter(e1, e2)

	err := multi.Emit(context.Background(), sampleReport())

	require.NoError(t, err)
	assert.Equal(t, 1, e1.emitCalls)
	assert.Equal(t, 1, e2.emitCalls)
	assert.Len(t, e1.reports, 1)
	assert.Len(t, e2.reports, 1)
}

func TestMultiEmitter_Emit_Error(t *testing.T) {
	e1 := &mockEmitter{emitErr: errors.New("emit failed")}
	e2 := &mockEmitter{}
	multi := NewMultiEmitter(e1, e2)

	err := multi.Emit(context.Background(), usage.Report{})

	assert.Error(t, err)
	assert.Equal(t, 1, e1.emitCalls)
	assert.Equal(t, 0, e2.emitCalls) // Should stop on first error
}

func TestMultiEmitter_Close(t *testing.T) {
	e1 := &mockEmitter{}
	e2 := &mockEmitter{}
	multi := NewMultiEmitter(e1, e2)

	err := multi.Close()

	require.NoError(t, err)
	assert.Equal(t, 1, e1.closeCalls)
	assert.Equal(t, 1, e2.closeCalls)
}

func TestMultiEmitter_Close_Error(t *testing.T) {
	e1 := &mockEmitter{closeErr: errors.New("close failed")}
	e2 := &mockEmitter{}
	multi := NewMultiEmitter(e1, e2)

	err := multi.Close()

	assert.Error(t, err)
	assert.Equal(t, 0, e2.closeCalls)
}

func TestNewFromFormats(t *testing.T) {
	var buf bytes.Buffer

	e, err := NewFromFormats([]string{"json"}, &buf)
	require.NoError(t, err)
	assert.IsType(t, &JSONEmitter{}, e)

	e, err = NewFromFormats(nil, &buf)
	require.NoError(t, err)
	assert.IsType(t, &TextEmitter{}, e)

	e, err = NewFromFormats([]string{"json", "table", "json"}, &buf)
	require.NoError(t, err)
	multi, ok := e.(*MultiEmitter)
	require.True(t, ok)
	assert.Len(t, multi.emitters, 2)

	_, err = NewFromFormats([]string{"json", "yaml"}, &buf)
	require.Error(t, err)
}

func TestNewFromFormats_JSONAndTable(t *testing.T) {
	var buf bytes.Buffer
	e, err := NewFromFormats([]string{"json", "table"}, &buf)
	require.NoError(t, err)

	require.NoError(t, e.Emit(context.Background(), sampleReport()))
	require.NoError(t, e.Close())

	out := buf.String()
	firstLine, _, _ := strings.Cut(out, "\n")
	var decoded usage.Report
	require.NoError(t, json.Unmarshal([]byte(firstLine), &decoded))
	assert.Equal(t, sampleReport(), decoded)
	assert.Contains(t, out, "arn:lb/app")
	assert.Greater(t, strings.Count(out, "arn:lb/app"), 1)
}

func TestNew_Formats(t *testing.T) {
	var buf bytes.Buffer

	e, err := New("text", &buf)
	require.NoError(t, err)
	assert.IsType(t, &TextEmitter{}, e)

	e, err = New("", &buf)
	require.NoError(t, err)
	assert.IsType(t, &TextEmitter{}, e)

	e, err = New("json", &buf)
	require.NoError(t, err)
	assert.IsType(t, &JSONEmitter{}, e)

	e, err = New("table", &buf)
	require.NoError(t, err)
	assert.IsType(t, &TableEmitter{}, e)

	_, err = New("yaml", &buf)
	require.Error(t, err)
}

func TestTextEmitter(t *testing.T) {
	var buf bytes.Buffer
	e := NewTextEmitter(&buf)

	require.NoError(t, e.Emit(context.Background(), sampleReport()))
	require.NoError(t, e.Close())

	out := buf.String()
	assert.Contains(t, out, "certificate used by listener arn:listener/443 (HTTPS:443) on load balancer app")
	assert.Contains(t, out, "kind=elbv2")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestJSONEmitter(t *testing.T) {
	var buf bytes.Buffer
	e := NewJSONEmitter(&buf)

	require.NoError(t, e.Emit(context.Background(), sampleReport()))
	require.NoError(t, e.Emit(context.Background(), usage.Report{Kind: usage.KindCloudFront, Resource: "E1"}))
	require.NoError(t, e.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, "elbv2", got["kind"])
	assert.Equal(t, "arn:lb/app", got["resource"])
	assert.Equal(t, "arn:listener/443", got["detail"])
	assert.Equal(t, "arn:aws:acm:eu-west-1:589470546847:certificate/abc-123", got["certificate"])
}

func TestTableEmitter_RendersOnClose(t *testing.T) {
	var buf bytes.Buffer
	e := NewTableEmitter(&buf)

	require.NoError(t, e.Emit(context.Background(), sampleReport()))
	assert.Empty(t, buf.String())

	require.NoError(t, e.Close())

	out := buf.String()
	assert.Contains(t, out, "KIND")
	assert.Contains(t, out, "elbv2")
	assert.Contains(t, out, "arn:lb/app")
}

func TestTableEmitter_Empty(t *testing.T) {
	var buf bytes.Buffer
	e := NewTableEmitter(&buf)

	require.NoError(t, e.Close())
	assert.Empty(t, buf.String())
}

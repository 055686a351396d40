package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pandora-run/pandora/pkg/models"
)

type fakeProvider struct {
	name  string
	text  string
	err   error
	calls int
}

func (f *fakeProvider) Name() string   { return f.name }
func (f *fakeProvider) Models() []Model { return nil }

func (f *fakeProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan *CompletionChunk, 1)
	ch <- &CompletionChunk{Text: f.text, Done: true}
	close(ch)
	return ch, nil
}

func TestManagerCallUsesDefaultProvider(t *testing.T) {
	primary := &fakeProvider{name: "anthropic", text: "hello"}
	secondary := &fakeProvider{name: "openai", text: "fallback"}
	mgr := NewManager(map[string]Provider{"anthropic": primary, "openai": secondary}, "anthropic", []string{"openai"}, 2, time.Second)

	text, used, err := mgr.Call(context.Background(), models.RoleMind, "system", []CompletionMessage{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	require.Equal(t, "hello", text)
	require.Equal(t, "anthropic", used)
	require.Equal(t, 1, primary.calls)
	require.Equal(t, 0, secondary.calls)
}

func TestManagerCallFallsBackOnTransportError(t *testing.T) {
	primary := &fakeProvider{name: "anthropic", err: errors.New("connection refused")}
	secondary := &fakeProvider{name: "openai", text: "fallback"}
	mgr := NewManager(map[string]Provider{"anthropic": primary, "openai": secondary}, "anthropic", []string{"openai"}, 2, time.Second)

	text, used, err := mgr.Call(context.Background(), models.RoleVoice, "", []CompletionMessage{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	require.Equal(t, "fallback", text)
	require.Equal(t, "openai", used)
	require.Equal(t, 1, primary.calls)
	require.Equal(t, 1, secondary.calls)
}

func TestManagerCallReturnsErrorWhenAllProvidersFail(t *testing.T) {
	primary := &fakeProvider{name: "anthropic", err: errors.New("down")}
	mgr := NewManager(map[string]Provider{"anthropic": primary}, "anthropic", nil, 1, time.Second)

	_, _, err := mgr.Call(context.Background(), models.RoleReflex, "", nil)
	require.Error(t, err)
}

func TestManagerCallRespectsContextCancellation(t *testing.T) {
	primary := &fakeProvider{name: "anthropic", text: "hello"}
	mgr := NewManager(map[string]Provider{"anthropic": primary}, "anthropic", nil, 1, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := mgr.Call(ctx, models.RoleNerves, "", nil)
	require.Error(t, err)
}

func TestCollectDrainsChannelAndReportsUsage(t *testing.T) {
	ch := make(chan *CompletionChunk, 3)
	ch <- &CompletionChunk{Text: "foo"}
	ch <- &CompletionChunk{Text: "bar", InputTokens: 10, OutputTokens: 5}
	ch <- &CompletionChunk{Done: true}
	close(ch)

	text, in, out, err := Collect(ch)
	require.NoError(t, err)
	require.Equal(t, "foobar", text)
	require.Equal(t, 10, in)
	require.Equal(t, 5, out)
}

func TestCollectSurfacesChunkError(t *testing.T) {
	ch := make(chan *CompletionChunk, 1)
	ch <- &CompletionChunk{Error: errors.New("stream broke")}
	close(ch)

	_, _, _, err := Collect(ch)
	require.Error(t, err)
}

func TestNewGoogleProviderRequiresAPIKey(t *testing.T) {
	if _, err := NewGoogleProvider(context.Background(), GoogleConfig{}); err == nil {
		t.Fatal("expected missing api key to be rejected")
	}
}

func TestBedrockProviderDefaults(t *testing.T) {
	p, err := NewBedrockProvider(context.Background(), BedrockConfig{})
	if err != nil {
		// No AWS config available in this environment; constructing the
		// client is best-effort here.
		t.Skipf("aws config unavailable: %v", err)
	}
	if p.Name() != "bedrock" {
		t.Fatalf("unexpected provider name %q", p.Name())
	}
	if p.defaultModel == "" {
		t.Fatal("default model should be applied")
	}
}

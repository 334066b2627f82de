package routing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shaharz/lumen/internal/domain"
	"github.com/shaharz/lumen/internal/routing"
)

// fakeProvider is a hand-written Provider for testing.
type fakeProvider struct {
	name   string
	result *domain.GenerationResult
	err    error

	gotReq *domain.GenerationRequest
}

func (f *fakeProvider) Generate(_ context.Context, req *domain.GenerationRequest) (*domain.GenerationResult, error) {
	f.gotReq = req
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &domain.GenerationResult{Text: "ok", Model: req.Model, Provider: f.name}, nil
}

func (f *fakeProvider) Name() string {
	return f.name
}

// fakeStreamProvider adds a canned chunk sequence on top of fakeProvider.
type fakeStreamProvider struct {
	fakeProvider
	chunks []domain.StreamChunk
}

func (f *fakeStreamProvider) Stream(_ context.Context, req *domain.GenerationRequest) (<-chan domain.StreamChunk, error) {
	f.gotReq = req
	if f.err != nil {
		return nil, f.err
	}

	out := make(chan domain.StreamChunk, len(f.chunks))
	for _, chunk := range f.chunks {
		out <- chunk
	}
	close(out)
	return out, nil
}

func testOptions() routing.Options {
	return routing.Options{
		FreeStreamingModel: "flash-free",
		VisionPrefix:       "pixtral",
		BulkNamespace:      "together/",
	}
}

func TestRouter_Dispatch(t *testing.T) {
	t.Run("should route the free streaming model to the streaming path", func(t *testing.T) {
		streaming := &fakeStreamProvider{
			fakeProvider: fakeProvider{name: "gemini"},
			chunks:       []domain.StreamChunk{{Delta: "hi"}, {Done: true}},
		}
		router := routing.NewRouter(testOptions(), streaming, nil, nil, nil, nil, nil)

		dispatch, err := router.Dispatch(context.Background(), &domain.GenerationRequest{
			Model:  "flash-free",
			Prompt: "hello",
		})

		require.NoError(t, err)
		require.Equal(t, domain.ModeStreaming, dispatch.Mode)
		require.Equal(t, "gemini", dispatch.Provider)
		require.NotNil(t, dispatch.Stream)
		require.Nil(t, dispatch.Complete)
	})

	t.Run("should prefer the streaming rule over a directory entry for the same model", func(t *testing.T) {
		streaming := &fakeStreamProvider{fakeProvider: fakeProvider{name: "gemini"}}
		direct := &fakeProvider{name: "direct"}

		directory := routing.NewDirectory()
		require.NoError(t, directory.Register(direct, "flash-free"))

		router := routing.NewRouter(testOptions(), streaming, nil, nil, nil, directory, nil)

		dispatch, err := router.Dispatch(context.Background(), &domain.GenerationRequest{
			Model:  "flash-free",
			Prompt: "hello",
		})

		require.NoError(t, err)
		require.Equal(t, domain.ModeStreaming, dispatch.Mode)
		require.Equal(t, "gemini", dispatch.Provider)
	})

	t.Run("should route vision-prefixed models to the vision provider", func(t *testing.T) {
		vision := &fakeProvider{name: "mistral"}
		router := routing.NewRouter(testOptions(), nil, vision, nil, nil, nil, nil)

		dispatch, err := router.Dispatch(context.Background(), &domain.GenerationRequest{
			Model:  "pixtral-12b",
			Prompt: "describe this",
		})

		require.NoError(t, err)
		require.Equal(t, domain.ModeOneShot, dispatch.Mode)
		require.Equal(t, "mistral", dispatch.Provider)
	})

	t.Run("should route the bulk namespace ahead of the aggregator despite the separator", func(t *testing.T) {
		bulk := &fakeProvider{name: "together"}
		aggregator := &fakeProvider{name: "openrouter"}
		router := routing.NewRouter(testOptions(), nil, nil, bulk, aggregator, nil, nil)

		dispatch, err := router.Dispatch(context.Background(), &domain.GenerationRequest{
			Model:  "together/meta-llama-3",
			Prompt: "hello",
		})

		require.NoError(t, err)
		require.Equal(t, "together", dispatch.Provider)
	})

	t.Run("should route a vision model ahead of the aggregator despite a separator", func(t *testing.T) {
		vision := &fakeProvider{name: "mistral"}
		aggregator := &fakeProvider{name: "openrouter"}
		router := routing.NewRouter(testOptions(), nil, vision, nil, aggregator, nil, nil)

		dispatch, err := router.Dispatch(context.Background(), &domain.GenerationRequest{
			Model:  "pixtral-large/v1",
			Prompt: "describe this",
		})

		require.NoError(t, err)
		require.Equal(t, "mistral", dispatch.Provider)
	})

	t.Run("should route any other namespaced model to the aggregator", func(t *testing.T) {
		aggregator := &fakeProvider{name: "openrouter"}
		router := routing.NewRouter(testOptions(), nil, nil, nil, aggregator, nil, nil)

		dispatch, err := router.Dispatch(context.Background(), &domain.GenerationRequest{
			Model:  "meta-llama/llama-3-70b",
			Prompt: "hello",
		})

		require.NoError(t, err)
		require.Equal(t, "openrouter", dispatch.Provider)
	})

	t.Run("should fall through to the directory for direct models", func(t *testing.T) {
		direct := &fakeProvider{name: "openai"}
		directory := routing.NewDirectory()
		require.NoError(t, directory.Register(direct, "gpt-4o"))

		router := routing.NewRouter(testOptions(), nil, nil, nil, nil, directory, nil)

		dispatch, err := router.Dispatch(context.Background(), &domain.GenerationRequest{
			Model:  "gpt-4o",
			Prompt: "hello",
		})

		require.NoError(t, err)
		require.Equal(t, "openai", dispatch.Provider)
	})

	t.Run("should return unknown model when nothing matches", func(t *testing.T) {
		router := routing.NewRouter(testOptions(), nil, nil, nil, nil, nil, nil)

		dispatch, err := router.Dispatch(context.Background(), &domain.GenerationRequest{
			Model:  "mystery-model",
			Prompt: "hello",
		})

		require.Nil(t, dispatch)
		require.ErrorIs(t, err, domain.ErrUnknownModel)
	})

	t.Run("should return unknown model when model is empty", func(t *testing.T) {
		router := routing.NewRouter(testOptions(), nil, nil, nil, nil, nil, nil)

		_, err := router.Dispatch(context.Background(), &domain.GenerationRequest{Prompt: "hello"})

		require.ErrorIs(t, err, domain.ErrUnknownModel)
	})

	t.Run("should return error when request is nil", func(t *testing.T) {
		router := routing.NewRouter(testOptions(), nil, nil, nil, nil, nil, nil)

		_, err := router.Dispatch(context.Background(), nil)

		require.Error(t, err)
		require.Contains(t, err.Error(), "request cannot be nil")
	})

	t.Run("should fail a matched rule whose provider is not configured", func(t *testing.T) {
		router := routing.NewRouter(testOptions(), nil, nil, nil, nil, nil, nil)

		_, err := router.Dispatch(context.Background(), &domain.GenerationRequest{
			Model:  "pixtral-12b",
			Prompt: "hello",
		})

		require.ErrorIs(t, err, routing.ErrProviderNotConfigured)
	})

	t.Run("should inject default options before binding", func(t *testing.T) {
		vision := &fakeProvider{name: "mistral"}
		router := routing.NewRouter(testOptions(), nil, vision, nil, nil, nil, nil)

		dispatch, err := router.Dispatch(context.Background(), &domain.GenerationRequest{
			Model:  "pixtral-12b",
			Prompt: "hello",
		})
		require.NoError(t, err)

		_, err = dispatch.Complete(context.Background())
		require.NoError(t, err)

		require.Equal(t, domain.DefaultMaxTokens, vision.gotReq.Options.MaxTokens)
		require.InDelta(t, domain.DefaultTemperature, vision.gotReq.Options.Temperature, 0.0001)
		require.InDelta(t, domain.DefaultTopP, vision.gotReq.Options.TopP, 0.0001)
	})

	t.Run("should keep caller-supplied options", func(t *testing.T) {
		vision := &fakeProvider{name: "mistral"}
		router := routing.NewRouter(testOptions(), nil, vision, nil, nil, nil, nil)

		dispatch, err := router.Dispatch(context.Background(), &domain.GenerationRequest{
			Model:   "pixtral-12b",
			Prompt:  "hello",
			Options: domain.GenerationOptions{MaxTokens: 64, Temperature: 0.1, TopP: 0.9},
		})
		require.NoError(t, err)

		_, err = dispatch.Complete(context.Background())
		require.NoError(t, err)

		require.Equal(t, 64, vision.gotReq.Options.MaxTokens)
		require.InDelta(t, 0.1, vision.gotReq.Options.Temperature, 0.0001)
		require.InDelta(t, 0.9, vision.gotReq.Options.TopP, 0.0001)
	})

	t.Run("should normalize an empty one-shot result to no content", func(t *testing.T) {
		vision := &fakeProvider{
			name:   "mistral",
			result: &domain.GenerationResult{Text: "   "},
		}
		router := routing.NewRouter(testOptions(), nil, vision, nil, nil, nil, nil)

		dispatch, err := router.Dispatch(context.Background(), &domain.GenerationRequest{
			Model:  "pixtral-12b",
			Prompt: "hello",
		})
		require.NoError(t, err)

		result, err := dispatch.Complete(context.Background())
		require.Nil(t, result)
		require.ErrorIs(t, err, domain.ErrNoContent)
	})

	t.Run("should wrap provider failures from the bound call", func(t *testing.T) {
		vision := &fakeProvider{name: "mistral", err: errors.New("upstream exploded")}
		router := routing.NewRouter(testOptions(), nil, vision, nil, nil, nil, nil)

		dispatch, err := router.Dispatch(context.Background(), &domain.GenerationRequest{
			Model:  "pixtral-12b",
			Prompt: "hello",
		})
		require.NoError(t, err)

		_, err = dispatch.Complete(context.Background())
		require.Error(t, err)
		require.Contains(t, err.Error(), "generation failed")
		require.Contains(t, err.Error(), "upstream exploded")
	})

	t.Run("should consult override rules only after the built-in table", func(t *testing.T) {
		vision := &fakeProvider{name: "mistral"}
		overrides, err := routing.CompileRules([]routing.OverrideRule{
			{Name: "grab-everything", When: `model != ""`, Provider: "mistral"},
		})
		require.NoError(t, err)

		router := routing.NewRouter(testOptions(), nil, vision, nil, nil, nil, overrides)

		// A built-in match ignores the override entirely.
		dispatch, err := router.Dispatch(context.Background(), &domain.GenerationRequest{
			Model:  "pixtral-12b",
			Prompt: "hello",
		})
		require.NoError(t, err)
		require.Equal(t, "mistral", dispatch.Provider)

		// An unclaimed model lands on the override's provider.
		dispatch, err = router.Dispatch(context.Background(), &domain.GenerationRequest{
			Model:  "house-model",
			Prompt: "hello",
		})
		require.NoError(t, err)
		require.Equal(t, domain.ModeOneShot, dispatch.Mode)
		require.Equal(t, "mistral", dispatch.Provider)
	})
}

func TestDirectory(t *testing.T) {
	t.Run("should register and look up models", func(t *testing.T) {
		directory := routing.NewDirectory()
		provider := &fakeProvider{name: "openai"}

		require.NoError(t, directory.Register(provider, "gpt-4o", "gpt-4o-mini"))

		found, ok := directory.Lookup("gpt-4o")
		require.True(t, ok)
		require.Equal(t, "openai", found.Name())

		_, ok = directory.Lookup("claude-3")
		require.False(t, ok)
	})

	t.Run("should reject duplicate model registrations", func(t *testing.T) {
		directory := routing.NewDirectory()
		require.NoError(t, directory.Register(&fakeProvider{name: "a"}, "m1"))

		err := directory.Register(&fakeProvider{name: "b"}, "m1")
		require.Error(t, err)
	})

	t.Run("should list distinct providers", func(t *testing.T) {
		directory := routing.NewDirectory()
		provider := &fakeProvider{name: "openai"}
		require.NoError(t, directory.Register(provider, "gpt-4o", "gpt-4o-mini"))

		providers := directory.Providers()
		require.Len(t, providers, 1)
	})
}
